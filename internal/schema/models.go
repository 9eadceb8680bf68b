package schema

// builtinSchemas holds the request schema for every registered backend model,
// keyed by model identifier. Draft 2020-12.
var builtinSchemas = map[string]string{
	"veo-3.0-generate-001": `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "description": "Request for the Veo long-running video generation model.",
  "properties": {
    "prompt": {
      "type": "string",
      "minLength": 1,
      "description": "Text description of the video to generate."
    },
    "negativePrompt": {
      "type": "string",
      "description": "Content the video must avoid."
    },
    "aspectRatio": {
      "type": "string",
      "enum": ["16:9", "9:16", "1:1"],
      "default": "16:9",
      "description": "Output frame aspect ratio."
    },
    "durationSeconds": {
      "type": "integer",
      "minimum": 4,
      "maximum": 8,
      "default": 6,
      "description": "Length of the generated clip in seconds."
    },
    "image": {
      "type": "object",
      "description": "Optional reference image to animate.",
      "properties": {
        "gcsUri": {"type": "string"},
        "mimeType": {"type": "string"}
      },
      "required": ["gcsUri"],
      "additionalProperties": false
    }
  },
  "required": ["prompt"],
  "additionalProperties": false
}`,

	"imagen-4.0-generate-001": `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "description": "Request for the Imagen synchronous image generation model.",
  "properties": {
    "prompt": {
      "type": "string",
      "minLength": 1,
      "description": "Text description of the image to generate."
    },
    "negativePrompt": {
      "type": "string",
      "description": "Content the image must avoid."
    },
    "aspectRatio": {
      "type": "string",
      "enum": ["1:1", "16:9", "9:16", "4:3", "3:4"],
      "default": "1:1",
      "description": "Output aspect ratio."
    },
    "sampleCount": {
      "type": "integer",
      "minimum": 1,
      "maximum": 4,
      "default": 1,
      "description": "Number of images to generate."
    }
  },
  "required": ["prompt"],
  "additionalProperties": false
}`,

	"lyria-2.0-generate-001": `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "description": "Request for the Lyria long-running audio generation model.",
  "properties": {
    "prompt": {
      "type": "string",
      "minLength": 1,
      "description": "Text description of the audio to generate."
    },
    "negativePrompt": {
      "type": "string",
      "description": "Styles or content the audio must avoid."
    },
    "durationSeconds": {
      "type": "integer",
      "minimum": 10,
      "maximum": 120,
      "default": 30,
      "description": "Length of the generated audio in seconds."
    },
    "seed": {
      "type": "integer",
      "description": "Optional seed for reproducible output."
    }
  },
  "required": ["prompt"],
  "additionalProperties": false
}`,
}
