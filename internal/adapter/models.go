package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"mediaforge/internal/domain"
	"mediaforge/internal/genai"
	"mediaforge/internal/tagcodec"
)

// newVeoCapability builds the record for the long-running video model.
func newVeoCapability(deps *modelDeps) *Capability {
	return &Capability{
		ModelID: ModelVeo,
		Async:   true,
		Start:   startLongRunning(deps, ModelVeo),
		Poll:    pollOperation(deps),
		ExtractOutput: func(ctx context.Context, result *OperationResult, jobID string) (*ModelOutput, error) {
			return extractSamples(ctx, deps, jobID, result, extractSpec{
				root:        "generateVideoResponse.generatedSamples",
				media:       "video",
				slot:        "video",
				defaultMIME: "video/mp4",
				filename:    "video.mp4",
			})
		},
	}
}

// newLyriaCapability builds the record for the long-running audio model.
func newLyriaCapability(deps *modelDeps) *Capability {
	return &Capability{
		ModelID: ModelLyria,
		Async:   true,
		Start:   startLongRunning(deps, ModelLyria),
		Poll:    pollOperation(deps),
		ExtractOutput: func(ctx context.Context, result *OperationResult, jobID string) (*ModelOutput, error) {
			return extractSamples(ctx, deps, jobID, result, extractSpec{
				root:        "generateAudioResponse.generatedSamples",
				media:       "audio",
				slot:        "audio",
				defaultMIME: "audio/wav",
				filename:    "audio.wav",
			})
		},
	}
}

// newImagenCapability builds the record for the synchronous image model. Its
// Start performs the whole generation; there is nothing to poll.
func newImagenCapability(deps *modelDeps) *Capability {
	return &Capability{
		ModelID: ModelImagen,
		Async:   false,
		Start: func(ctx context.Context, request json.RawMessage, jobID string) (*StartResult, error) {
			if err := deps.validateRequest(ModelImagen, request); err != nil {
				return nil, err
			}
			response, err := deps.ai.Predict(ctx, ModelImagen, request)
			if err != nil {
				return nil, asJobError(err)
			}
			output := &ModelOutput{Files: map[string]domain.FileRef{}, Response: response}
			preds := gjson.GetBytes(response, "predictions")
			var extractErr error
			idx := 0
			preds.ForEach(func(_, pred gjson.Result) bool {
				idx++
				mime := pred.Get("mimeType").String()
				if mime == "" {
					mime = "image/png"
				}
				slot := "image-" + strconv.Itoa(idx)
				filename := fmt.Sprintf("image-%d%s", idx, extensionFor(mime))
				ref, err := resolveArtifact(ctx, deps, jobID, pred, mime, filename)
				if err != nil {
					extractErr = err
					return false
				}
				output.Files[slot] = ref
				return true
			})
			if extractErr != nil {
				return nil, extractErr
			}
			if len(output.Files) == 0 {
				return nil, &domain.JobError{Kind: domain.ErrKindBackend, Message: "backend returned no predictions"}
			}
			return &StartResult{Output: output}, nil
		},
	}
}

// startLongRunning validates the request and submits it to the backend's
// long-running endpoint. Validation failure is fatal and the backend is
// never invoked.
func startLongRunning(deps *modelDeps, model string) func(context.Context, json.RawMessage, string) (*StartResult, error) {
	return func(ctx context.Context, request json.RawMessage, jobID string) (*StartResult, error) {
		if err := deps.validateRequest(model, request); err != nil {
			return nil, err
		}
		handle, err := deps.ai.StartOperation(ctx, model, request)
		if err != nil {
			return nil, asJobError(err)
		}
		deps.logger.Info().Str("job_id", jobID).Str("model", model).Str("operation", handle).
			Msg("adapter: operation started")
		return &StartResult{OperationHandle: handle}, nil
	}
}

// pollOperation queries the backend once and reports the tri-state outcome.
// Transport failures propagate as errors so the scheduler can treat them as
// transient; explicit backend errors become the errored state.
func pollOperation(deps *modelDeps) func(context.Context, string) (*OperationResult, error) {
	return func(ctx context.Context, operationHandle string) (*OperationResult, error) {
		op, err := deps.ai.FetchOperation(ctx, operationHandle)
		if err != nil {
			var apiErr *genai.APIError
			if errors.As(err, &apiErr) {
				return &OperationResult{State: StateErrored, Err: backendError(apiErr)}, nil
			}
			return nil, err
		}
		if op.Error != nil {
			return &OperationResult{State: StateErrored, Err: backendError(op.Error)}, nil
		}
		if op.Done {
			return &OperationResult{State: StateDone, Payload: op.Response}, nil
		}
		return &OperationResult{State: StatePending}, nil
	}
}

type extractSpec struct {
	root        string // gjson path of the sample list in the done payload
	media       string // key of the media object within one sample
	slot        string // output slot name
	defaultMIME string
	filename    string
}

// extractSamples pulls the first generated sample out of a done payload,
// persisting inline bytes to object storage when the backend returned no
// storage reference.
func extractSamples(ctx context.Context, deps *modelDeps, jobID string, result *OperationResult, spec extractSpec) (*ModelOutput, error) {
	if result == nil || result.State != StateDone {
		return nil, fmt.Errorf("adapter: extractOutput requires a done result")
	}
	samples := gjson.GetBytes(result.Payload, spec.root)
	if !samples.Exists() || len(samples.Array()) == 0 {
		return nil, &domain.JobError{Kind: domain.ErrKindBackend, Message: "done operation carries no " + spec.media + " samples"}
	}
	sample := samples.Array()[0].Get(spec.media)
	mime := sample.Get("mimeType").String()
	if mime == "" {
		mime = spec.defaultMIME
	}
	ref, err := resolveArtifact(ctx, deps, jobID, sample, mime, spec.filename)
	if err != nil {
		return nil, err
	}
	return &ModelOutput{
		Files:    map[string]domain.FileRef{spec.slot: ref},
		Text:     gjson.GetBytes(result.Payload, spec.root+".0.text").String(),
		Response: result.Payload,
	}, nil
}

// resolveArtifact turns one backend media object into a signed FileRef,
// uploading inline bytes when no storage URI is present.
func resolveArtifact(ctx context.Context, deps *modelDeps, jobID string, media gjson.Result, mime, filename string) (domain.FileRef, error) {
	if uri := media.Get("uri").String(); uri != "" {
		if inferred := tagcodec.MIMEForURL(uri); inferred != "" {
			mime = inferred
		}
		return deps.storeRef(ctx, uri, mime)
	}
	if uri := media.Get("gcsUri").String(); uri != "" {
		if inferred := tagcodec.MIMEForURL(uri); inferred != "" {
			mime = inferred
		}
		return deps.storeRef(ctx, uri, mime)
	}
	if b64 := media.Get("bytesBase64Encoded").String(); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return domain.FileRef{}, &domain.JobError{Kind: domain.ErrKindBackend, Message: "invalid inline payload: " + err.Error()}
		}
		return deps.uploadRef(ctx, jobID, filename, data, mime)
	}
	return domain.FileRef{}, &domain.JobError{Kind: domain.ErrKindBackend, Message: "media object carries neither uri nor inline bytes"}
}

func backendError(apiErr *genai.APIError) *domain.JobError {
	return &domain.JobError{
		Kind:    domain.ErrKindBackend,
		Message: apiErr.Message,
		Details: map[string]string{"code": strconv.Itoa(apiErr.Code)},
	}
}

// asJobError maps a backend call failure on the start path to the fatal
// backend kind; anything else stays an ordinary error.
func asJobError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return backendError(apiErr)
	}
	return err
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}
