// Package analyzer converts a free-form natural-language prompt into a
// schema-valid structured request for one backend model. The pipeline is
// three strictly sequential AI-assisted steps; URLs are swapped for
// placeholders before the first call and restored after the last, so no
// intermediate text ever exposes a raw URL to the model.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mediaforge/internal/domain"
	"mediaforge/internal/genai"
	"mediaforge/internal/infra"
	"mediaforge/internal/schema"
	"mediaforge/internal/tagcodec"
)

// Backend is the completion surface the pipeline needs; *genai.Client
// satisfies it.
type Backend interface {
	Call(ctx context.Context, req genai.CallRequest) (string, error)
}

// Result is the pipeline's output: the chosen model, the detagged structured
// request, and the accumulated reasoning chain kept as job metadata.
type Result struct {
	Model     string
	Request   json.RawMessage
	Reasoning []string
}

// Pipeline runs the three analysis steps. Different jobs' pipelines share no
// mutable state; each Analyze call owns its tag map and reasoning chain.
type Pipeline struct {
	ai      Backend
	schemas schema.Provider
	models  []string
	logger  infra.Logger
}

// New wires a pipeline over the known model identifiers. The model list must
// come from the adapter registry so selection can never name a model that
// does not resolve.
func New(ai Backend, schemas schema.Provider, models []string, logger infra.Logger) *Pipeline {
	return &Pipeline{ai: ai, schemas: schemas, models: models, logger: logger}
}

const selectionSystem = `You route media generation requests. Given a user prompt,
pick the single best model from the allowed list and explain the choice in a
few short reasoning lines. Never invent model names.`

const inferenceSystem = `You infer request parameters for a media generation model.
For every parameter you can infer from the prompt or default from the schema,
emit exactly one line in the form "<parameter>: <value> → <reason>". No other text.`

const generationSystem = `You emit the final structured generation request as JSON
matching the supplied schema. Use the accumulated reasoning. Copy placeholder
tags such as <TAG_1/> verbatim; never expand or alter them.`

type selection struct {
	Model     string   `json:"model"`
	Reasoning []string `json:"reasoning"`
}

// Analyze runs model selection, parameter inference and structured
// generation for one prompt. Every AI call is deterministic so repeated runs
// on identical input produce identical requests.
func (p *Pipeline) Analyze(ctx context.Context, prompt string) (*Result, error) {
	tagged, tags := tagcodec.PreprocessTyped([]string{prompt})
	taggedPrompt := tagged[0]

	// Step 1: model selection.
	sel, err := p.selectModel(ctx, taggedPrompt)
	if err != nil {
		return nil, err
	}
	if !p.knownModel(sel.Model) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownModel, sel.Model)
	}
	reasoning := append([]string{"model: " + sel.Model}, sel.Reasoning...)

	modelSchema, err := p.schemas.GetSchema(sel.Model)
	if err != nil {
		return nil, err
	}

	// Step 2: parameter inference.
	params, err := p.inferParameters(ctx, taggedPrompt, modelSchema, reasoning)
	if err != nil {
		return nil, err
	}
	reasoning = append(reasoning, params...)

	// Step 3: constrained structured generation, then detag.
	request, err := p.generateRequest(ctx, taggedPrompt, modelSchema, reasoning)
	if err != nil {
		return nil, err
	}
	restored, unknown, err := tagcodec.RestoreJSON(request, tags)
	if err != nil {
		return nil, stepError("restore", err.Error())
	}
	for _, tag := range unknown {
		p.logger.Warn().Str("tag", tag).Str("kind", string(domain.ErrKindUnknownTag)).
			Msg("analyzer: generated request references unknown placeholder")
	}

	return &Result{Model: sel.Model, Request: restored, Reasoning: reasoning}, nil
}

func (p *Pipeline) selectModel(ctx context.Context, taggedPrompt string) (*selection, error) {
	responseSchema, err := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"model":     map[string]any{"type": "string", "enum": p.models},
			"reasoning": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"model", "reasoning"},
	})
	if err != nil {
		return nil, err
	}

	text, err := p.ai.Call(ctx, genai.CallRequest{
		System:         selectionSystem,
		User:           taggedPrompt,
		Context:        []string{"Allowed models: " + strings.Join(p.models, ", ")},
		ResponseSchema: responseSchema,
		Deterministic:  true,
	})
	if err != nil {
		return nil, stepError("model selection", err.Error())
	}
	var sel selection
	if err := json.Unmarshal([]byte(text), &sel); err != nil || sel.Model == "" {
		return nil, stepError("model selection", "empty or unparseable selection response")
	}
	return &sel, nil
}

func (p *Pipeline) inferParameters(ctx context.Context, taggedPrompt string, modelSchema *schema.ModelSchema, reasoning []string) ([]string, error) {
	text, err := p.ai.Call(ctx, genai.CallRequest{
		System: inferenceSystem,
		User:   taggedPrompt,
		Context: []string{
			"Reasoning so far:\n" + strings.Join(reasoning, "\n"),
			"Parameters:\n" + modelSchema.HintText(),
			"Schema:\n" + string(modelSchema.JSONSchema()),
		},
		Deterministic: true,
	})
	if err != nil {
		return nil, stepError("parameter inference", err.Error())
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, stepError("parameter inference", "empty inference response")
	}
	return lines, nil
}

func (p *Pipeline) generateRequest(ctx context.Context, taggedPrompt string, modelSchema *schema.ModelSchema, reasoning []string) (json.RawMessage, error) {
	text, err := p.ai.Call(ctx, genai.CallRequest{
		System:         generationSystem,
		User:           taggedPrompt,
		Context:        []string{"Reasoning chain:\n" + strings.Join(reasoning, "\n")},
		ResponseSchema: modelSchema.JSONSchema(),
		Deterministic:  true,
	})
	if err != nil {
		return nil, stepError("structured generation", err.Error())
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return nil, stepError("structured generation", "response is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}

func (p *Pipeline) knownModel(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func stepError(step, reason string) *domain.JobError {
	return &domain.JobError{
		Kind:    domain.ErrKindAnalyzerStep,
		Message: step + ": " + reason,
		Details: map[string]string{"step": step},
	}
}
