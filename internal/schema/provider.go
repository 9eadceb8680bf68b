// Package schema hands out per-model request validators together with the
// JSON-schema text and human-readable hint text the analyzer feeds to the AI
// backend. Callers never see which validation library produced the validator.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mediaforge/internal/domain"
)

// Provider resolves a model identifier to its request schema.
type Provider interface {
	GetSchema(model string) (*ModelSchema, error)
}

// ModelSchema bundles the compiled validator with the raw schema document and
// derived hint text for one backend model.
type ModelSchema struct {
	model    string
	compiled *jsonschema.Schema
	raw      json.RawMessage
	hint     string
}

// Validate checks a JSON request document against the model's schema.
func (s *ModelSchema) Validate(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("request for %s is not valid JSON: %w", s.model, err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("request does not match %s schema: %w", s.model, err)
	}
	return nil
}

// JSONSchema returns the schema document itself, for prompt construction and
// for the AI backend's constrained-output mode.
func (s *ModelSchema) JSONSchema() json.RawMessage {
	return s.raw
}

// HintText returns a short per-parameter description derived from the schema.
func (s *ModelSchema) HintText() string {
	return s.hint
}

// StaticProvider serves the built-in model schemas, compiled once at startup.
type StaticProvider struct {
	schemas map[string]*ModelSchema
}

// NewStaticProvider compiles every built-in schema. A schema that fails to
// compile is a programming error and aborts startup.
func NewStaticProvider() (*StaticProvider, error) {
	p := &StaticProvider{schemas: make(map[string]*ModelSchema, len(builtinSchemas))}
	for model, raw := range builtinSchemas {
		compiler := jsonschema.NewCompiler()
		url := model + ".schema.json"
		if err := compiler.AddResource(url, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema for %s: %w", model, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", model, err)
		}
		p.schemas[model] = &ModelSchema{
			model:    model,
			compiled: compiled,
			raw:      json.RawMessage(raw),
			hint:     hintText(raw),
		}
	}
	return p, nil
}

// GetSchema resolves the schema for a model, or ErrUnknownModel.
func (p *StaticProvider) GetSchema(model string) (*ModelSchema, error) {
	s, ok := p.schemas[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
	}
	return s, nil
}

var _ Provider = (*StaticProvider)(nil)
