package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"mediaforge/internal/domain"
	"mediaforge/internal/genai"
	"mediaforge/internal/schema"
)

var testModels = []string{"imagen-4.0-generate-001", "lyria-2.0-generate-001", "veo-3.0-generate-001"}

// scriptedBackend replays one canned response per call, in order.
type scriptedBackend struct {
	responses []string
	errs      []error
	calls     []genai.CallRequest
}

func (s *scriptedBackend) Call(ctx context.Context, req genai.CallRequest) (string, error) {
	i := len(s.calls)
	s.calls = append(s.calls, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i >= len(s.responses) {
		return "", errors.New("no scripted response")
	}
	return s.responses[i], nil
}

func newPipeline(t *testing.T, ai Backend) *Pipeline {
	t.Helper()
	schemas, err := schema.NewStaticProvider()
	if err != nil {
		t.Fatalf("NewStaticProvider: %v", err)
	}
	return New(ai, schemas, testModels, zerolog.Nop())
}

func TestAnalyzeVideoPrompt(t *testing.T) {
	ai := &scriptedBackend{responses: []string{
		`{"model":"veo-3.0-generate-001","reasoning":["prompt describes temporal content","16:9 frame requested"]}`,
		"aspectRatio: 16:9 → user requested 16:9\ndurationSeconds: 6 → schema default\n",
		`{"prompt":"a cat playing piano","aspectRatio":"16:9","durationSeconds":6}`,
	}}
	p := newPipeline(t, ai)

	res, err := p.Analyze(context.Background(), "Generate a video of a cat playing piano, 16:9")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Model != "veo-3.0-generate-001" {
		t.Fatalf("Model = %q", res.Model)
	}
	if got := gjson.GetBytes(res.Request, "aspectRatio").String(); got != "16:9" {
		t.Fatalf("aspectRatio = %q", got)
	}
	if got := gjson.GetBytes(res.Request, "durationSeconds").Int(); got != 6 {
		t.Fatalf("durationSeconds = %d", got)
	}
	joined := strings.Join(res.Reasoning, "\n")
	for _, want := range []string{"temporal content", "aspectRatio: 16:9 → user requested 16:9", "durationSeconds: 6"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("reasoning missing %q:\n%s", want, joined)
		}
	}
	if len(ai.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(ai.calls))
	}
	for i, call := range ai.calls {
		if !call.Deterministic {
			t.Fatalf("call %d not deterministic", i)
		}
	}
}

func TestAnalyzeCarriesURLsThroughAsTags(t *testing.T) {
	url := "https://cdn.example.com/ref.jpg"
	ai := &scriptedBackend{responses: []string{
		`{"model":"veo-3.0-generate-001","reasoning":["animate the reference image"]}`,
		"image: <TAG_IMAGE_JPEG_1/> → provided reference",
		`{"prompt":"animate the scene","image":{"gcsUri":"<TAG_IMAGE_JPEG_1/>"}}`,
	}}
	p := newPipeline(t, ai)

	res, err := p.Analyze(context.Background(), "Animate "+url+" into a short clip")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	// No AI call ever saw the raw URL.
	for i, call := range ai.calls {
		all := call.User + strings.Join(call.Context, " ")
		if strings.Contains(all, url) {
			t.Fatalf("call %d leaked raw url", i)
		}
	}
	if got := gjson.GetBytes(res.Request, "image.gcsUri").String(); got != url {
		t.Fatalf("gcsUri = %q", got)
	}
	if got := gjson.GetBytes(res.Request, "image.mimeType").String(); got != "image/jpeg" {
		t.Fatalf("mimeType = %q", got)
	}
}

func TestAnalyzeStepOneFailureAborts(t *testing.T) {
	ai := &scriptedBackend{responses: []string{"not json at all"}}
	p := newPipeline(t, ai)

	_, err := p.Analyze(context.Background(), "make something")
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != domain.ErrKindAnalyzerStep {
		t.Fatalf("err = %v, want analyzer step error", err)
	}
	if len(ai.calls) != 1 {
		t.Fatalf("calls = %d, pipeline did not abort after step 1", len(ai.calls))
	}
}

func TestAnalyzeUnknownModelSelectionFails(t *testing.T) {
	ai := &scriptedBackend{responses: []string{
		`{"model":"made-up-model","reasoning":["?"]}`,
	}}
	p := newPipeline(t, ai)

	_, err := p.Analyze(context.Background(), "make something")
	if !errors.Is(err, domain.ErrUnknownModel) {
		t.Fatalf("err = %v, want ErrUnknownModel", err)
	}
	// The schema provider must never be consulted for the bogus model.
	if len(ai.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(ai.calls))
	}
}

func TestAnalyzeEmptyInferenceFails(t *testing.T) {
	ai := &scriptedBackend{responses: []string{
		`{"model":"imagen-4.0-generate-001","reasoning":["still image"]}`,
		"   \n  ",
	}}
	p := newPipeline(t, ai)

	_, err := p.Analyze(context.Background(), "a poster")
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != domain.ErrKindAnalyzerStep {
		t.Fatalf("err = %v, want analyzer step error", err)
	}
}

func TestAnalyzeInvalidGenerationJSONFails(t *testing.T) {
	ai := &scriptedBackend{responses: []string{
		`{"model":"imagen-4.0-generate-001","reasoning":["still image"]}`,
		"sampleCount: 1 → default",
		"{broken",
	}}
	p := newPipeline(t, ai)

	_, err := p.Analyze(context.Background(), "a poster")
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != domain.ErrKindAnalyzerStep {
		t.Fatalf("err = %v, want analyzer step error", err)
	}
}
