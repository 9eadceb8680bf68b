package genai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestCallDeterministicConfig(t *testing.T) {
	var captured generateContentRequest
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return jsonResponse(200, `{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`), nil
	})

	text, err := client.Call(context.Background(), CallRequest{
		System:         "system",
		User:           "user",
		ResponseSchema: json.RawMessage(`{"type":"object"}`),
		Deterministic:  true,
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "hello" {
		t.Fatalf("text = %q", text)
	}
	cfg := captured.GenerationConfig
	if cfg == nil || cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Fatalf("temperature not pinned: %+v", cfg)
	}
	if cfg.Seed == nil || *cfg.Seed != deterministicSeed {
		t.Fatalf("seed not pinned: %+v", cfg)
	}
	if cfg.ResponseMimeType != "application/json" {
		t.Fatalf("ResponseMimeType = %q", cfg.ResponseMimeType)
	}
	if captured.SystemInstruction == nil {
		t.Fatal("system instruction dropped")
	}
}

func TestCallBackendError(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(429, `{"error":{"code":429,"message":"quota exceeded"}}`), nil
	})

	_, err := client.Call(context.Background(), CallRequest{User: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != 429 || apiErr.Message != "quota exceeded" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestStartAndFetchOperation(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		switch {
		case strings.Contains(r.URL.Path, ":predictLongRunning"):
			return jsonResponse(200, `{"name":"operations/op-123"}`), nil
		case strings.Contains(r.URL.Path, "operations/op-123"):
			return jsonResponse(200, `{"name":"operations/op-123","done":true,"response":{"uri":"gs://out/x.mp4"}}`), nil
		default:
			t.Fatalf("unexpected path %q", r.URL.Path)
			return nil, nil
		}
	})

	handle, err := client.StartOperation(context.Background(), "veo-3.0-generate-001", map[string]any{"prompt": "cat"})
	if err != nil {
		t.Fatalf("StartOperation: %v", err)
	}
	if handle != "operations/op-123" {
		t.Fatalf("handle = %q", handle)
	}

	op, err := client.FetchOperation(context.Background(), handle)
	if err != nil {
		t.Fatalf("FetchOperation: %v", err)
	}
	if !op.Done || len(op.Response) == 0 {
		t.Fatalf("op = %+v", op)
	}
}

func TestStartOperationWithoutNameFails(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{}`), nil
	})
	if _, err := client.StartOperation(context.Background(), "veo-3.0-generate-001", nil); err == nil {
		t.Fatal("StartOperation accepted empty operation name")
	}
}
