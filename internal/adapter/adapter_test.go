package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
	"mediaforge/internal/genai"
	"mediaforge/internal/schema"
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

// fakeStore records uploads and mints predictable signed URLs.
type fakeStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: map[string][]byte{}}
}

func (s *fakeStore) Upload(ctx context.Context, uri string, data []byte, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[uri] = data
	return nil
}

func (s *fakeStore) OutputURI(jobID, filename string) string {
	return "s3://media/generated/" + jobID + "/" + filename
}

func (s *fakeStore) SignedURL(ctx context.Context, uri string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + uri, nil
}

func newTestRegistry(t *testing.T, rt roundTripFunc) (*Registry, *fakeStore) {
	t.Helper()
	ai, err := genai.NewClient(genai.Options{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	schemas, err := schema.NewStaticProvider()
	if err != nil {
		t.Fatalf("NewStaticProvider: %v", err)
	}
	store := newFakeStore()
	registry, err := NewRegistry(Options{
		AI:              ai,
		Schemas:         schemas,
		Storage:         store,
		SignedURLExpiry: time.Hour,
		Logger:          zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry, store
}

func TestRegistryResolvesEveryKnownModel(t *testing.T) {
	registry, _ := newTestRegistry(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("registry construction must not call the backend")
		return nil, nil
	})

	want := []string{ModelImagen, ModelLyria, ModelVeo}
	got := registry.Models()
	if len(got) != len(want) {
		t.Fatalf("Models() = %v", got)
	}
	for i, id := range want {
		if got[i] != id {
			t.Fatalf("Models()[%d] = %q, want %q", i, got[i], id)
		}
		rec, err := registry.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", id, err)
		}
		if rec.Async && (rec.Poll == nil || rec.ExtractOutput == nil) {
			t.Fatalf("async record %s missing poll operations", id)
		}
	}
}

func TestRegistryUnknownModel(t *testing.T) {
	registry, _ := newTestRegistry(t, nil)
	_, err := registry.Resolve("sora-1.0")
	if !errors.Is(err, domain.ErrUnknownModel) {
		t.Fatalf("err = %v, want ErrUnknownModel", err)
	}
}

func TestStartRejectsInvalidRequestWithoutBackendCall(t *testing.T) {
	calls := 0
	registry, _ := newTestRegistry(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(200, `{}`), nil
	})
	rec, _ := registry.Resolve(ModelVeo)

	_, err := rec.Start(context.Background(), json.RawMessage(`{"aspectRatio":"16:9"}`), "job-1")
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != domain.ErrKindValidation {
		t.Fatalf("err = %v, want validation kind", err)
	}
	if calls != 0 {
		t.Fatalf("backend called %d times on invalid request", calls)
	}
}

func TestStartLongRunningReturnsHandle(t *testing.T) {
	registry, _ := newTestRegistry(t, func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, ModelVeo+":predictLongRunning") {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		return jsonResponse(200, `{"name":"operations/op-77"}`), nil
	})
	rec, _ := registry.Resolve(ModelVeo)

	result, err := rec.Start(context.Background(), json.RawMessage(`{"prompt":"a storm over the sea"}`), "job-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.OperationHandle != "operations/op-77" {
		t.Fatalf("handle = %q", result.OperationHandle)
	}
	if result.Output != nil {
		t.Fatal("async start produced inline output")
	}
}

func TestImagenStartIsSynchronous(t *testing.T) {
	inline := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	registry, store := newTestRegistry(t, func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, ModelImagen+":predict") {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		return jsonResponse(200, `{"predictions":[{"mimeType":"image/png","bytesBase64Encoded":"`+inline+`"}]}`), nil
	})
	rec, _ := registry.Resolve(ModelImagen)

	result, err := rec.Start(context.Background(), json.RawMessage(`{"prompt":"a lighthouse","sampleCount":1}`), "job-9")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.OperationHandle != "" {
		t.Fatal("sync start returned an operation handle")
	}
	ref, ok := result.Output.Files["image-1"]
	if !ok {
		t.Fatalf("files = %+v", result.Output.Files)
	}
	if ref.StorageURI != "s3://media/generated/job-9/image-1.png" {
		t.Fatalf("storage uri = %q", ref.StorageURI)
	}
	if ref.MIMEType != "image/png" || ref.Size != int64(len("png-bytes")) {
		t.Fatalf("ref = %+v", ref)
	}
	if string(store.uploads[ref.StorageURI]) != "png-bytes" {
		t.Fatal("inline bytes were not uploaded")
	}
}

func TestPollPendingAndDone(t *testing.T) {
	done := false
	registry, _ := newTestRegistry(t, func(r *http.Request) (*http.Response, error) {
		if done {
			return jsonResponse(200, `{"name":"operations/op-1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"gcsUri":"gs://out/clip.mp4"}}]}}}`), nil
		}
		return jsonResponse(200, `{"name":"operations/op-1","done":false}`), nil
	})
	rec, _ := registry.Resolve(ModelVeo)

	result, err := rec.Poll(context.Background(), "operations/op-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.State != StatePending {
		t.Fatalf("state = %s, want pending", result.State)
	}

	done = true
	result, err = rec.Poll(context.Background(), "operations/op-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("state = %s, want done", result.State)
	}

	output, err := rec.ExtractOutput(context.Background(), result, "job-1")
	if err != nil {
		t.Fatalf("ExtractOutput: %v", err)
	}
	ref := output.Files["video"]
	if ref.StorageURI != "gs://out/clip.mp4" {
		t.Fatalf("storage uri = %q", ref.StorageURI)
	}
	if ref.MIMEType != "video/mp4" {
		t.Fatalf("mime = %q", ref.MIMEType)
	}
	if ref.SignedURL == "" {
		t.Fatal("done output missing signed url")
	}
}

func TestPollBackendErrorIsFatal(t *testing.T) {
	registry, _ := newTestRegistry(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"name":"operations/op-2","done":true,"error":{"code":9,"message":"safety rejection"}}`), nil
	})
	rec, _ := registry.Resolve(ModelLyria)

	result, err := rec.Poll(context.Background(), "operations/op-2")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.State != StateErrored {
		t.Fatalf("state = %s, want errored", result.State)
	}
	if result.Err == nil || result.Err.Kind != domain.ErrKindBackend {
		t.Fatalf("err = %+v", result.Err)
	}
	if result.Err.Details["code"] != "9" {
		t.Fatalf("details = %v", result.Err.Details)
	}
}

func TestPollTransportErrorIsTransient(t *testing.T) {
	registry, _ := newTestRegistry(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	})
	rec, _ := registry.Resolve(ModelVeo)

	result, err := rec.Poll(context.Background(), "operations/op-3")
	if err == nil {
		t.Fatal("transport failure swallowed")
	}
	if result != nil {
		t.Fatalf("result = %+v on transport failure", result)
	}
}

func TestExtractRequiresDoneResult(t *testing.T) {
	registry, _ := newTestRegistry(t, nil)
	rec, _ := registry.Resolve(ModelVeo)
	if _, err := rec.ExtractOutput(context.Background(), &OperationResult{State: StatePending}, "job-1"); err == nil {
		t.Fatal("pending result accepted")
	}
}
