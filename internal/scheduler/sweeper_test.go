package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/adapter"
	"mediaforge/internal/domain"
	"mediaforge/internal/store"
)

type fakeResolver struct {
	caps map[string]*adapter.Capability
}

func (f *fakeResolver) Resolve(model string) (*adapter.Capability, error) {
	rec, ok := f.caps[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
	}
	return rec, nil
}

func testConfig() Config {
	return Config{Concurrency: 3, PollTimeout: 100 * time.Millisecond, PollInterval: 10 * time.Second}
}

func runningJob(id string, now time.Time) *domain.Job {
	return &domain.Job{
		ID:              id,
		Model:           "test-model",
		Status:          domain.JobStatusRunning,
		OperationHandle: "operations/" + id,
		NextPollAt:      now.Add(-time.Second),
		TTLAt:           now.Add(time.Hour),
	}
}

func seed(t *testing.T, jobs *store.Memory, records ...*domain.Job) {
	t.Helper()
	for _, job := range records {
		if err := jobs.Create(context.Background(), job); err != nil {
			t.Fatalf("seed %s: %v", job.ID, err)
		}
	}
}

func newSweeper(jobs *store.Memory, caps map[string]*adapter.Capability, cfg Config, now time.Time) *Sweeper {
	s := NewSweeper(jobs, &fakeResolver{caps: caps}, cfg, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestSweepRespectsConcurrencyCap(t *testing.T) {
	now := time.Now().UTC()
	jobs := store.NewMemory()
	for i := 0; i < 10; i++ {
		seed(t, jobs, runningJob(fmt.Sprintf("j%d", i), now))
	}

	var active, peak int32
	var mu sync.Mutex
	caps := map[string]*adapter.Capability{"test-model": {
		ModelID: "test-model",
		Async:   true,
		Poll: func(ctx context.Context, handle string) (*adapter.OperationResult, error) {
			cur := atomic.AddInt32(&active, 1)
			mu.Lock()
			if cur > peak {
				peak = cur
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return &adapter.OperationResult{State: adapter.StatePending}, nil
		},
	}}

	cfg := testConfig()
	stats, err := newSweeper(jobs, caps, cfg, now).RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if stats.Polled != cfg.Concurrency {
		t.Fatalf("Polled = %d, want %d", stats.Polled, cfg.Concurrency)
	}
	if stats.Deferred != 10-cfg.Concurrency {
		t.Fatalf("Deferred = %d", stats.Deferred)
	}
	if int(peak) > cfg.Concurrency {
		t.Fatalf("peak concurrent polls = %d, cap %d", peak, cfg.Concurrency)
	}
}

func TestSweepTTLPrecedence(t *testing.T) {
	now := time.Now().UTC()
	jobs := store.NewMemory()
	expired := runningJob("expired", now)
	expired.TTLAt = now.Add(-time.Minute)
	expired.Attempt = 7
	seed(t, jobs, expired)

	polled := false
	caps := map[string]*adapter.Capability{"test-model": {
		ModelID: "test-model",
		Async:   true,
		Poll: func(ctx context.Context, handle string) (*adapter.OperationResult, error) {
			polled = true
			return &adapter.OperationResult{State: adapter.StatePending}, nil
		},
	}}

	stats, err := newSweeper(jobs, caps, testConfig(), now).RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if polled {
		t.Fatal("expired job was polled")
	}
	if stats.Expired != 1 {
		t.Fatalf("Expired = %d", stats.Expired)
	}

	got, _ := jobs.Get(context.Background(), "expired")
	if got.Status != domain.JobStatusExpired {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Error == nil || got.Error.Kind != domain.ErrKindExpired {
		t.Fatalf("error = %+v", got.Error)
	}
	if got.OperationHandle != "" {
		t.Fatal("operation handle not cleared on terminal state")
	}

	// Terminal jobs are never selected again.
	stats, _ = newSweeper(jobs, caps, testConfig(), now).RunSweep(context.Background())
	if stats.Expired != 0 || stats.Polled != 0 {
		t.Fatalf("second sweep touched the job: %+v", stats)
	}
}

func TestSweepTransientTimeoutKeepsJobRunning(t *testing.T) {
	now := time.Now().UTC()
	jobs := store.NewMemory()
	seed(t, jobs, runningJob("slow", now))

	caps := map[string]*adapter.Capability{"test-model": {
		ModelID: "test-model",
		Async:   true,
		Poll: func(ctx context.Context, handle string) (*adapter.OperationResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}

	cfg := testConfig()
	stats, err := newSweeper(jobs, caps, cfg, now).RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if stats.Transient != 1 {
		t.Fatalf("Transient = %d", stats.Transient)
	}

	got, _ := jobs.Get(context.Background(), "slow")
	if got.Status != domain.JobStatusRunning {
		t.Fatalf("status = %s, want running", got.Status)
	}
	if got.Error != nil {
		t.Fatalf("transient timeout recorded on job: %+v", got.Error)
	}
	if got.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", got.Attempt)
	}
	if want := now.Add(cfg.PollInterval); !got.NextPollAt.Equal(want) {
		t.Fatalf("nextPollAt = %s, want %s", got.NextPollAt, want)
	}
}

func TestSweepDoneExtractsOutput(t *testing.T) {
	now := time.Now().UTC()
	jobs := store.NewMemory()
	seed(t, jobs, runningJob("done", now))

	payload := json.RawMessage(`{"uri":"s3://media/generated/done/video.mp4"}`)
	caps := map[string]*adapter.Capability{"test-model": {
		ModelID: "test-model",
		Async:   true,
		Poll: func(ctx context.Context, handle string) (*adapter.OperationResult, error) {
			return &adapter.OperationResult{State: adapter.StateDone, Payload: payload}, nil
		},
		ExtractOutput: func(ctx context.Context, result *adapter.OperationResult, jobID string) (*adapter.ModelOutput, error) {
			return &adapter.ModelOutput{
				Files:    map[string]domain.FileRef{"video": {StorageURI: "s3://media/generated/done/video.mp4", MIMEType: "video/mp4"}},
				Response: result.Payload,
			}, nil
		},
	}}

	stats, err := newSweeper(jobs, caps, testConfig(), now).RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if stats.Succeeded != 1 {
		t.Fatalf("Succeeded = %d", stats.Succeeded)
	}

	got, _ := jobs.Get(context.Background(), "done")
	if got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Files["video"].StorageURI != "s3://media/generated/done/video.mp4" {
		t.Fatalf("files = %+v", got.Files)
	}
	if got.OperationHandle != "" {
		t.Fatal("operation handle not cleared")
	}
}

func TestSweepErroredFailsJob(t *testing.T) {
	now := time.Now().UTC()
	jobs := store.NewMemory()
	seed(t, jobs, runningJob("bad", now))

	caps := map[string]*adapter.Capability{"test-model": {
		ModelID: "test-model",
		Async:   true,
		Poll: func(ctx context.Context, handle string) (*adapter.OperationResult, error) {
			return &adapter.OperationResult{
				State: adapter.StateErrored,
				Err:   &domain.JobError{Kind: domain.ErrKindBackend, Message: "generation rejected"},
			}, nil
		},
	}}

	if _, err := newSweeper(jobs, caps, testConfig(), now).RunSweep(context.Background()); err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	got, _ := jobs.Get(context.Background(), "bad")
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Error == nil || got.Error.Kind != domain.ErrKindBackend {
		t.Fatalf("error = %+v", got.Error)
	}
}

func TestSweepStoreErrorPropagates(t *testing.T) {
	s := NewSweeper(failingStore{}, &fakeResolver{}, testConfig(), zerolog.Nop())
	if _, err := s.RunSweep(context.Background()); err == nil {
		t.Fatal("store error swallowed")
	}
}

type failingStore struct{}

func (failingStore) ListRunningDue(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	return nil, errors.New("boom")
}

func (failingStore) Update(ctx context.Context, job *domain.Job) error { return nil }
