// Package scheduler drives running jobs to completion. Each sweep selects
// eligible jobs under a concurrency cap and polls them as independent units;
// a job is only ever mutated by its own poll, so sweeps need no cross-job
// locking.
package scheduler

import (
	"context"
	"sync"
	"time"

	"mediaforge/internal/adapter"
	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
)

// JobStore is the slice of the job store the sweeper needs.
type JobStore interface {
	ListRunningDue(ctx context.Context, now time.Time) ([]*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
}

// Resolver maps a model identifier to its capability record.
type Resolver interface {
	Resolve(model string) (*adapter.Capability, error)
}

// Config carries the sweep tunables.
type Config struct {
	Concurrency  int
	PollTimeout  time.Duration
	PollInterval time.Duration
}

// Stats summarizes one sweep for observability.
type Stats struct {
	Eligible  int
	Expired   int
	Polled    int
	Pending   int
	Succeeded int
	Failed    int
	Transient int
	Deferred  int
}

// Sweeper runs poll sweeps. It is stateless between sweeps; everything it
// knows about a job lives on the job record.
type Sweeper struct {
	store    JobStore
	registry Resolver
	cfg      Config
	logger   infra.Logger
	now      func() time.Time
}

// NewSweeper wires a sweeper. The clock is injectable for tests.
func NewSweeper(store JobStore, registry Resolver, cfg Config, logger infra.Logger) *Sweeper {
	return &Sweeper{store: store, registry: registry, cfg: cfg, logger: logger, now: time.Now}
}

// RunSweep executes one eligibility-selection-and-poll cycle. Jobs past
// their TTL transition to expired without being polled; of the remainder at
// most Concurrency jobs are polled, concurrently. Unselected jobs stay
// running and are picked up by a later sweep.
func (s *Sweeper) RunSweep(ctx context.Context) (Stats, error) {
	now := s.now()
	var stats Stats

	due, err := s.store.ListRunningDue(ctx, now)
	if err != nil {
		return stats, err
	}

	eligible := due[:0]
	for _, job := range due {
		if job.Expired(now) {
			s.expire(ctx, job)
			stats.Expired++
			continue
		}
		eligible = append(eligible, job)
	}
	stats.Eligible = len(eligible)

	selected := eligible
	if len(selected) > s.cfg.Concurrency {
		selected = selected[:s.cfg.Concurrency]
		stats.Deferred = len(eligible) - len(selected)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, job := range selected {
		wg.Add(1)
		go func(job *domain.Job) {
			defer wg.Done()
			outcome := s.pollJob(ctx, job, now)
			mu.Lock()
			stats.Polled++
			switch outcome {
			case outcomePending:
				stats.Pending++
			case outcomeSucceeded:
				stats.Succeeded++
			case outcomeFailed:
				stats.Failed++
			case outcomeTransient:
				stats.Transient++
			}
			mu.Unlock()
		}(job)
	}
	wg.Wait()

	if stats.Polled > 0 || stats.Expired > 0 {
		s.logger.Info().
			Int("polled", stats.Polled).
			Int("pending", stats.Pending).
			Int("succeeded", stats.Succeeded).
			Int("failed", stats.Failed).
			Int("transient", stats.Transient).
			Int("expired", stats.Expired).
			Int("deferred", stats.Deferred).
			Msg("scheduler: sweep complete")
	}
	return stats, nil
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeSucceeded
	outcomeFailed
	outcomeTransient
)

// pollJob issues a single bounded poll for one job and advances its state
// machine. Only this call mutates the job record.
func (s *Sweeper) pollJob(ctx context.Context, job *domain.Job, now time.Time) outcome {
	rec, err := s.registry.Resolve(job.Model)
	if err != nil {
		s.fail(ctx, job, &domain.JobError{Kind: domain.ErrKindBackend, Message: err.Error()})
		return outcomeFailed
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	result, err := rec.Poll(pollCtx, job.OperationHandle)
	cancel()
	if err != nil {
		// A slow or unreachable backend is not a job failure; the job is
		// retried next sweep until its TTL runs out.
		s.retry(ctx, job, now)
		s.logger.Warn().Err(err).
			Str("job_id", job.ID).
			Str("kind", string(domain.ErrKindPollTimeout)).
			Int("attempt", job.Attempt).
			Msg("scheduler: poll did not complete")
		return outcomeTransient
	}

	switch result.State {
	case adapter.StateDone:
		output, err := rec.ExtractOutput(ctx, result, job.ID)
		if err != nil {
			s.fail(ctx, job, toJobError(err))
			return outcomeFailed
		}
		job.Status = domain.JobStatusSucceeded
		job.Response = output.Response
		job.Files = output.Files
		job.OperationHandle = ""
		job.Attempt++
		s.update(ctx, job)
		s.logger.Info().Str("job_id", job.ID).Int("files", len(output.Files)).Msg("scheduler: job succeeded")
		return outcomeSucceeded

	case adapter.StateErrored:
		s.fail(ctx, job, result.Err)
		return outcomeFailed

	default:
		s.retry(ctx, job, now)
		return outcomePending
	}
}

func (s *Sweeper) retry(ctx context.Context, job *domain.Job, now time.Time) {
	job.Attempt++
	job.NextPollAt = now.Add(s.cfg.PollInterval)
	s.update(ctx, job)
}

func (s *Sweeper) expire(ctx context.Context, job *domain.Job) {
	job.Status = domain.JobStatusExpired
	job.Error = &domain.JobError{Kind: domain.ErrKindExpired, Message: "job exceeded its ttl while running"}
	job.OperationHandle = ""
	s.update(ctx, job)
	s.logger.Warn().Str("job_id", job.ID).Int("attempt", job.Attempt).Msg("scheduler: job expired")
}

func (s *Sweeper) fail(ctx context.Context, job *domain.Job, jobErr *domain.JobError) {
	job.Status = domain.JobStatusFailed
	job.Error = jobErr
	job.OperationHandle = ""
	s.update(ctx, job)
	s.logger.Error().Str("job_id", job.ID).Str("kind", string(jobErr.Kind)).Str("reason", jobErr.Message).
		Msg("scheduler: job failed")
}

func (s *Sweeper) update(ctx context.Context, job *domain.Job) {
	if err := s.store.Update(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: persist job failed")
	}
}

func toJobError(err error) *domain.JobError {
	if jobErr, ok := err.(*domain.JobError); ok {
		return jobErr
	}
	return &domain.JobError{Kind: domain.ErrKindBackend, Message: err.Error()}
}
