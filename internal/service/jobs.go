// Package service ties intake together: it owns the requested→starting
// transition and everything the intake path may do to a job. Transitions out
// of running belong to the scheduler alone.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mediaforge/internal/adapter"
	"mediaforge/internal/analyzer"
	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/store"
)

// Queue hands a newly created job to the worker. A nil queue makes intake
// start jobs inline, which is what tests and single-process runs use.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Tunables are the scheduling constants the intake path stamps onto new jobs.
type Tunables struct {
	JobTTL       time.Duration
	PollInterval time.Duration
}

// IntakeRequest is one incoming generation request: either a free-form
// prompt, or an already-structured request naming its model.
type IntakeRequest struct {
	Prompt  string
	Model   string
	Request json.RawMessage
}

// JobService implements the two external entry points: handle a new job and
// answer job lookups. Sweeping lives in the scheduler package.
type JobService struct {
	store    store.JobStore
	registry *adapter.Registry
	pipeline *analyzer.Pipeline
	queue    Queue
	cfg      Tunables
	logger   infra.Logger
	now      func() time.Time
}

// NewJobService wires the intake service.
func NewJobService(jobs store.JobStore, registry *adapter.Registry, pipeline *analyzer.Pipeline, queue Queue, cfg Tunables, logger infra.Logger) *JobService {
	return &JobService{
		store:    jobs,
		registry: registry,
		pipeline: pipeline,
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Intake validates the request shape, persists the job in requested state
// and hands it to the worker. Structured requests naming an unknown model
// are rejected before anything is persisted — before any analyzer run or
// schema lookup.
func (s *JobService) Intake(ctx context.Context, req IntakeRequest) (*domain.Job, error) {
	if req.Prompt == "" && (req.Model == "" || len(req.Request) == 0) {
		return nil, fmt.Errorf("intake requires a prompt or a model with a structured request")
	}
	if req.Model != "" {
		if _, err := s.registry.Resolve(req.Model); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Model:     req.Model,
		Status:    domain.JobStatusRequested,
		Prompt:    req.Prompt,
		Request:   req.Request,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info().Str("job_id", job.ID).Str("model", job.Model).Msg("service: job accepted")

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, job.ID); err != nil {
			return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
		}
		return job, nil
	}
	return s.StartJob(ctx, job.ID)
}

// StartJob is the "handle new job" entry point: it resolves the structured
// request (running the analyzer when intake was a bare prompt), validates it
// and starts the backend operation. Synchronous models finish here;
// asynchronous ones leave in running state for the sweeper.
func (s *JobService) StartJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusRequested {
		return job, nil
	}

	if job.Model == "" || len(job.Request) == 0 {
		result, err := s.pipeline.Analyze(ctx, job.Prompt)
		if err != nil {
			return s.failJob(ctx, job, err)
		}
		job.Model = result.Model
		job.Request = result.Request
		job.Reasoning = result.Reasoning
	}

	rec, err := s.registry.Resolve(job.Model)
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	job.Status = domain.JobStatusStarting
	if err := s.store.Update(ctx, job); err != nil {
		return nil, err
	}

	started, err := rec.Start(ctx, job.Request, job.ID)
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	now := s.now().UTC()
	if rec.Async {
		job.Status = domain.JobStatusRunning
		job.OperationHandle = started.OperationHandle
		job.Attempt = 0
		job.NextPollAt = now
		job.TTLAt = now.Add(s.cfg.JobTTL)
	} else {
		job.Status = domain.JobStatusSucceeded
		job.Response = started.Output.Response
		job.Files = started.Output.Files
	}
	if err := s.store.Update(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info().Str("job_id", job.ID).Str("model", job.Model).Str("status", string(job.Status)).
		Msg("service: job started")
	return job, nil
}

// Get returns one job record.
func (s *JobService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.Get(ctx, jobID)
}

// Cancel marks a job canceled. The cancellation is cooperative: an in-flight
// backend operation is not interrupted, the sweeper simply never selects the
// job again.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("job %s is already %s", jobID, job.Status)
	}
	job.Status = domain.JobStatusCanceled
	job.OperationHandle = ""
	if err := s.store.Update(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info().Str("job_id", job.ID).Msg("service: job canceled")
	return job, nil
}

// failJob records a fatal intake error on the job and returns the error to
// the caller. No fatal kind is ever dropped without landing on the record.
func (s *JobService) failJob(ctx context.Context, job *domain.Job, cause error) (*domain.Job, error) {
	job.Status = domain.JobStatusFailed
	job.OperationHandle = ""
	job.Error = classify(cause)
	if err := s.store.Update(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("service: persist failed job")
	}
	s.logger.Error().Str("job_id", job.ID).Str("kind", string(job.Error.Kind)).Str("reason", job.Error.Message).
		Msg("service: job failed")
	return job, cause
}

func classify(err error) *domain.JobError {
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		return jobErr
	}
	if errors.Is(err, domain.ErrUnknownModel) {
		return &domain.JobError{Kind: domain.ErrKindValidation, Message: err.Error()}
	}
	return &domain.JobError{Kind: domain.ErrKindBackend, Message: err.Error()}
}
