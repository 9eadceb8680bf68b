package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mediaforge/internal/domain"
)

// Memory is an in-process JobStore. Jobs are copied on the way in and out so
// callers never share record memory with the store.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*domain.Job)}
}

func (m *Memory) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("store: job %s already exists", job.ID)
	}
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(job), nil
}

func (m *Memory) Update(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *Memory) ListRunningDue(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.Job
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusRunning && !job.NextPollAt.After(now) {
			due = append(due, copyJob(job))
		}
	}
	return due, nil
}

func copyJob(job *domain.Job) *domain.Job {
	dup := *job
	if job.Files != nil {
		dup.Files = make(map[string]domain.FileRef, len(job.Files))
		for k, v := range job.Files {
			dup.Files[k] = v
		}
	}
	if job.Reasoning != nil {
		dup.Reasoning = append([]string(nil), job.Reasoning...)
	}
	if job.Error != nil {
		e := *job.Error
		dup.Error = &e
	}
	return &dup
}

var _ JobStore = (*Memory)(nil)
