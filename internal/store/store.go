// Package store persists job records. Postgres is the production backend;
// Memory backs tests and local runs without a database.
package store

import (
	"context"
	"time"

	"mediaforge/internal/domain"
)

// JobStore is the persistence contract for job records. ListRunningDue
// returns running jobs whose next poll is due; TTL handling is scheduler
// logic, not a store concern.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	ListRunningDue(ctx context.Context, now time.Time) ([]*domain.Job, error)
}
