// Package adapter represents each backend model as a capability record: a
// plain struct of function values for start, poll and output extraction.
// Records share logic through ordinary helpers; whether a backend is
// synchronous or long-running is hidden behind the record.
package adapter

import (
	"context"
	"encoding/json"

	"mediaforge/internal/domain"
)

// State is the tri-state outcome of a single poll.
type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
	StateErrored State = "errored"
)

// OperationResult is what one poll of a long-running operation produced.
// Payload is set for done, Err for errored.
type OperationResult struct {
	State   State
	Payload json.RawMessage
	Err     *domain.JobError
}

// ModelOutput is the normalized artifact a model produced: stored files plus
// any inline text, and the raw backend response for the job record.
type ModelOutput struct {
	Files    map[string]domain.FileRef
	Text     string
	Response json.RawMessage
}

// StartResult is the outcome of starting an operation: an operation handle
// for asynchronous models, or the finished output for synchronous ones.
type StartResult struct {
	OperationHandle string
	Output          *ModelOutput
}

// Capability is the set of operations one backend model exposes. Start is
// always present; Poll and ExtractOutput only for asynchronous models.
// Records are immutable after registration.
type Capability struct {
	ModelID string
	Async   bool

	Start         func(ctx context.Context, request json.RawMessage, jobID string) (*StartResult, error)
	Poll          func(ctx context.Context, operationHandle string) (*OperationResult, error)
	ExtractOutput func(ctx context.Context, result *OperationResult, jobID string) (*ModelOutput, error)
}
