package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusRequested JobStatus = "requested"
	JobStatusStarting  JobStatus = "starting"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusExpired   JobStatus = "expired"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether the status represents a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusExpired, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// FileRef describes one stored output artifact.
type FileRef struct {
	StorageURI string `json:"storageUri"`
	SignedURL  string `json:"signedUrl,omitempty"`
	MIMEType   string `json:"mimeType,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

// Job is the persistent unit of work for one generation request.
//
// OperationHandle is set if and only if the job belongs to an asynchronous
// model and its status is starting or running. Only the intake path moves a
// job out of requested; only the poll sweep moves it out of running.
type Job struct {
	ID        string
	Model     string
	Status    JobStatus
	Prompt    string
	Request   json.RawMessage
	Response  json.RawMessage
	Error     *JobError
	Files     map[string]FileRef
	Reasoning []string

	OperationHandle string
	Attempt         int
	NextPollAt      time.Time
	TTLAt           time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the job's TTL has passed at the given instant.
func (j *Job) Expired(now time.Time) bool {
	return !j.TTLAt.IsZero() && !j.TTLAt.After(now)
}
