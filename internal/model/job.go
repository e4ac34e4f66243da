package model

import "time"

// JobStatus represents the current state of a geocoding job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status can never transition again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// GeocodeJob is the durable record of one enrichment run over a roster
// version. It is the entire contract a poller needs: status, counters,
// timestamps, and an optional error message. Jobs are never deleted.
type GeocodeJob struct {
	ID        string    `json:"id"`
	VersionID string    `json:"version_id"`
	Status    JobStatus `json:"status"`

	Total     int `json:"total"`
	Processed int `json:"processed"`
	Geocoded  int `json:"geocoded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobProgress is the counter snapshot the engine checkpoints to the store
// after every tenth processed record and at the end of a run.
type JobProgress struct {
	Processed int
	Geocoded  int
	Failed    int
	Skipped   int
}
