package job

import (
	"context"
	"time"
)

// JobType represents the kind of job
type JobType string

const (
	// JobSpellCheckTrack runs the spell checker over every cue of a track.
	JobSpellCheckTrack JobType = "spellcheck_track"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job represents a queued background task over one track.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	TrackID     string     `json:"trackId"`
	Progress    float64    `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobHandler processes a job. The context is cancelled when the job is
// cancelled or the queue shuts down.
type JobHandler func(ctx context.Context, job *Job, updateProgress func(float64)) error
