package domain

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks one asynchronous generation attempt. Job IDs are generated fresh
// per attempt and are unrelated to cache keys; concurrent requests for the
// same key create independent jobs.
type Job struct {
	ID           string
	CacheKey     string
	Status       JobStatus
	ResultKey    string
	ErrorMessage string
	Attempts     int
	// LeaseExpiresAt bounds how long a job may stay in processing before the
	// poll path force-fails it.
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
