package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ErrInvalidTransition is returned when a job transition is requested
// from a state that does not permit it.
var ErrInvalidTransition = errors.New("invalid job transition")

// ScrapeJob records one attempt to synchronize one provider.
// Rows are never deleted.
type ScrapeJob struct {
	ID           int64           `db:"id"`
	ProviderID   int64           `db:"provider_id"`
	Status       JobStatus       `db:"status"`
	StartedAt    *time.Time      `db:"started_at"`
	CompletedAt  *time.Time      `db:"completed_at"`
	Found        int             `db:"activities_found"`
	Created      int             `db:"activities_created"`
	Updated      int             `db:"activities_updated"`
	Removed      int             `db:"activities_removed"`
	ErrorMessage *string         `db:"error_message"`
	ErrorDetails json.RawMessage `db:"error_details"`
	CreatedAt    time.Time       `db:"created_at"`
}

// JobMetrics are the counts stored when a job completes.
type JobMetrics struct {
	Found   int
	Created int
	Updated int
	Removed int
}
