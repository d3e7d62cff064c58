package domain

import "time"

// RecordError reports one record that failed inside a batch without
// aborting it.
type RecordError struct {
	ExternalID string `json:"externalId"`
	Message    string `json:"message"`
}

// SyncSummary is the outcome of one synchronization batch for one
// provider.
type SyncSummary struct {
	ProviderID  int64
	Found       int
	Created     int
	Updated     int
	Deactivated int
	Errors      []RecordError
	Events      []ActivityEvent
	Duration    time.Duration
}

// Event actions emitted after a batch commits.
const (
	ActionCreated     = "created"
	ActionUpdated     = "updated"
	ActionDeactivated = "deactivated"
)

// ActivityEvent describes one activity-level outcome of a batch, for
// downstream consumers.
type ActivityEvent struct {
	Action     string    `json:"action"`
	ProviderID int64     `json:"providerId"`
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
