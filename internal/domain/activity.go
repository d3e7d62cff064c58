package domain

import (
	"encoding/json"
	"time"
)

// Activity is the canonical representation of one provider listing.
// Uniqueness is scoped per provider: one row per (ProviderID, ExternalID).
type Activity struct {
	ID         int64
	ProviderID int64
	ExternalID string

	Name        string
	Category    string
	Subcategory *string
	Schedule    *string
	Description *string

	StartDate  *time.Time
	EndDate    *time.Time
	StartTime  *string
	EndTime    *string
	DaysOfWeek []string

	AgeMin *int
	AgeMax *int

	Cost            float64
	CostIncludesTax bool
	TaxAmount       *float64

	SpotsAvailable *int
	TotalSpots     *int

	RegistrationURL        *string
	RegistrationStatus     *string
	RegistrationButtonText *string

	LocationID   *int64
	LocationName *string

	// Venue carries the unresolved location as scraped; the engine upserts
	// it and fills LocationID/LocationName before writing the activity.
	Venue *Location

	RawData json.RawMessage

	IsActive   bool
	LastSeenAt time.Time

	HasMultipleSessions bool
	SessionCount        int
	HasPrerequisites    bool

	Sessions      []Session
	Prerequisites []Prerequisite

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is one concrete occurrence within a multi-session activity.
// Sessions are owned by exactly one activity and replaced wholesale on
// every reconciliation pass.
type Session struct {
	ID            int64
	ActivityID    int64
	SessionNumber int
	Date          *time.Time
	StartTime     *string
	EndTime       *string
	Location      *string
	Instructor    *string
	Notes         *string
}

// Prerequisite is a named requirement attached to an activity; same
// full-replace lifecycle as sessions.
type Prerequisite struct {
	ID          int64
	ActivityID  int64
	Name        string
	Description *string
	URL         *string
	CourseID    *string
	IsRequired  bool
}

// Location is a venue, unique on (Name, Address).
type Location struct {
	ID       int64
	Name     string
	Address  string
	City     string
	Province string
	Facility *string
}

// ActivitySnapshot is the cheap pre-batch projection of an existing
// activity: its row id plus the fields whose changes are recorded in
// history.
type ActivitySnapshot struct {
	ID             int64   `db:"id"`
	ExternalID     string  `db:"external_id"`
	Cost           float64 `db:"cost"`
	SpotsAvailable *int    `db:"spots_available"`
	Schedule       *string `db:"schedule"`
	LocationName   *string `db:"location_name"`
	IsActive       bool    `db:"is_active"`
}

// FieldChange is one tracked-field difference between the stored
// activity and its latest sighting.
type FieldChange struct {
	Field    string
	OldValue *string
	NewValue *string
}

// HistoryEntry is one append-only change-history row.
type HistoryEntry struct {
	ID         int64     `db:"id"`
	ActivityID int64     `db:"activity_id"`
	FieldName  string    `db:"field_name"`
	OldValue   *string   `db:"old_value"`
	NewValue   *string   `db:"new_value"`
	ChangedAt  time.Time `db:"changed_at"`
}
