package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"activity_sync/internal/domain"
	"activity_sync/internal/normalize"
)

type ActivityStore interface {
	SnapshotByProvider(ctx context.Context, providerID int64) (map[string]domain.ActivitySnapshot, error)
	Upsert(ctx context.Context, activity *domain.Activity) (int64, error)
	DeactivateMissing(ctx context.Context, providerID int64, scrapedIDs []string) ([]string, error)
}

type SessionStore interface {
	ReplaceForActivity(ctx context.Context, activityID int64, sessions []domain.Session) error
}

type PrerequisiteStore interface {
	ReplaceForActivity(ctx context.Context, activityID int64, prereqs []domain.Prerequisite) error
}

type HistoryStore interface {
	Record(ctx context.Context, activityID int64, changes []domain.FieldChange) error
}

type LocationStore interface {
	Upsert(ctx context.Context, location *domain.Location) (int64, error)
}

type ProviderStore interface {
	ListActive(ctx context.Context) ([]domain.Provider, error)
}

type JobStore interface {
	Create(ctx context.Context, providerID int64) (*domain.ScrapeJob, error)
	Start(ctx context.Context, jobID int64) error
	Complete(ctx context.Context, jobID int64, metrics domain.JobMetrics) error
	Fail(ctx context.Context, jobID int64, message string, details []byte) error
	CancelStale(ctx context.Context, cutoff time.Time, message string) (int64, error)
	LastCompletedAt(ctx context.Context, providerID int64) (*time.Time, error)
	HasRunning(ctx context.Context, providerID int64) (bool, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	WithSavepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event domain.ActivityEvent) error
	Close() error
}

// Source fetches raw records for one provider and exposes the field
// mapping for its platform. How the records were produced (API walk,
// DOM scrape) is the source's business.
type Source interface {
	Platform() string
	FetchRecords(ctx context.Context, provider domain.Provider) ([]normalize.RawRecord, error)
	Mapping() normalize.Mapping
}

// Synchronizer reconciles one provider's normalized batch against
// stored state.
type Synchronizer interface {
	Synchronize(ctx context.Context, providerID int64, records []domain.Activity) (*domain.SyncSummary, error)
}
