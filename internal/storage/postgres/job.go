package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"activity_sync/internal/domain"
)

type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, providerID int64) (*domain.ScrapeJob, error) {
	query := `
		INSERT INTO scrape_jobs (provider_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at`

	job := &domain.ScrapeJob{
		ProviderID: providerID,
		Status:     domain.JobPending,
	}
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, providerID, domain.JobPending).
		Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) Get(ctx context.Context, jobID int64) (*domain.ScrapeJob, error) {
	query := `
		SELECT id, provider_id, status, started_at, completed_at,
		       activities_found, activities_created, activities_updated, activities_removed,
		       error_message, error_details, created_at
		FROM scrape_jobs
		WHERE id = $1`

	var job domain.ScrapeJob
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &job, query, jobID); err != nil {
		return nil, err
	}
	return &job, nil
}

// Start transitions pending (or already running) to running and stamps
// started_at. Any other state is an invalid transition.
func (s *JobStore) Start(ctx context.Context, jobID int64) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2, started_at = COALESCE(started_at, NOW())
		WHERE id = $1 AND status IN ($3, $2)`

	return s.transition(ctx, query, jobID, domain.JobRunning, domain.JobPending)
}

// Complete transitions running to completed and stores the batch
// metrics.
func (s *JobStore) Complete(ctx context.Context, jobID int64, metrics domain.JobMetrics) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2, completed_at = NOW(),
		    activities_found = $3, activities_created = $4,
		    activities_updated = $5, activities_removed = $6
		WHERE id = $1 AND status = $7`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		jobID, domain.JobCompleted,
		metrics.Found, metrics.Created, metrics.Updated, metrics.Removed,
		domain.JobRunning,
	)
	if err != nil {
		return err
	}
	return checkTransition(res)
}

// Fail transitions running to failed and stores the error message plus
// structured detail.
func (s *JobStore) Fail(ctx context.Context, jobID int64, message string, details []byte) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2, completed_at = NOW(), error_message = $3, error_details = $4
		WHERE id = $1 AND status = $5`

	var detailsArg any
	if len(details) > 0 {
		detailsArg = details
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		jobID, domain.JobFailed, message, detailsArg, domain.JobRunning,
	)
	if err != nil {
		return err
	}
	return checkTransition(res)
}

// CancelStale sweeps jobs stuck in a non-terminal state past the
// cutoff and marks them cancelled with the given message: running jobs
// by started_at, pending jobs that never started by created_at. A
// pending row blocks its provider through HasRunning, so it must be
// reaped too. Returns how many jobs were cancelled.
func (s *JobStore) CancelStale(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $1, completed_at = NOW(), error_message = $2
		WHERE (status = $3 AND started_at IS NOT NULL AND started_at < $4)
		   OR (status = $5 AND created_at < $4)`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		domain.JobCancelled, message, domain.JobRunning, cutoff, domain.JobPending,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LastCompletedAt returns when the provider's most recent completed job
// finished, or nil if it never completed a job.
func (s *JobStore) LastCompletedAt(ctx context.Context, providerID int64) (*time.Time, error) {
	query := `
		SELECT completed_at
		FROM scrape_jobs
		WHERE provider_id = $1 AND status = $2
		ORDER BY completed_at DESC
		LIMIT 1`

	var completedAt time.Time
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &completedAt, query, providerID, domain.JobCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &completedAt, nil
}

func (s *JobStore) HasRunning(ctx context.Context, providerID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM scrape_jobs
			WHERE provider_id = $1 AND status IN ($2, $3)
		)`

	var running bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &running, query, providerID, domain.JobRunning, domain.JobPending)
	return running, err
}

func (s *JobStore) transition(ctx context.Context, query string, jobID int64, args ...any) error {
	queryArgs := append([]any{jobID}, args...)
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, queryArgs...)
	if err != nil {
		return err
	}
	return checkTransition(res)
}

func checkTransition(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}
