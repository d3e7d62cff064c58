package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"activity_sync/internal/domain"
	"activity_sync/internal/observability"
)

// StaleJobMessage is stored on jobs cancelled by the staleness sweep.
const StaleJobMessage = "scrape job timed out"

// JobTracker drives the scrape job state machine:
// pending -> running -> completed | failed | cancelled.
type JobTracker struct {
	jobs   JobStore
	logger *slog.Logger
}

func NewJobTracker(jobs JobStore, logger *slog.Logger) *JobTracker {
	return &JobTracker{jobs: jobs, logger: logger}
}

func (t *JobTracker) Create(ctx context.Context, providerID int64) (*domain.ScrapeJob, error) {
	job, err := t.jobs.Create(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	observability.RecordJobTransition(domain.JobPending)
	t.logger.Debug("job created", "job_id", job.ID, "provider_id", providerID)
	return job, nil
}

func (t *JobTracker) Start(ctx context.Context, jobID int64) error {
	if err := t.jobs.Start(ctx, jobID); err != nil {
		return fmt.Errorf("start job %d: %w", jobID, err)
	}
	observability.RecordJobTransition(domain.JobRunning)
	return nil
}

func (t *JobTracker) Complete(ctx context.Context, jobID int64, metrics domain.JobMetrics) error {
	if err := t.jobs.Complete(ctx, jobID, metrics); err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	observability.RecordJobTransition(domain.JobCompleted)
	t.logger.Info("job completed",
		"job_id", jobID,
		"found", metrics.Found,
		"created", metrics.Created,
		"updated", metrics.Updated,
		"removed", metrics.Removed,
	)
	return nil
}

// Fail marks the job failed with the error message and a structured
// detail blob. Raw errors never travel past this boundary.
func (t *JobTracker) Fail(ctx context.Context, jobID int64, cause error) error {
	details, _ := json.Marshal(map[string]string{
		"error": fmt.Sprintf("%+v", cause),
	})
	if err := t.jobs.Fail(ctx, jobID, cause.Error(), details); err != nil {
		return fmt.Errorf("fail job %d: %w", jobID, err)
	}
	observability.RecordJobTransition(domain.JobFailed)
	t.logger.Warn("job failed", "job_id", jobID, "error", cause)
	return nil
}

// CancelStale sweeps jobs stuck in running or pending past maxAge and
// cancels them. This is the safety net against an orchestrator crash
// leaving a job blocking its provider forever; it corrects persisted
// status only.
func (t *JobTracker) CancelStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("stale job max age must be positive, got %s", maxAge)
	}

	cancelled, err := t.jobs.CancelStale(ctx, time.Now().Add(-maxAge), StaleJobMessage)
	if err != nil {
		return 0, fmt.Errorf("cancel stale jobs: %w", err)
	}
	if cancelled > 0 {
		for i := int64(0); i < cancelled; i++ {
			observability.RecordJobTransition(domain.JobCancelled)
		}
		t.logger.Warn("cancelled stale jobs", "count", cancelled, "max_age", maxAge)
	}
	return cancelled, nil
}

// ShouldScrape reports whether the provider is due: it has no completed
// job yet, or its most recent completed job is older than interval.
func (t *JobTracker) ShouldScrape(ctx context.Context, providerID int64, interval time.Duration) (bool, error) {
	if interval <= 0 {
		return false, fmt.Errorf("scrape interval must be positive, got %s", interval)
	}

	lastCompleted, err := t.jobs.LastCompletedAt(ctx, providerID)
	if err != nil {
		return false, fmt.Errorf("last completed job: %w", err)
	}
	if lastCompleted == nil {
		return true, nil
	}
	return time.Since(*lastCompleted) >= interval, nil
}

// HasActive reports whether a job is already pending or running for the
// provider. Callers use it to keep synchronization of one provider
// exclusive.
func (t *JobTracker) HasActive(ctx context.Context, providerID int64) (bool, error) {
	return t.jobs.HasRunning(ctx, providerID)
}
