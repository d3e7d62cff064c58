package service

import (
	"context"
	"fmt"
	"log/slog"

	"activity_sync/internal/domain"
	"activity_sync/internal/normalize"
	"activity_sync/internal/observability"
)

// SyncService runs the full per-provider pipeline: job bookkeeping,
// fetch, normalization, reconciliation, and post-commit event
// publishing.
type SyncService struct {
	sources    map[string]Source
	reconciler Synchronizer
	jobs       *JobTracker
	publisher  Publisher
	logger     *slog.Logger
}

func NewSyncService(
	sources map[string]Source,
	reconciler Synchronizer,
	jobs *JobTracker,
	publisher Publisher,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		sources:    sources,
		reconciler: reconciler,
		jobs:       jobs,
		publisher:  publisher,
		logger:     logger,
	}
}

// SyncProvider synchronizes one provider under a fresh scrape job. The
// caller sees either a summary with a completed job, or an error with
// the job marked failed.
func (s *SyncService) SyncProvider(ctx context.Context, provider domain.Provider) (*domain.SyncSummary, error) {
	logger := s.logger.With("provider", provider.Name, "provider_id", provider.ID)

	source, ok := s.sources[provider.Platform]
	if !ok {
		return nil, fmt.Errorf("no source registered for platform %q", provider.Platform)
	}

	job, err := s.jobs.Create(ctx, provider.ID)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Start(ctx, job.ID); err != nil {
		return nil, err
	}

	summary, err := s.run(ctx, source, provider, logger)
	if err != nil {
		if failErr := s.jobs.Fail(ctx, job.ID, err); failErr != nil {
			logger.Error("could not mark job failed", "job_id", job.ID, "error", failErr)
		}
		return nil, err
	}

	metrics := domain.JobMetrics{
		Found:   summary.Found,
		Created: summary.Created,
		Updated: summary.Updated,
		Removed: summary.Deactivated,
	}
	if err := s.jobs.Complete(ctx, job.ID, metrics); err != nil {
		return summary, err
	}

	s.publishEvents(ctx, summary, logger)
	observability.RecordSyncSummary(summary)

	return summary, nil
}

func (s *SyncService) run(ctx context.Context, source Source, provider domain.Provider, logger *slog.Logger) (*domain.SyncSummary, error) {
	raw, err := source.FetchRecords(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	logger.Info("fetched raw records", "count", len(raw))

	records := s.normalizeAll(raw, source.Mapping(), logger)

	summary, err := s.reconciler.Synchronize(ctx, provider.ID, records)
	if err != nil {
		return nil, fmt.Errorf("synchronize: %w", err)
	}
	return summary, nil
}

// normalizeAll maps raw records into canonical activities. A record
// failing validation is dropped with a logged reason; it never aborts
// the batch.
func (s *SyncService) normalizeAll(raw []normalize.RawRecord, mapping normalize.Mapping, logger *slog.Logger) []domain.Activity {
	records := make([]domain.Activity, 0, len(raw))
	for _, rawRecord := range raw {
		activity, err := normalize.Normalize(rawRecord, mapping)
		if err != nil {
			logger.Warn("dropping invalid record", "reason", err)
			continue
		}
		records = append(records, *activity)
	}
	return records
}

// publishEvents emits per-activity change events after the batch has
// committed. A nil publisher disables publishing; publish failures are
// logged, never fatal.
func (s *SyncService) publishEvents(ctx context.Context, summary *domain.SyncSummary, logger *slog.Logger) {
	if s.publisher == nil {
		return
	}
	for _, event := range summary.Events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			logger.Warn("publish event",
				"action", event.Action,
				"external_id", event.ExternalID,
				"error", err,
			)
		}
	}
}
