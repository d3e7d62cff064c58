package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"activity_sync/internal/domain"
)

// ProviderSyncer runs one provider's synchronization end to end.
type ProviderSyncer interface {
	SyncProvider(ctx context.Context, provider domain.Provider) (*domain.SyncSummary, error)
}

// ProviderLister supplies the providers eligible for scheduling.
type ProviderLister interface {
	ListActive(ctx context.Context) ([]domain.Provider, error)
}

// JobGate is the slice of the job tracker the scheduler needs:
// freshness gating, exclusivity, and the stale-job sweep.
type JobGate interface {
	ShouldScrape(ctx context.Context, providerID int64, interval time.Duration) (bool, error)
	HasActive(ctx context.Context, providerID int64) (bool, error)
	CancelStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

type Config struct {
	TickInterval           time.Duration
	ScrapeInterval         time.Duration
	StaleJobMaxAge         time.Duration
	MaxConcurrentProviders int
	RunTimeout             time.Duration
}

// Scheduler periodically sweeps stale jobs and synchronizes due
// providers. Different providers run concurrently up to the configured
// limit; one provider is never synchronized by two runs at once.
type Scheduler struct {
	providers ProviderLister
	syncer    ProviderSyncer
	jobs      JobGate
	cfg       Config
	logger    *slog.Logger
}

func NewScheduler(providers ProviderLister, syncer ProviderSyncer, jobs JobGate, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		providers: providers,
		syncer:    syncer,
		jobs:      jobs,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"tick", s.cfg.TickInterval,
		"scrape_interval", s.cfg.ScrapeInterval,
		"max_concurrent", s.cfg.MaxConcurrentProviders,
	)

	s.runCycle(ctx)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.jobs.CancelStale(ctx, s.cfg.StaleJobMaxAge); err != nil {
		s.logger.Error("stale job sweep failed", "error", err)
	}

	providers, err := s.providers.ListActive(ctx)
	if err != nil {
		s.logger.Error("list providers failed", "error", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrentProviders)
	for _, provider := range providers {
		provider := provider
		g.Go(func() error {
			s.runProvider(ctx, provider)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) runProvider(ctx context.Context, provider domain.Provider) {
	due, err := s.jobs.ShouldScrape(ctx, provider.ID, s.cfg.ScrapeInterval)
	if err != nil {
		s.logger.Error("freshness check failed", "provider_id", provider.ID, "error", err)
		return
	}
	if !due {
		return
	}

	active, err := s.jobs.HasActive(ctx, provider.ID)
	if err != nil {
		s.logger.Error("active job check failed", "provider_id", provider.ID, "error", err)
		return
	}
	if active {
		s.logger.Debug("skipping provider with active job", "provider_id", provider.ID)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	if _, err := s.syncer.SyncProvider(runCtx, provider); err != nil {
		s.logger.Error("provider sync failed", "provider_id", provider.ID, "error", err)
	}
}
