package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"activity_sync/internal/config"
	"activity_sync/internal/publisher"
	"activity_sync/internal/scheduler"
	"activity_sync/internal/service"
	"activity_sync/internal/source/perfectmind"
	"activity_sync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	activityStore := postgres.NewActivityStore(db)
	sessionStore := postgres.NewSessionStore(db)
	prereqStore := postgres.NewPrerequisiteStore(db)
	historyStore := postgres.NewHistoryStore(db)
	locationStore := postgres.NewLocationStore(db)
	providerStore := postgres.NewProviderStore(db)
	jobStore := postgres.NewJobStore(db)
	txManager := postgres.NewTransactionManager(db)

	reconciler := service.NewReconciler(
		activityStore,
		sessionStore,
		prereqStore,
		historyStore,
		locationStore,
		txManager,
		logger,
	)
	jobTracker := service.NewJobTracker(jobStore, logger)

	pmSource := perfectmind.New(perfectmind.Config{
		BaseURL:        cfg.API.BaseURL,
		PageSize:       cfg.API.PageSize,
		Timeout:        cfg.API.Timeout,
		MaxAttempts:    cfg.API.Retry.MaxAttempts,
		InitialBackoff: cfg.API.Retry.InitialBackoff,
		MaxBackoff:     cfg.API.Retry.MaxBackoff,
	}, logger)

	sources := map[string]service.Source{
		perfectmind.Platform: pmSource,
	}

	syncService := service.NewSyncService(sources, reconciler, jobTracker, rabbitMQ, logger)

	sched := scheduler.NewScheduler(providerStore, syncService, jobTracker, scheduler.Config{
		TickInterval:           cfg.Sync.TickInterval,
		ScrapeInterval:         cfg.Sync.Interval(),
		StaleJobMaxAge:         cfg.Sync.StaleJobMaxAge,
		MaxConcurrentProviders: cfg.Sync.MaxConcurrentProviders,
		RunTimeout:             cfg.Sync.RunTimeout,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("starting activity syncer",
		"tick", cfg.Sync.TickInterval,
		"interval_hours", cfg.Sync.IntervalHours,
		"stale_job_max_age", cfg.Sync.StaleJobMaxAge,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
