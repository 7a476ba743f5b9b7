package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Dexploarer/hyper-forge-sub006/internal/adapter/repo"
	"github.com/Dexploarer/hyper-forge-sub006/internal/bootstrap"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra/credentials"
	"github.com/Dexploarer/hyper-forge-sub006/internal/pipeline"
	"github.com/Dexploarer/hyper-forge-sub006/internal/queue"
	"github.com/Dexploarer/hyper-forge-sub006/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := cfg.ServiceLogger("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if err := repo.Migrate(ctx, runner); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema migration failed")
	}

	if err := credentials.NewStore(runner).FillMissing(ctx, cfg); err != nil {
		logger.Warn().Err(err).Msg("worker: failed to load provider keys from store")
	}
	if err := cfg.RequireWorkerUpstreams(); err != nil {
		logger.Fatal().Err(err).Msg("worker: refusing to start")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	q, err := queue.NewRedisQueue(rdb, queue.Options{Prefix: cfg.QueuePrefix, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure queue")
	}

	providers, err := bootstrap.NewProviders(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure providers")
	}

	pipelines := repo.NewPipelineRepository(runner)
	jobs := repo.NewJobRepository(runner, nil)

	svc, err := pipeline.NewService(ctx, providers.Dependencies(pipeline.Dependencies{
		Repo:   pipelines,
		Jobs:   jobs,
		Logger: &logger,
	}))
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pipeline service")
	}
	defer svc.Close()

	sweeper, err := pipeline.NewSweeper(pipeline.SweeperOptions{
		Repo:     pipelines,
		Jobs:     jobs,
		Schedule: cfg.CleanupSchedule,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure sweeper")
	}
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start sweeper")
	}
	defer sweeper.Stop()

	w, err := worker.New(worker.Options{
		Jobs:           jobs,
		Queue:          q,
		Processor:      svc,
		Concurrency:    cfg.WorkerConcurrency,
		MaxRetries:     cfg.WorkerMaxRetries,
		DequeueTimeout: cfg.WorkerDequeueTimeout,
		StatusInterval: cfg.WorkerStatusInterval,
		Logger:         &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure worker")
	}

	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Bool("cdn", cfg.CDNUploadURL != "").
		Msg("worker: started")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
