package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Dexploarer/hyper-forge-sub006/internal/adapter/repo"
	"github.com/Dexploarer/hyper-forge-sub006/internal/bootstrap"
	"github.com/Dexploarer/hyper-forge-sub006/internal/generation"
	"github.com/Dexploarer/hyper-forge-sub006/internal/http/handlers"
	httpapi "github.com/Dexploarer/hyper-forge-sub006/internal/http/httpapi"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra/credentials"
	"github.com/Dexploarer/hyper-forge-sub006/internal/pipeline"
	"github.com/Dexploarer/hyper-forge-sub006/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := cfg.ServiceLogger("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	if err := repo.Migrate(ctx, runner); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate schema")
	}
	if err := credentials.NewStore(runner).FillMissing(ctx, cfg); err != nil {
		logger.Warn().Err(err).Msg("failed to load stored provider keys")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	q, err := queue.NewRedisQueue(rdb, queue.Options{Prefix: cfg.QueuePrefix, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure queue")
	}

	pipelines := repo.NewPipelineRepository(runner)
	jobs := repo.NewJobRepository(runner, nil)

	app := handlers.NewApp(&logger)
	app.Progress = q
	app.Checks["database"] = dbpool.Ping
	app.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	genOpts := generation.Options{Jobs: jobs, Queue: q, Logger: &logger}
	var staticDir string

	// Direct runs need live vendor clients; without them only the job API is served.
	providers, err := bootstrap.NewProviders(cfg, &logger)
	if err != nil {
		logger.Warn().Err(err).Msg("direct pipeline runs disabled")
		_, staticDir, err = bootstrap.NewUploader(cfg, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure storage")
		}
	} else {
		svc, err := pipeline.NewService(ctx, providers.Dependencies(pipeline.Dependencies{
			Repo:   pipelines,
			Logger: &logger,
		}))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure pipeline service")
		}
		defer svc.Close()
		app.Pipelines = svc
		genOpts.Pipelines = svc
		staticDir = providers.StaticDir
	}

	gen, err := generation.NewService(genOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generation service")
	}
	app.Generation = gen

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		Logger:          logger,
		StaticDir:       staticDir,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
