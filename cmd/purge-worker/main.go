package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/config"
	"github.com/hackgods/triage-scheduling/internal/db"
	"github.com/hackgods/triage-scheduling/internal/logging"
	"github.com/hackgods/triage-scheduling/internal/notification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.Init("purge-worker", "dev", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Init("purge-worker", cfg.Env, cfg.LogLevel)
	if cfg.StoreDriver != config.StoreDriverPostgres {
		logger.Fatal().Str("store_driver", cfg.StoreDriver).Msg("purge worker needs the postgres store driver")
	}
	logger.Info().Dur("interval", cfg.WorkerInterval).Msg("purge-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	dispatcher := notification.NewDispatcher(
		notification.NewPgStore(pgPool),
		notification.NewRegistry(0, logger),
		notification.WithTimeout(cfg.StoreTimeout),
		notification.WithLogger(logger),
	)

	// Run once at startup
	runOnce(rootCtx, dispatcher, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping purge worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, dispatcher, logger)
		}
	}
}

func runOnce(ctx context.Context, d *notification.Dispatcher, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	purged, err := d.PurgeExpired(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("purge run error")
		return
	}
	logger.Info().
		Int64("purged", purged).
		Dur("took", time.Since(start)).
		Msg("purge run complete")
}
