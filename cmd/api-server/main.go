package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/api"
	"github.com/hackgods/triage-scheduling/internal/appointment"
	"github.com/hackgods/triage-scheduling/internal/config"
	"github.com/hackgods/triage-scheduling/internal/db"
	"github.com/hackgods/triage-scheduling/internal/doctor"
	"github.com/hackgods/triage-scheduling/internal/identity"
	"github.com/hackgods/triage-scheduling/internal/logging"
	"github.com/hackgods/triage-scheduling/internal/matching"
	"github.com/hackgods/triage-scheduling/internal/notification"
	redisclient "github.com/hackgods/triage-scheduling/internal/redis"
	"github.com/hackgods/triage-scheduling/internal/triage"
)

var version = "dev"

// demoDoctorsPerSpecialization sizes the roster of the memory store driver.
const demoDoctorsPerSpecialization = 3

type stores struct {
	repo          appointment.Repository
	notifications notification.Store
	directory     doctor.Directory
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.Init("api-server", "dev", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Init("api-server", cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store_driver", cfg.StoreDriver).
		Str("lock_backend", cfg.LockBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kb := triage.DefaultKnowledgeBase()
	if cfg.TriageRulesPath != "" {
		kb, err = triage.LoadKnowledgeBase(cfg.TriageRulesPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.TriageRulesPath).Msg("triage rules load error")
		}
		logger.Info().Str("path", cfg.TriageRulesPath).Msg("loaded triage rules")
	}

	var (
		pgPool *pgxpool.Pool
		st     stores
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if cfg.MigrateOnStart {
			if err := db.Migrate(cfg.PostgresDSN, logging.Component("migrations")); err != nil {
				logger.Fatal().Err(err).Msg("migration error")
			}
		}

		// Connect Postgres
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		st = stores{
			repo:          appointment.NewPgRepository(pgPool),
			notifications: notification.NewPgStore(pgPool),
			directory:     doctor.NewPgDirectory(pgPool),
		}
	default:
		roster := doctor.Fake(gofakeit.New(0), specializationNames(kb), demoDoctorsPerSpecialization*len(kb.Specializations()))
		st = stores{
			repo:          appointment.NewMemoryRepository(),
			notifications: notification.NewMemoryStore(),
			directory:     doctor.NewMemoryDirectory(roster...),
		}
		logger.Warn().Int("doctors", len(roster)).Msg("using in-memory stores, data is lost on restart")
	}

	// Connect Redis
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Msg("connected to Redis")
	}

	var locker redisclient.Locker
	if cfg.LockBackend == config.LockBackendRedis {
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	} else {
		locker = redisclient.NewLocalSlotLocker(cfg.LockTTL)
	}

	directory := doctor.NewBreakerDirectory(st.directory, doctor.BreakerSettings{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logging.Component("directory"))

	var analyzer triage.Analyzer = triage.NewClassifier(kb)
	if cfg.TriageCacheSize > 0 {
		cached, err := triage.NewCachedClassifier(analyzer, cfg.TriageCacheSize)
		if err != nil {
			logger.Fatal().Err(err).Msg("triage cache error")
		}
		analyzer = cached
	}

	matcher := matching.NewMatcher(directory, kb.DefaultSpecialization(),
		matching.WithTimeout(cfg.StoreTimeout),
		matching.WithLogger(logging.Component("matcher")),
	)

	var svc *appointment.Service
	dispatcherOpts := []notification.Option{
		notification.WithTTL(cfg.NotificationTTL),
		notification.WithTimeout(cfg.StoreTimeout),
		notification.WithLogger(logging.Component("notifications")),
		notification.WithPresence(directory),
		notification.WithAppointments(notification.AppointmentReaderFunc(
			func(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointment.Appointment, error) {
				return svc.GetAppointment(ctx, p, id)
			})),
	}

	var relay *redisclient.Relay
	if cfg.NotificationRelay {
		relay = redisclient.NewRelay(rdb, "", logging.Component("relay"))
		nodeID, _ := os.Hostname()
		dispatcherOpts = append(dispatcherOpts, notification.WithRelay(relay, nodeID+"-"+uuid.NewString()[:8]))
	}

	dispatcher := notification.NewDispatcher(
		st.notifications,
		notification.NewRegistry(cfg.SessionBuffer, logging.Component("sessions")),
		dispatcherOpts...,
	)

	svc = appointment.NewService(st.repo, locker, directory, cfg,
		appointment.WithNotifier(dispatcher),
		appointment.WithTriage(analyzer, matcher),
		appointment.WithLogger(logging.Component("scheduler")),
	)

	if relay != nil {
		go func() {
			if err := relay.Run(rootCtx, dispatcher.HandleRelay); err != nil {
				logger.Error().Err(err).Msg("notification relay stopped")
			}
		}()
	}

	var limiter *api.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter, err = api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("rate limiter error")
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Notifications: dispatcher,
		Analyzer:      analyzer,
		Knowledge:     kb,
		RateLimiter:   limiter,
		PgPool:        pgPool,
		Redis:         rdb,
		Logger:        logging.Component("http"),
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdown(srv, cfg.ShutdownTimeout, logger)
}

func shutdown(srv *http.Server, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return
	}
	logger.Info().Msg("api-server stopped")
}

func specializationNames(kb *triage.KnowledgeBase) []string {
	specs := kb.Specializations()
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name())
	}
	return names
}
