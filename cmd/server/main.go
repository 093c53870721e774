// Package main is the entrypoint of the articulearn progress engine: the
// service that turns activity attempts into XP, levels and hierarchical
// completion percentages for the learning product.
//
// The layout follows Clean Architecture and DDD:
// - Domain: pure rollup/leveling logic without external dependencies
// - Application: CQRS command/query orchestration
// - Infrastructure: PostgreSQL store, Redis read models, event bus, jobs
// - Interface: REST API
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/articulearn/progress-engine/config"
	"github.com/articulearn/progress-engine/internal/application/command"
	"github.com/articulearn/progress-engine/internal/application/eventhandler"
	"github.com/articulearn/progress-engine/internal/application/query"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/internal/infrastructure/messaging"
	"github.com/articulearn/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/articulearn/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/articulearn/progress-engine/internal/infrastructure/scheduler"
	"github.com/articulearn/progress-engine/internal/infrastructure/scheduler/jobs"
	"github.com/articulearn/progress-engine/internal/infrastructure/service"
	httpserver "github.com/articulearn/progress-engine/internal/interface/http"
	"github.com/articulearn/progress-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{Level: logger.ParseLevel(cfg.Observability.LogLevel)})
	slogger := setupSlog(cfg)

	log.Info("starting articulearn progress engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	var dbConn *postgres.Connection
	if cfg.Database.URL != "" {
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	} else {
		dbConn, err = postgres.NewConnection(ctx, postgres.DefaultConfig())
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.MigrateOnStart {
		log.Info("running database migrations")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional read side)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		snapshots        *redis.SnapshotCache
		leaderboardCache *redis.LeaderboardCache
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, read models disabled", logger.Err(err))
		} else {
			defer redisCache.Close()
			if cfg.Features.LeaderboardEnabled {
				leaderboardCache = redis.NewLeaderboardCache(redisCache)
			}
			snapshots = redis.NewSnapshotCache(redisCache, leaderboardCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES AND STORE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories")
	store := postgres.NewStore(dbConn)
	attemptRepo := postgres.NewAttemptRepository(dbConn)
	progressReader := postgres.NewProgressReader(dbConn)
	statsReader := postgres.NewStatsReader(dbConn)
	catalogReader := postgres.NewCatalogReader(dbConn)
	reconciler := postgres.NewReconciler(dbConn, catalogReader)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS AND HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus")
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = slogger
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus")
		_ = eventBus.Close()
	}()

	var notifier eventhandler.Notifier
	if cfg.Notification.WebhookURL != "" {
		notifier = service.NewWebhookNotifier(cfg.Notification.WebhookURL, log)
	} else {
		notifier = service.NewLogNotifier(log)
	}

	if err := registerEventHandlers(eventBus, notifier, log); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer")

	// Interface values holding typed nils must stay nil-checkable inside
	// the handlers, so pass nil explicitly when Redis is absent.
	var snapshotsDep command.Snapshots
	if snapshots != nil {
		snapshotsDep = snapshots
	}

	recordAttempt := command.NewRecordAttemptHandler(
		store,
		catalogReader,
		eventBus,
		snapshotsDep,
		cfg.XPPolicy.AwardPolicy(),
		log,
	)

	var statsCache query.UserStatsCache
	var progressCache query.CourseProgressCache
	if snapshots != nil {
		statsCache = snapshots
		progressCache = snapshots
	}

	getCourseProgress := query.NewGetCourseProgressHandler(progressReader, progressCache)
	listCourseProgress := query.NewListCourseProgressHandler(progressReader)
	getUserStats := query.NewGetUserStatsHandler(statsReader, statsCache)
	getAttempts := query.NewGetAttemptsHandler(attemptRepo)

	var getLeaderboard *query.GetLeaderboardHandler
	if leaderboardCache != nil {
		getLeaderboard = query.NewGetLeaderboardHandler(leaderboardCache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		log.Info("initializing scheduler")
		sched = scheduler.New(scheduler.Config{Logger: slogger})

		if cfg.Features.ReconciliationEnabled {
			reconcileJob := jobs.NewReconcileProgressJob(
				attemptRepo,
				reconciler,
				slogger,
				jobs.ReconcileProgressConfig{
					Lookback: cfg.Scheduler.ReconcileLookback,
					MaxUsers: cfg.Scheduler.ReconcileMaxUsers,
					Timeout:  cfg.Scheduler.JobTimeout,
				},
			)
			if err := sched.Register(reconcileJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileInterval)); err != nil {
				return fmt.Errorf("failed to register reconcile job: %w", err)
			}
		}

		if leaderboardCache != nil {
			rebuildJob := jobs.NewRebuildLeaderboardJob(
				statsReader,
				leaderboardCache,
				slogger,
				cfg.Scheduler.JobTimeout,
			)
			rebuildAt := scheduler.NewDailySchedule(
				cfg.Scheduler.LeaderboardRebuildHour,
				cfg.Scheduler.LeaderboardRebuildMinute,
			)
			if err := sched.Register(rebuildJob, rebuildAt); err != nil {
				return fmt.Errorf("failed to register leaderboard rebuild job: %w", err)
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server")

	health := httpserver.NewHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", dbConn.Ping)
	if snapshots != nil {
		health.AddCheck("redis", snapshots.Ping)
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.EnableCORS = cfg.HTTP.EnableCORS
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		RecordAttemptHandler:      recordAttempt,
		GetCourseProgressHandler:  getCourseProgress,
		ListCourseProgressHandler: listCourseProgress,
		GetUserStatsHandler:       getUserStats,
		GetLeaderboardHandler:     getLeaderboard,
		GetAttemptsHandler:        getAttempts,
		Logger:                    log,
		HealthChecker:             health,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progress engine is running", logger.String("http_address", server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	// Scheduler, event bus and connections close through defers.
	log.Info("shutdown completed")
	return nil
}

// registerEventHandlers subscribes the notification handlers to the domain
// events they react to.
func registerEventHandlers(bus *messaging.InMemoryEventBus, notifier eventhandler.Notifier, log *logger.Logger) error {
	if err := bus.Subscribe(shared.EventLevelUp, eventhandler.NewOnLevelUp(notifier, log)); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventCourseCompleted, eventhandler.NewOnCourseCompleted(notifier)); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventBadgeUnlocked, eventhandler.NewOnBadgeUnlocked(notifier))
}

// setupSlog configures the slog logger used by the messaging and scheduler
// layers.
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
