// Package main - точка входа движка учебных сессий Lyo.
//
// Движок держит активные сессии в памяти процесса, подбирает следующий
// учебный объект по графу навыков, обновляет оценки освоения и очередь
// интервальных повторений, и сохраняет сводки сессий в Postgres.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: граф навыков, оценка освоения, планировщик повторений
// - Application: движок сессий, команды и запросы
// - Infrastructure: Postgres, Redis, события, фоновые задачи
// - Interface: протокольный кодек и операционный HTTP API
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/lyo-hub/lyo-session-engine/config"
	"github.com/lyo-hub/lyo-session-engine/internal/application/command"
	"github.com/lyo-hub/lyo-session-engine/internal/application/engine"
	"github.com/lyo-hub/lyo-session-engine/internal/application/eventhandler"
	"github.com/lyo-hub/lyo-session-engine/internal/application/query"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/review"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/catalog"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/messaging"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/persistence/postgres"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/persistence/projections"
	rediscache "github.com/lyo-hub/lyo-session-engine/internal/infrastructure/persistence/redis"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/persistence/resilient"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/scheduler"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/lyo-hub/lyo-session-engine/internal/interface/http"
	"github.com/lyo-hub/lyo-session-engine/internal/interface/http/handlers"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg)
	slogger := newSlogger(cfg)

	log.Info("starting lyo session engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// Postgres
	// ─────────────────────────────────────────────────────────────────────────

	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────

	var (
		cache       *rediscache.Cache
		courseCache skillgraph.Cache
		tracker     session.Tracker
	)
	if !cfg.Redis.Disabled {
		cache, err = rediscache.NewCache(rediscache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer cache.Close()

		if cfg.Features.IsEnabledGlobally(config.FeatureCourseCache) {
			courseCache = rediscache.NewCourseCache(cache)
		}
		tracker = rediscache.NewSessionTracker(cache)
	} else {
		log.Warn("redis disabled, running without course cache and session tracker")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Event plumbing
	// ─────────────────────────────────────────────────────────────────────────

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = slogger
	bus := messaging.NewInMemoryEventBus(busCfg)

	dispCfg := messaging.DefaultDispatcherConfig(bus)
	dispCfg.Logger = slogger
	dispatcher := messaging.NewDispatcher(dispCfg)

	progressView := projections.NewLearnerProgressView()
	audit := eventhandler.NewSessionAuditHandler(log)
	if err := eventhandler.RegisterAll(dispatcher, progressView, audit); err != nil {
		return fmt.Errorf("register event handlers: %w", err)
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Domain services
	// ─────────────────────────────────────────────────────────────────────────

	masteryRepo := postgres.NewMasteryRepository(conn)
	reviewRepo := postgres.NewReviewRepository(conn)
	archive := postgres.NewSessionArchive(conn)

	masteryStore := resilient.NewMasteryStore(masteryRepo, resilient.NewStoreBreaker(log))
	reviewStore := resilient.NewReviewStore(reviewRepo, resilient.NewStoreBreaker(log))

	estimator := mastery.NewEstimator(mastery.DefaultConfig(), masteryStore, bus)
	reviewSched := review.NewScheduler(reviewStore, bus)

	var source skillgraph.CatalogSource
	switch cfg.Catalog.Source {
	case config.CatalogSourceYAML:
		source = catalog.NewYAMLSource(cfg.Catalog.Dir)
	default:
		source = postgres.NewCatalogRepository(conn)
	}

	loader := engine.NewGraphLoader(source, courseCache, log, bus, cfg.Engine.GraphCacheTTL)

	// ─────────────────────────────────────────────────────────────────────────
	// Engine
	// ─────────────────────────────────────────────────────────────────────────

	// Транспорт монтируется поверх движка и заменяет этот sink своим
	// соединением. Бинарник без транспорта журналирует исходящее.
	outbound := func(sessionID string, payload []byte) {
		log.Debug("outbound message",
			logger.SessionID(sessionID),
			logger.Int("bytes", len(payload)))
	}

	eng := engine.New(
		engine.Config{
			MasteryThreshold: cfg.Engine.MasteryThreshold,
			IdleTTL:          cfg.Engine.IdleTTL,
			GraphCacheTTL:    cfg.Engine.GraphCacheTTL,
			MailboxSize:      cfg.Engine.MailboxSize,
			ResolveFlags: func(userID string) engine.SessionFlags {
				fctx := config.FeatureContext{UserID: userID}
				return engine.SessionFlags{
					WeakPassRemediation: cfg.Features.IsEnabled(config.FeatureWeakPassRemediation, fctx),
					EvidenceGrading:     cfg.Features.IsEnabled(config.FeatureEvidenceGrading, fctx),
					ResumableSessions:   cfg.Features.IsEnabled(config.FeatureResumableSessions, fctx),
				}
			},
		},
		loader, estimator, reviewSched, archive, tracker, bus, log, outbound,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Background jobs
	// ─────────────────────────────────────────────────────────────────────────

	var jobScheduler *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = slogger
		jobScheduler = scheduler.NewScheduler(schedCfg)

		expireJob := jobs.NewExpireIdleSessionsJob(eng, slogger, jobs.DefaultExpireIdleSessionsConfig())
		if err := jobScheduler.Register(expireJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ExpireIdleInterval)); err != nil {
			return fmt.Errorf("register expire job: %w", err)
		}

		if len(cfg.Catalog.WarmCourses) > 0 {
			warmJob := jobs.NewWarmCourseCacheJob(loader, cfg.Catalog.WarmCourses, slogger, jobs.DefaultWarmCourseCacheConfig())
			if err := jobScheduler.Register(warmJob, scheduler.NewIntervalSchedule(cfg.Scheduler.WarmCacheInterval)); err != nil {
				return fmt.Errorf("register warm job: %w", err)
			}
		}

		if cfg.Features.IsEnabledGlobally(config.FeatureReviewDigest) {
			digestJob := jobs.NewDueReviewDigestJob(reviewRepo, slogger, jobs.DefaultDueReviewDigestConfig())
			digestCron := scheduler.MustParseCronExpression(
				fmt.Sprintf("%d %d * * *", cfg.Scheduler.DigestMinute, cfg.Scheduler.DigestHour))
			if err := jobScheduler.Register(digestJob, digestCron); err != nil {
				return fmt.Errorf("register digest job: %w", err)
			}
		}

		if err := jobScheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Ops HTTP server
	// ─────────────────────────────────────────────────────────────────────────

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewDatabaseCheck(conn))
	if cache != nil {
		health.AddCheck("cache", handlers.NewCacheCheck(cache))
	}

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout

	server := httpserver.NewServer(serverCfg, httpserver.Dependencies{
		SessionSnapshotHandler: query.NewGetSessionSnapshotHandler(eng, archive),
		ProgressReportHandler: query.NewGetProgressReportHandler(
			loader, estimator, reviewSched, archive, cfg.Engine.MasteryThreshold),
		PublishCourseHandler: command.NewPublishCourseHandler(loader),
		Engine:               eng,
		ProgressView:         progressView,
		Scheduler:            jobScheduler,
		Dispatcher:           dispatcher,
		Features:             cfg.Features,
		Logger:               log,
		HealthChecker:        health,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Run until signal
	// ─────────────────────────────────────────────────────────────────────────

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", logger.Err(err))
		}
		if jobScheduler != nil {
			if err := jobScheduler.Stop(); err != nil {
				log.Error("scheduler stop failed", logger.Err(err))
			}
		}

		// Завершаем живые сессии с причиной shutdown, чтобы их сводки
		// успели записаться.
		if err := eng.Shutdown(shutdownCtx); err != nil {
			log.Error("engine shutdown failed", logger.Err(err))
		}

		if err := dispatcher.Stop(); err != nil {
			log.Error("dispatcher stop failed", logger.Err(err))
		}
		if err := bus.Close(); err != nil {
			log.Error("event bus close failed", logger.Err(err))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("lyo session engine stopped")
	return nil
}

// newLogger builds the application logger from observability settings.
func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	return logger.New(opts)
}

// newSlogger builds the slog logger used by infrastructure components.
func newSlogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Observability.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Observability.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
