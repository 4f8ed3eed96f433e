package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/application/migration/definitions"
	"github.com/erp/weclapp-migration/internal/infrastructure/config"
	"github.com/erp/weclapp-migration/internal/infrastructure/joblock"
	"github.com/erp/weclapp-migration/internal/infrastructure/persistence"
	"github.com/erp/weclapp-migration/internal/infrastructure/scheduler"
	"github.com/erp/weclapp-migration/internal/infrastructure/sourcecache"
	"github.com/erp/weclapp-migration/internal/infrastructure/storage"
	"github.com/erp/weclapp-migration/internal/infrastructure/telemetry"
	"github.com/erp/weclapp-migration/internal/infrastructure/weclapp"
)

// app holds the wired migration stack shared by the commands
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	tracer *telemetry.TracerProvider
	meter  *telemetry.MeterProvider
	logs   *telemetry.LoggerProvider
	prof   *telemetry.Profiler
	db     *persistence.Database
	locker joblock.Locker

	orchestrator *migrationapp.Orchestrator
	scheduler    *scheduler.Scheduler
}

// newApp connects the destination store, the source cache, WeClapp and the job lock.
// Close releases everything newApp opened.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.logs, err = telemetry.NewLoggerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize log export: %w", err)
	}
	log = a.logs.Bridge(log, cfg.Telemetry.ServiceName, log.Level())
	a.logger = log

	a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.prof, err = telemetry.NewProfiler(cfg.Profiling, cfg.Telemetry.ServiceName, log)
	if err != nil {
		return nil, err
	}
	a.prof.LinkSpans(a.tracer)
	a.meter, err = telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics, err := telemetry.NewMigrationMetrics(a.meter.Meter("weclapp-migration"))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration metrics: %w", err)
	}

	a.db, err = persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "sqlite" {
		if err := a.db.AutoMigrate(); err != nil {
			return nil, err
		}
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.DefaultDBTracingConfig()
		dbTracing.Enabled = true
		if cfg.Database.Driver == "sqlite" {
			dbTracing.DBSystem = "sqlite"
		}
		if err := telemetry.NewDBTracingPlugin(dbTracing, log).RegisterOtelGorm(a.db.DB); err != nil {
			return nil, fmt.Errorf("failed to register database tracing: %w", err)
		}
	}

	blobs, err := storage.New(ctx, &cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize attachment storage: %w", err)
	}
	cache, err := sourcecache.New(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}

	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	registry, err := definitions.NewRegistry()
	if err != nil {
		return nil, err
	}

	uow := persistence.NewUnitOfWork(a.db.DB)
	journal := persistence.NewLogRepository(uow)
	store := persistence.NewDocumentStore(uow, blobs, persistence.WithStoreLogger(log))
	engine := migrationapp.NewEngine(store, cache, journal, registry, settings,
		migrationapp.WithLogger(log),
		migrationapp.WithMetrics(metrics),
	)

	var fetcher migrationapp.Fetcher
	if cfg.WeClapp.APIBase != "" {
		client, err := weclapp.NewClient(&cfg.WeClapp, weclapp.WithClientLogger(log))
		if err != nil {
			return nil, err
		}
		fetcher = weclapp.NewFetcher(client, cache, cfg.WeClapp.MailDoctypes, log)
	} else {
		log.Warn("weclapp.api_base is not set, cache jobs will fail")
	}
	a.orchestrator = migrationapp.NewOrchestrator(engine, fetcher, journal, cfg.WeClapp.Doctypes, log)

	a.locker, err = joblock.NewFactory(cfg.Redis, joblock.WithLogger(log)).Create()
	if err != nil {
		return nil, err
	}
	a.scheduler = scheduler.NewScheduler(scheduler.SchedulerConfig{
		QueueSize:  cfg.Jobs.QueueSize,
		JobTimeout: cfg.Jobs.JobTimeout,
		LockTTL:    cfg.Jobs.LockTTL,
	}, migrationapp.NewExecutor(a.orchestrator), a.locker, log)

	return a, nil
}

// run executes job on the calling goroutine under the job lock
func (a *app) run(ctx context.Context, job *scheduler.Job) error {
	done, err := a.scheduler.Run(ctx, job)
	if errors.Is(err, scheduler.ErrInvalidJob) {
		return err
	}
	fields := []zap.Field{
		zap.String("job_id", done.ID.String()),
		zap.String("type", string(done.Type)),
		zap.String("status", string(done.Status)),
	}
	if done.StartedAt != nil && done.CompletedAt != nil {
		fields = append(fields, zap.Duration("duration", done.CompletedAt.Sub(*done.StartedAt)))
	}
	if err != nil {
		a.logger.Error("Job failed", append(fields, zap.Error(err))...)
		return err
	}
	a.logger.Info("Job finished", fields...)
	return nil
}

// Close closes the job lock and the store, then flushes telemetry
func (a *app) Close(ctx context.Context) {
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			a.logger.Error("Error closing job lock", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Error closing database", zap.Error(err))
		}
	}
	if a.prof != nil {
		if err := a.prof.Stop(); err != nil {
			a.logger.Error("Error stopping profiler", zap.Error(err))
		}
	}
	if a.meter != nil {
		if err := a.meter.Shutdown(ctx); err != nil {
			a.logger.Error("Error shutting down metrics", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("Error shutting down tracing", zap.Error(err))
		}
	}
	if a.logs != nil {
		if err := a.logs.Shutdown(ctx); err != nil {
			a.logger.Error("Error shutting down log export", zap.Error(err))
		}
	}
}
