package migrationapp

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/telemetry"
)

// Fetcher fills the source cache from WeClapp
type Fetcher interface {
	Reset(ctx context.Context) error
	CacheDoctype(ctx context.Context, doctype string) (int, error)
}

// PlanStep is one kind in dependency order
type PlanStep struct {
	Kind            string   `json:"kind" yaml:"kind"`
	SourceType      string   `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	DestinationType string   `json:"destination_type" yaml:"destination_type"`
	DependsOn       []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	ChildOnly       bool     `json:"child_only,omitempty" yaml:"child_only,omitempty"`
}

// Orchestrator exposes the job level operations: caching, migrating and clearing.
type Orchestrator struct {
	engine   *Engine
	fetcher  Fetcher
	journal  migration.Journal
	doctypes []string
	metrics  *telemetry.MigrationMetrics
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator. doctypes are the WeClapp types CacheAll fetches.
func NewOrchestrator(engine *Engine, fetcher Fetcher, journal migration.Journal, doctypes []string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		engine:   engine,
		fetcher:  fetcher,
		journal:  journal,
		doctypes: append([]string(nil), doctypes...),
		metrics:  engine.metrics,
		logger:   logger,
	}
}

// CacheAll empties the cache and the migration log, then fetches every configured doctype.
// A failing doctype is logged and skipped.
func (o *Orchestrator) CacheAll(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "migration.cache_all")
	defer span.End()

	if o.fetcher == nil {
		return fmt.Errorf("no WeClapp fetcher configured")
	}
	if err := o.fetcher.Reset(ctx); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("reset cache: %w", err)
	}
	if err := o.journal.Clear(ctx); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("clear migration log: %w", err)
	}

	for _, doctype := range o.doctypes {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		n, err := o.fetcher.CacheDoctype(ctx, doctype)
		if err != nil {
			o.record(ctx, migration.OutcomeError, "Error while caching "+doctype, err.Error())
			o.logger.Warn("Error while caching doctype", zap.String("doctype", doctype), zap.Error(err))
			continue
		}
		o.metrics.RecordCached(ctx, doctype, n)
		o.record(ctx, migration.OutcomeSuccess, fmt.Sprintf("Cached %d %s", n, doctype), "")
		o.logger.Info("Cached doctype",
			zap.String("doctype", doctype),
			zap.Int("count", n),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return nil
}

// MigrateAll migrates every kind with a source collection in dependency order.
func (o *Orchestrator) MigrateAll(ctx context.Context) error {
	order, err := o.engine.registry.Order()
	if err != nil {
		return err
	}
	for _, kind := range order {
		def, _ := o.engine.registry.Get(kind)
		if def.SourceType() == "" {
			continue
		}
		if _, err := o.Migrate(ctx, kind, nil); err != nil {
			return err
		}
	}
	return nil
}

// Migrate migrates the cached entities of kind matching pred.
func (o *Orchestrator) Migrate(ctx context.Context, kind string, pred migration.Predicate) ([]*migration.Document, error) {
	m, err := o.engine.For(kind)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	docs, err := m.Migrate(ctx, pred)
	if err != nil {
		return docs, err
	}
	o.logger.Info("Migrated kind",
		zap.String("kind", kind),
		zap.Int("documents", len(docs)),
		zap.Duration("duration", time.Since(start)),
	)
	return docs, nil
}

// ClearAll deletes every migrated document of kind together with its linked children.
func (o *Orchestrator) ClearAll(ctx context.Context, kind string) error {
	m, err := o.engine.For(kind)
	if err != nil {
		return err
	}
	return m.Clear(ctx, nil)
}

// Plan returns all kinds in the order MigrateAll visits them.
func (o *Orchestrator) Plan() ([]PlanStep, error) {
	order, err := o.engine.registry.Order()
	if err != nil {
		return nil, err
	}
	steps := make([]PlanStep, 0, len(order))
	for _, kind := range order {
		def, _ := o.engine.registry.Get(kind)
		steps = append(steps, PlanStep{
			Kind:            kind,
			SourceType:      def.SourceType(),
			DestinationType: def.DestinationType(),
			DependsOn:       def.DependsOn(),
			ChildOnly:       def.SourceType() == "",
		})
	}
	return steps, nil
}

// CheckKind returns ErrUnknownKind when kind is not registered.
func (o *Orchestrator) CheckKind(kind string) error {
	_, err := o.engine.registry.Get(kind)
	return err
}

// Logs lists the migration log
func (o *Orchestrator) Logs(ctx context.Context, filter migration.OutcomeFilter) ([]migration.Outcome, error) {
	return o.journal.List(ctx, filter)
}

func (o *Orchestrator) record(ctx context.Context, status migration.OutcomeStatus, message, detail string) {
	err := o.journal.Record(ctx, migration.Outcome{
		Status:    status,
		Message:   message,
		Detail:    detail,
		Timestamp: time.Now(),
	})
	if err != nil {
		o.logger.Error("Failed to write migration log", zap.Error(err))
	}
}
