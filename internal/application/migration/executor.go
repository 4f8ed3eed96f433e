package migrationapp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/scheduler"
	"github.com/erp/weclapp-migration/internal/infrastructure/telemetry"
)

// Executor runs scheduler jobs on the orchestrator
type Executor struct {
	orchestrator *Orchestrator
}

// NewExecutor creates an Executor
func NewExecutor(o *Orchestrator) *Executor {
	return &Executor{orchestrator: o}
}

// Execute implements scheduler.JobExecutor
func (x *Executor) Execute(ctx context.Context, job scheduler.Job) (err error) {
	start := time.Now()
	defer func() {
		x.orchestrator.metrics.RecordJob(ctx, string(job.Type), err, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", migration.ErrPanic, r)
			x.abandon(ctx, job)
			panic(r)
		}
		if err != nil {
			x.abandon(ctx, job)
		}
	}()

	labels := map[string]string{
		telemetry.LabelJobType: string(job.Type),
		telemetry.LabelKind:    job.Kind,
	}
	telemetry.WithProfileLabels(ctx, labels, func(ctx context.Context) {
		err = x.execute(ctx, job)
	})
	return err
}

func (x *Executor) execute(ctx context.Context, job scheduler.Job) error {
	switch job.Type {
	case scheduler.JobTypeCache:
		return x.orchestrator.CacheAll(ctx)
	case scheduler.JobTypeMigrate:
		if job.Kind == "" {
			return x.orchestrator.MigrateAll(ctx)
		}
		_, err := x.orchestrator.Migrate(ctx, job.Kind, Where(job.Where))
		return err
	case scheduler.JobTypeClear:
		return x.orchestrator.ClearAll(ctx, job.Kind)
	default:
		return fmt.Errorf("%w: unknown job type %s", scheduler.ErrInvalidJob, job.Type)
	}
}

// abandon rolls back writes a failed job left uncommitted, so the next job
// does not commit them.
func (x *Executor) abandon(ctx context.Context, job scheduler.Job) {
	if err := x.orchestrator.engine.store.Rollback(context.WithoutCancel(ctx)); err != nil {
		x.orchestrator.logger.Error("Failed to roll back abandoned batch",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

// Where builds a predicate matching entities whose fields equal every value in where.
// An empty map matches everything.
func Where(where map[string]string) migration.Predicate {
	if len(where) == 0 {
		return nil
	}
	fields := make([]string, 0, len(where))
	for f := range where {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	preds := make([]migration.Predicate, 0, len(fields))
	for _, f := range fields {
		preds = append(preds, migration.FieldEquals(f, where[f]))
	}
	return func(e migration.Entity) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}
}
