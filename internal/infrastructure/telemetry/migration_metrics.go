package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Item outcome statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// MigrationMetrics records per item and per job outcomes of migration runs.
type MigrationMetrics struct {
	items        *Counter
	itemDuration *Histogram
	cached       *Counter
	jobs         *Counter
	jobDuration  *Histogram
}

// NewMigrationMetrics creates the migration instruments on meter.
func NewMigrationMetrics(meter metric.Meter) (*MigrationMetrics, error) {
	in := NewInstruments(meter)
	m := &MigrationMetrics{
		items:        in.Counter("migration.items", "Migrated items by doctype and outcome", "{item}"),
		itemDuration: in.Histogram("migration.item.duration", "Time spent migrating a single item", "s", ItemDurationBuckets),
		cached:       in.Counter("migration.cache.entities", "Source entities written to the local cache", "{entity}"),
		jobs:         in.Counter("migration.jobs", "Finished jobs by type and outcome", "{job}"),
		jobDuration:  in.Histogram("migration.job.duration", "Wall time of a job", "s", JobDurationBuckets),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordItem records the outcome of one migrated item. A nil receiver is a no-op.
func (m *MigrationMetrics) RecordItem(ctx context.Context, doctype string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.items.Inc(ctx, AttrDoctype.String(doctype), AttrStatus.String(status))
	m.itemDuration.RecordDuration(ctx, elapsed, AttrDoctype.String(doctype))
}

// RecordCached records how many entities of a source type were cached.
func (m *MigrationMetrics) RecordCached(ctx context.Context, sourceType string, n int) {
	if m == nil {
		return
	}
	m.cached.Add(ctx, int64(n), AttrDoctype.String(sourceType))
}

// RecordJob records a finished job.
func (m *MigrationMetrics) RecordJob(ctx context.Context, jobType string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.jobs.Inc(ctx, AttrJobType.String(jobType), AttrStatus.String(status))
	m.jobDuration.RecordDuration(ctx, elapsed, AttrJobType.String(jobType))
}
