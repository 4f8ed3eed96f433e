package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/persistence/models"
)

// LogRepository is the gorm implementation of migration.Journal.
// Success entries belong to the batch and disappear with the writes they
// report. Error entries are independent of it: they are written on their own
// connection and show up at once. Stores with a single writer record them
// inside the batch as durable writes, so rollbacks keep them.
type LogRepository struct {
	uow *UnitOfWork
}

var _ migration.Journal = (*LogRepository)(nil)

// NewLogRepository creates a LogRepository sharing the batch transaction of uow
func NewLogRepository(uow *UnitOfWork) *LogRepository {
	return &LogRepository{uow: uow}
}

// Record appends an outcome to the log
func (r *LogRepository) Record(ctx context.Context, outcome migration.Outcome) error {
	m := models.MigrationLogModel{
		Status:  string(outcome.Status),
		Message: outcome.Message,
		Detail:  outcome.Detail,
	}
	if !outcome.Timestamp.IsZero() {
		m.CreatedAt = outcome.Timestamp
	}
	write := func(db *gorm.DB) error {
		return db.Create(&m).Error
	}
	var err error
	switch {
	case outcome.Status != migration.OutcomeError:
		err = write(r.uow.Conn(ctx))
	case r.uow.SharesWriter():
		err = r.uow.Durable(ctx, write)
	default:
		err = write(r.uow.db.WithContext(ctx))
	}
	if err != nil {
		return fmt.Errorf("failed to record migration log: %w", err)
	}
	return nil
}

// List returns the newest entries first
func (r *LogRepository) List(ctx context.Context, filter migration.OutcomeFilter) ([]migration.Outcome, error) {
	q := r.uow.db.WithContext(ctx).Model(&models.MigrationLogModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []models.MigrationLogModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list migration logs: %w", err)
	}
	out := make([]migration.Outcome, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// Clear removes every entry
func (r *LogRepository) Clear(ctx context.Context) error {
	err := r.uow.Conn(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.MigrationLogModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear migration logs: %w", err)
	}
	return nil
}
