package models

import "github.com/erp/weclapp-migration/internal/domain/migration"

// MigrationLogModel is an entry of the persistent migration log
type MigrationLogModel struct {
	BaseModel
	Status  string `gorm:"type:varchar(20);not null;index"`
	Message string `gorm:"type:text;not null"`
	Detail  string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (MigrationLogModel) TableName() string {
	return "migration_logs"
}

// ToDomain converts the model into a migration.Outcome
func (m *MigrationLogModel) ToDomain() migration.Outcome {
	return migration.Outcome{
		ID:        m.ID.String(),
		Status:    migration.OutcomeStatus(m.Status),
		Message:   m.Message,
		Detail:    m.Detail,
		Timestamp: m.CreatedAt,
	}
}
