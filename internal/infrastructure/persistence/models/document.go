package models

import (
	"gorm.io/datatypes"

	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// DocumentModel stores a destination document.
// (doctype, name) and (doctype, external_id) are unique; a NULL external_id
// never collides, which keeps documents without provenance apart.
type DocumentModel struct {
	BaseModel
	Doctype    string            `gorm:"type:varchar(140);not null;uniqueIndex:idx_documents_doctype_name;uniqueIndex:idx_documents_doctype_external_id"`
	Name       string            `gorm:"type:varchar(140);not null;uniqueIndex:idx_documents_doctype_name"`
	ExternalID *string           `gorm:"column:external_id;type:varchar(140);uniqueIndex:idx_documents_doctype_external_id"`
	Fields     datatypes.JSONMap `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "documents"
}

// ToDomain converts the model into a migration.Document
func (m *DocumentModel) ToDomain() *migration.Document {
	doc := &migration.Document{
		Doctype:   m.Doctype,
		Name:      m.Name,
		Fields:    migration.Fields(m.Fields),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.ExternalID != nil {
		doc.ExternalID = *m.ExternalID
	}
	if doc.Fields == nil {
		doc.Fields = migration.Fields{}
	}
	return doc
}
