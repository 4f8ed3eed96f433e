package models

import "github.com/erp/weclapp-migration/internal/domain/migration"

// TagModel is one label on a document
type TagModel struct {
	BaseModel
	Doctype      string `gorm:"type:varchar(140);not null;uniqueIndex:idx_document_tags_unique"`
	DocumentName string `gorm:"type:varchar(140);not null;uniqueIndex:idx_document_tags_unique"`
	Tag          string `gorm:"type:varchar(255);not null;uniqueIndex:idx_document_tags_unique"`
}

// TableName returns the table name for GORM
func (TagModel) TableName() string {
	return "document_tags"
}

// LinkModel is a parent to child association between two documents
type LinkModel struct {
	BaseModel
	ParentType string `gorm:"type:varchar(140);not null;uniqueIndex:idx_document_links_unique;index:idx_document_links_parent"`
	ParentName string `gorm:"type:varchar(140);not null;uniqueIndex:idx_document_links_unique;index:idx_document_links_parent"`
	ChildType  string `gorm:"type:varchar(140);not null;uniqueIndex:idx_document_links_unique;index:idx_document_links_child"`
	ChildName  string `gorm:"type:varchar(140);not null;uniqueIndex:idx_document_links_unique;index:idx_document_links_child"`
}

// TableName returns the table name for GORM
func (LinkModel) TableName() string {
	return "document_links"
}

// ToDomain converts the model into a migration.Link
func (m *LinkModel) ToDomain() migration.Link {
	return migration.Link{
		ID:         m.ID.String(),
		ParentType: m.ParentType,
		ParentName: m.ParentName,
		ChildType:  m.ChildType,
		ChildName:  m.ChildName,
	}
}
