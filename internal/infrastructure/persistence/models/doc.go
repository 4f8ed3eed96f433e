// Package models contains the GORM persistence models of the destination store.
// The domain layer works with migration.Document and friends; the store maps
// between the two.
//
// Tables:
// - documents: one row per destination document, fields kept as JSON
// - document_tags: additive labels
// - document_links: parent to child associations
// - file_folders / files: attachment tree, blobs live in object storage
// - migration_logs: the persistent migration log
package models

// All returns every model for AutoMigrate
func All() []any {
	return []any{
		&DocumentModel{},
		&TagModel{},
		&LinkModel{},
		&FolderModel{},
		&FileModel{},
		&MigrationLogModel{},
	}
}
