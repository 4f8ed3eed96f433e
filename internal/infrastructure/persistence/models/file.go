package models

import "github.com/erp/weclapp-migration/internal/domain/migration"

// FolderModel is a node of the attachment folder tree
type FolderModel struct {
	BaseModel
	Path   string `gorm:"type:varchar(1000);not null;uniqueIndex"`
	Parent string `gorm:"type:varchar(1000);not null;default:''"`
	Name   string `gorm:"type:varchar(255);not null"`
}

// TableName returns the table name for GORM
func (FolderModel) TableName() string {
	return "file_folders"
}

// FileModel is an attachment. The content lives in blob storage under StorageKey.
type FileModel struct {
	BaseModel
	Folder            string `gorm:"type:varchar(1000);not null;uniqueIndex:idx_files_folder_name"`
	FileName          string `gorm:"column:file_name;type:varchar(255);not null;uniqueIndex:idx_files_folder_name"`
	AttachedToDoctype string `gorm:"type:varchar(140);index:idx_files_attached_to"`
	AttachedToName    string `gorm:"type:varchar(140);index:idx_files_attached_to"`
	IsPrivate         bool   `gorm:"not null;default:true"`
	FileSize          int64  `gorm:"type:bigint;not null"`
	ContentType       string `gorm:"type:varchar(100);not null"`
	StorageKey        string `gorm:"type:varchar(1000);not null"`
}

// TableName returns the table name for GORM
func (FileModel) TableName() string {
	return "files"
}

// ToDomain converts the model into a migration.File
func (m *FileModel) ToDomain() *migration.File {
	return &migration.File{
		ID:                m.ID.String(),
		Folder:            m.Folder,
		FileName:          m.FileName,
		AttachedToDoctype: m.AttachedToDoctype,
		AttachedToName:    m.AttachedToName,
		Private:           m.IsPrivate,
		Size:              m.FileSize,
		StorageKey:        m.StorageKey,
	}
}
