package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/persistence/models"
)

// BlobStore keeps attachment contents
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// DocumentStore is the gorm implementation of migration.Store
type DocumentStore struct {
	uow    *UnitOfWork
	blobs  BlobStore
	logger *zap.Logger
}

var _ migration.Store = (*DocumentStore)(nil)

// DocumentStoreOption configures a DocumentStore
type DocumentStoreOption func(*DocumentStore)

// WithStoreLogger sets the logger
func WithStoreLogger(logger *zap.Logger) DocumentStoreOption {
	return func(s *DocumentStore) {
		s.logger = logger
	}
}

// NewDocumentStore creates a DocumentStore writing through uow
func NewDocumentStore(uow *UnitOfWork, blobs BlobStore, opts ...DocumentStoreOption) *DocumentStore {
	s := &DocumentStore{
		uow:    uow,
		blobs:  blobs,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByExternalID returns the document migrated from externalID, or nil
func (s *DocumentStore) FindByExternalID(ctx context.Context, doctype, externalID string) (*migration.Document, error) {
	if externalID == "" {
		return nil, nil
	}
	var m models.DocumentModel
	err := s.uow.Conn(ctx).Where("doctype = ? AND external_id = ?", doctype, externalID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s by external id %s: %w", doctype, externalID, err)
	}
	return m.ToDomain(), nil
}

// Get returns the document by name or migration.ErrNotFound
func (s *DocumentStore) Get(ctx context.Context, doctype, name string) (*migration.Document, error) {
	m, err := s.load(s.uow.Conn(ctx), doctype, name)
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// Lookup returns the first document whose field equals value, or nil
func (s *DocumentStore) Lookup(ctx context.Context, doctype, field, value string) (*migration.Document, error) {
	if value == "" {
		return nil, nil
	}
	q := s.uow.Conn(ctx).Where("doctype = ?", doctype)
	switch field {
	case "name":
		q = q.Where("name = ?", value)
	case "external_id":
		q = q.Where("external_id = ?", value)
	default:
		q = q.Where(datatypes.JSONQuery("fields").Equals(value, field))
	}

	var m models.DocumentModel
	err := q.Order("created_at").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s by %s: %w", doctype, field, err)
	}
	return m.ToDomain(), nil
}

// ListWithProvenance returns all documents of doctype that were migrated
func (s *DocumentStore) ListWithProvenance(ctx context.Context, doctype string) ([]*migration.Document, error) {
	var rows []models.DocumentModel
	err := s.uow.Conn(ctx).
		Where("doctype = ? AND external_id IS NOT NULL", doctype).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list migrated %s: %w", doctype, err)
	}
	docs := make([]*migration.Document, 0, len(rows))
	for i := range rows {
		docs = append(docs, rows[i].ToDomain())
	}
	return docs, nil
}

// Create inserts a new document. A "name" field becomes the document name,
// otherwise the doctype's naming series assigns one.
func (s *DocumentStore) Create(ctx context.Context, doctype, externalID string, fields migration.Fields) (*migration.Document, error) {
	data, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	name, _ := data["name"].(string)
	delete(data, "name")
	if err := validateRequired(doctype, data); err != nil {
		return nil, err
	}
	if name == "" {
		name = autoname(doctype)
	}

	w, err := s.uow.Writer(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnique(w, doctype, name, externalID); err != nil {
		return nil, err
	}

	m := models.DocumentModel{
		Doctype: doctype,
		Name:    name,
		Fields:  datatypes.JSONMap(data),
	}
	if externalID != "" {
		m.ExternalID = &externalID
	}
	if err := w.Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s %s", migration.ErrDuplicateIdentity, doctype, name)
		}
		return nil, fmt.Errorf("create %s %s: %w", doctype, name, err)
	}
	return m.ToDomain(), nil
}

func (s *DocumentStore) ensureUnique(w *gorm.DB, doctype, name, externalID string) error {
	var count int64
	if err := w.Model(&models.DocumentModel{}).Where("doctype = ? AND name = ?", doctype, name).Count(&count).Error; err != nil {
		return fmt.Errorf("check %s name: %w", doctype, err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s %q", migration.ErrDuplicateIdentity, doctype, name)
	}
	if externalID == "" {
		return nil
	}
	if err := w.Model(&models.DocumentModel{}).Where("doctype = ? AND external_id = ?", doctype, externalID).Count(&count).Error; err != nil {
		return fmt.Errorf("check %s external id: %w", doctype, err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s with external id %s", migration.ErrDuplicateIdentity, doctype, externalID)
	}
	return nil
}

// Update overwrites the given fields in place; fields not mentioned keep their value.
// doc is refreshed with the stored state and returned.
func (s *DocumentStore) Update(ctx context.Context, doc *migration.Document, fields migration.Fields) (*migration.Document, error) {
	data, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	w, err := s.uow.Writer(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.load(w, doc.Doctype, doc.Name)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(m.Fields)+len(data))
	for k, v := range m.Fields {
		merged[k] = v
	}
	for k, v := range data {
		if k == "name" {
			continue
		}
		merged[k] = v
	}
	if err := validateRequired(doc.Doctype, merged); err != nil {
		return nil, err
	}

	now := time.Now()
	err = w.Model(m).Updates(map[string]any{
		"fields":     datatypes.JSONMap(merged),
		"updated_at": now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", doc.Doctype, doc.Name, err)
	}

	doc.Fields = migration.Fields(merged)
	doc.UpdatedAt = now
	if m.ExternalID != nil {
		doc.ExternalID = *m.ExternalID
	}
	return doc, nil
}

// Delete removes the document with its tags, files and inbound links.
// It fails with migration.ErrLinkExists while children or referencing documents remain.
func (s *DocumentStore) Delete(ctx context.Context, doc *migration.Document) error {
	w, err := s.uow.Writer(ctx)
	if err != nil {
		return err
	}

	var children int64
	if err := w.Model(&models.LinkModel{}).
		Where("parent_type = ? AND parent_name = ?", doc.Doctype, doc.Name).
		Count(&children).Error; err != nil {
		return fmt.Errorf("count links of %s %s: %w", doc.Doctype, doc.Name, err)
	}
	if children > 0 {
		return fmt.Errorf("%w: %s %s still has %d linked documents", migration.ErrLinkExists, doc.Doctype, doc.Name, children)
	}
	if err := s.checkReferences(w, doc); err != nil {
		return err
	}

	if err := w.Where("child_type = ? AND child_name = ?", doc.Doctype, doc.Name).Delete(&models.LinkModel{}).Error; err != nil {
		return fmt.Errorf("delete links to %s %s: %w", doc.Doctype, doc.Name, err)
	}
	if err := w.Where("doctype = ? AND document_name = ?", doc.Doctype, doc.Name).Delete(&models.TagModel{}).Error; err != nil {
		return fmt.Errorf("delete tags of %s %s: %w", doc.Doctype, doc.Name, err)
	}
	if err := s.deleteFiles(ctx, w, doc); err != nil {
		return err
	}

	res := w.Where("doctype = ? AND name = ?", doc.Doctype, doc.Name).Delete(&models.DocumentModel{})
	if res.Error != nil {
		return fmt.Errorf("delete %s %s: %w", doc.Doctype, doc.Name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", migration.ErrNotFound, doc.Doctype, doc.Name)
	}
	return nil
}

func (s *DocumentStore) checkReferences(w *gorm.DB, doc *migration.Document) error {
	for _, ref := range referencedBy[doc.Doctype] {
		q := w.Model(&models.DocumentModel{}).
			Where("doctype = ?", ref.Doctype).
			Where(datatypes.JSONQuery("fields").Equals(doc.Name, ref.Field))
		if ref.TypeField != "" {
			q = q.Where(datatypes.JSONQuery("fields").Equals(doc.Doctype, ref.TypeField))
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return fmt.Errorf("check references to %s %s: %w", doc.Doctype, doc.Name, err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s %s is referenced by %d %s via %s",
				migration.ErrLinkExists, doc.Doctype, doc.Name, count, ref.Doctype, ref.Field)
		}
	}
	return nil
}

func (s *DocumentStore) deleteFiles(ctx context.Context, w *gorm.DB, doc *migration.Document) error {
	var files []models.FileModel
	if err := w.Where("attached_to_doctype = ? AND attached_to_name = ?", doc.Doctype, doc.Name).Find(&files).Error; err != nil {
		return fmt.Errorf("list files of %s %s: %w", doc.Doctype, doc.Name, err)
	}
	if len(files) == 0 {
		return nil
	}
	if err := w.Where("attached_to_doctype = ? AND attached_to_name = ?", doc.Doctype, doc.Name).Delete(&models.FileModel{}).Error; err != nil {
		return fmt.Errorf("delete files of %s %s: %w", doc.Doctype, doc.Name, err)
	}
	for _, f := range files {
		key := f.StorageKey
		// Blobs go only once the rows are gone for good.
		s.uow.AfterCommit(func() {
			if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn("Failed to delete attachment blob", zap.String("key", key), zap.Error(err))
			}
		})
	}
	return nil
}

// AddTag adds tag unless the document already carries it
func (s *DocumentStore) AddTag(ctx context.Context, doc *migration.Document, tag string) error {
	w, err := s.uow.Writer(ctx)
	if err != nil {
		return err
	}
	var count int64
	if err := w.Model(&models.TagModel{}).
		Where("doctype = ? AND document_name = ? AND tag = ?", doc.Doctype, doc.Name, tag).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check tag %q: %w", tag, err)
	}
	if count > 0 {
		return nil
	}
	m := models.TagModel{Doctype: doc.Doctype, DocumentName: doc.Name, Tag: tag}
	if err := w.Create(&m).Error; err != nil {
		return fmt.Errorf("add tag %q to %s %s: %w", tag, doc.Doctype, doc.Name, err)
	}
	return nil
}

// Tags returns the labels of a document
func (s *DocumentStore) Tags(ctx context.Context, doc *migration.Document) ([]string, error) {
	var tags []string
	err := s.uow.Conn(ctx).Model(&models.TagModel{}).
		Where("doctype = ? AND document_name = ?", doc.Doctype, doc.Name).
		Order("created_at, tag").
		Pluck("tag", &tags).Error
	if err != nil {
		return nil, fmt.Errorf("list tags of %s %s: %w", doc.Doctype, doc.Name, err)
	}
	return tags, nil
}

// CreateLink stores link, returning the existing row if an identical link is present
func (s *DocumentStore) CreateLink(ctx context.Context, link migration.Link) (*migration.Link, error) {
	w, err := s.uow.Writer(ctx)
	if err != nil {
		return nil, err
	}
	var m models.LinkModel
	err = w.Where("parent_type = ? AND parent_name = ? AND child_type = ? AND child_name = ?",
		link.ParentType, link.ParentName, link.ChildType, link.ChildName).First(&m).Error
	switch {
	case err == nil:
		out := m.ToDomain()
		return &out, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("find link: %w", err)
	}

	m = models.LinkModel{
		ParentType: link.ParentType,
		ParentName: link.ParentName,
		ChildType:  link.ChildType,
		ChildName:  link.ChildName,
	}
	if err := w.Create(&m).Error; err != nil {
		return nil, fmt.Errorf("create link %s %s -> %s %s: %w",
			link.ParentType, link.ParentName, link.ChildType, link.ChildName, err)
	}
	out := m.ToDomain()
	return &out, nil
}

// FindLinks returns the links of a parent, optionally restricted to one child doctype
func (s *DocumentStore) FindLinks(ctx context.Context, parentType, parentName, childType string) ([]migration.Link, error) {
	q := s.uow.Conn(ctx).Where("parent_type = ? AND parent_name = ?", parentType, parentName)
	if childType != "" {
		q = q.Where("child_type = ?", childType)
	}
	var rows []models.LinkModel
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find links of %s %s: %w", parentType, parentName, err)
	}
	links := make([]migration.Link, 0, len(rows))
	for i := range rows {
		links = append(links, rows[i].ToDomain())
	}
	return links, nil
}

// DeleteLink removes a link by id, or by its endpoints when the id is unknown
func (s *DocumentStore) DeleteLink(ctx context.Context, link migration.Link) error {
	w, err := s.uow.Writer(ctx)
	if err != nil {
		return err
	}
	q := w
	if id, perr := uuid.Parse(link.ID); perr == nil {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("parent_type = ? AND parent_name = ? AND child_type = ? AND child_name = ?",
			link.ParentType, link.ParentName, link.ChildType, link.ChildName)
	}
	if err := q.Delete(&models.LinkModel{}).Error; err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// EnsureFolder creates parent/name if missing and returns its path
func (s *DocumentStore) EnsureFolder(ctx context.Context, parent, name string) (string, error) {
	p := name
	if parent != "" {
		p = parent + "/" + name
	}
	w, err := s.uow.Writer(ctx)
	if err != nil {
		return "", err
	}
	var count int64
	if err := w.Model(&models.FolderModel{}).Where("path = ?", p).Count(&count).Error; err != nil {
		return "", fmt.Errorf("check folder %s: %w", p, err)
	}
	if count > 0 {
		return p, nil
	}
	if err := w.Create(&models.FolderModel{Path: p, Parent: parent, Name: name}).Error; err != nil {
		return "", fmt.Errorf("create folder %s: %w", p, err)
	}
	return p, nil
}

// FileExists reports whether folder already holds a file called fileName
func (s *DocumentStore) FileExists(ctx context.Context, folder, fileName string) (bool, error) {
	var count int64
	err := s.uow.Conn(ctx).Model(&models.FileModel{}).
		Where("folder = ? AND file_name = ?", folder, fileName).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check file %s/%s: %w", folder, fileName, err)
	}
	return count > 0, nil
}

// AttachFile uploads data and records it in folder, attached to doc.
// An existing file of the same name in folder is returned unchanged.
func (s *DocumentStore) AttachFile(ctx context.Context, doc *migration.Document, folder, fileName string, data []byte, private bool) (*migration.File, error) {
	w, err := s.uow.Writer(ctx)
	if err != nil {
		return nil, err
	}
	var existing models.FileModel
	err = w.Where("folder = ? AND file_name = ?", folder, fileName).First(&existing).Error
	switch {
	case err == nil:
		return existing.ToDomain(), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("find file %s/%s: %w", folder, fileName, err)
	}

	visibility := "public"
	if private {
		visibility = "private"
	}
	key := path.Join(visibility, folder, fileName)
	contentType := mimetype.Detect(data).String()
	if err := s.blobs.Put(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	m := models.FileModel{
		Folder:            folder,
		FileName:          fileName,
		AttachedToDoctype: doc.Doctype,
		AttachedToName:    doc.Name,
		IsPrivate:         private,
		FileSize:          int64(len(data)),
		ContentType:       contentType,
		StorageKey:        key,
	}
	if err := w.Create(&m).Error; err != nil {
		return nil, fmt.Errorf("record file %s: %w", key, err)
	}
	return m.ToDomain(), nil
}

// Savepoint implements migration.Store
func (s *DocumentStore) Savepoint(ctx context.Context) (string, error) {
	return s.uow.Savepoint(ctx)
}

// RollbackTo implements migration.Store
func (s *DocumentStore) RollbackTo(ctx context.Context, savepoint string) error {
	return s.uow.RollbackTo(ctx, savepoint)
}

// Commit implements migration.Store
func (s *DocumentStore) Commit(ctx context.Context) error {
	return s.uow.Commit(ctx)
}

// Rollback implements migration.Store
func (s *DocumentStore) Rollback(_ context.Context) error {
	return s.uow.Rollback()
}

func (s *DocumentStore) load(db *gorm.DB, doctype, name string) (*models.DocumentModel, error) {
	var m models.DocumentModel
	err := db.Where("doctype = ? AND name = ?", doctype, name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %s", migration.ErrNotFound, doctype, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", doctype, name, err)
	}
	return &m, nil
}

// normalize gives fields the shape they have after a round trip through the JSON column.
func normalize(fields migration.Fields) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}
