package migrationapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/logger"
	"github.com/erp/weclapp-migration/internal/infrastructure/telemetry"
)

// Engine runs definitions against the source cache and the destination store.
type Engine struct {
	store    migration.Store
	source   migration.SourceCache
	journal  migration.Journal
	registry *Registry
	settings migration.Settings
	metrics  *telemetry.MigrationMetrics
	logger   *zap.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records item outcomes on m
func WithMetrics(m *telemetry.MigrationMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an Engine. settings is copied and never changed afterwards.
func NewEngine(
	store migration.Store,
	source migration.SourceCache,
	journal migration.Journal,
	registry *Registry,
	settings migration.Settings,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:    store,
		source:   source,
		journal:  journal,
		registry: registry,
		settings: settings,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the definitions known to the engine
func (e *Engine) Registry() *Registry {
	return e.registry
}

// For returns the top-level migration of kind
func (e *Engine) For(kind string) (*Migration, error) {
	def, err := e.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	return &Migration{engine: e, def: def}, nil
}

// Migration is a definition bound to the engine. Child migrations carry the
// parent document and never commit.
type Migration struct {
	engine *Engine
	def    Definition
	parent *migration.Document
	nested bool
	index  *sourceIndex
}

// sourceIndex holds cached collections keyed by external id. It lives for one
// batch and is shared with child migrations.
type sourceIndex struct {
	mu   sync.Mutex
	byID map[string]map[string]migration.Entity
}

// Definition returns the bound definition
func (m *Migration) Definition() Definition { return m.def }

// Parent returns the parent document of a child migration, or nil
func (m *Migration) Parent() *migration.Document { return m.parent }

// Settings returns the engine settings
func (m *Migration) Settings() migration.Settings { return m.engine.settings }

// Store returns the destination store
func (m *Migration) Store() migration.Store { return m.engine.store }

// Child returns the migration of kind nested under parent
func (m *Migration) Child(kind string, parent *migration.Document) (*Migration, error) {
	def, err := m.engine.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	return &Migration{engine: m.engine, def: def, parent: parent, nested: true, index: m.batchIndex()}, nil
}

// CachedByID returns the cached typeTag entity with external id, or nil.
// Each collection is read from the source cache once per batch.
func (m *Migration) CachedByID(ctx context.Context, typeTag, id string) (migration.Entity, error) {
	idx := m.batchIndex()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	entities, ok := idx.byID[typeTag]
	if !ok {
		all, err := m.engine.source.Query(ctx, typeTag, nil)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", typeTag, err)
		}
		entities = make(map[string]migration.Entity, len(all))
		for _, e := range all {
			if _, dup := entities[e.ID()]; !dup {
				entities[e.ID()] = e
			}
		}
		idx.byID[typeTag] = entities
	}
	return entities[id], nil
}

func (m *Migration) batchIndex() *sourceIndex {
	if m.index == nil {
		m.index = &sourceIndex{byID: make(map[string]map[string]migration.Entity)}
	}
	return m.index
}

// FindMigrated returns the destination document migrated from externalID as kind, or nil
func (m *Migration) FindMigrated(ctx context.Context, kind, externalID string) (*migration.Document, error) {
	def, err := m.engine.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	return m.engine.store.FindByExternalID(ctx, def.DestinationType(), externalID)
}

// Migrate migrates every cached entity matching pred, or all when pred is nil.
// It returns the migrated documents in source order. Failed items are logged
// and skipped. A top-level run commits once at the end.
func (m *Migration) Migrate(ctx context.Context, pred migration.Predicate) ([]*migration.Document, error) {
	if m.def.SourceType() == "" {
		return nil, fmt.Errorf("%s is only migrated through its parent", m.def.Kind())
	}
	entities, err := m.engine.source.Query(ctx, m.def.SourceType(), pred)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", m.def.SourceType(), err)
	}
	return m.run(ctx, entities)
}

// MigrateOne migrates a single entity. The result holds the document, or nothing on failure.
func (m *Migration) MigrateOne(ctx context.Context, e migration.Entity) ([]*migration.Document, error) {
	return m.run(ctx, []migration.Entity{e})
}

// MigrateLinked migrates entities as childKind under parent and links every
// resulting document to parent. Existing links are kept as they are.
func (m *Migration) MigrateLinked(ctx context.Context, childKind string, parent *migration.Document, entities []migration.Entity) ([]*migration.Document, error) {
	child, err := m.Child(childKind, parent)
	if err != nil {
		return nil, err
	}
	var docs []*migration.Document
	for _, e := range entities {
		migrated, err := child.MigrateOne(ctx, e)
		if err != nil {
			return docs, err
		}
		for _, doc := range migrated {
			_, err := m.engine.store.CreateLink(ctx, migration.Link{
				ParentType: parent.Doctype,
				ParentName: parent.Name,
				ChildType:  doc.Doctype,
				ChildName:  doc.Name,
			})
			if err != nil {
				return docs, fmt.Errorf("link %s %s to %s %s: %w", doc.Doctype, doc.Name, parent.Doctype, parent.Name, err)
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (m *Migration) run(ctx context.Context, entities []migration.Entity) ([]*migration.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "migration.migrate",
		telemetry.AttrKind.String(m.def.Kind()),
		telemetry.AttrDoctype.String(m.def.DestinationType()),
	)
	defer span.End()
	if !m.nested {
		ctx, _ = logger.WithKind(ctx, m.baseLogger(ctx), m.def.Kind())
		m.index = nil
	}

	docs := make([]*migration.Document, 0, len(entities))
	var stopped error
	for _, e := range entities {
		if !m.nested {
			if err := ctx.Err(); err != nil {
				stopped = err
				break
			}
		}
		doc, err := m.migrateItem(ctx, e)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}

	if !m.nested {
		if err := m.engine.store.Commit(context.WithoutCancel(ctx)); err != nil {
			telemetry.RecordError(span, err)
			return docs, fmt.Errorf("commit %s: %w", m.def.DestinationType(), err)
		}
	}
	if stopped != nil {
		return docs, stopped
	}
	return docs, nil
}

// migrateItem isolates one entity behind a savepoint and logs the outcome.
func (m *Migration) migrateItem(ctx context.Context, e migration.Entity) (*migration.Document, error) {
	start := time.Now()
	doctype := m.def.DestinationType()

	var doc *migration.Document
	err := m.withSavepoint(ctx, func() error {
		var err error
		doc, err = m.migrateEntity(ctx, e)
		return err
	})
	m.engine.metrics.RecordItem(ctx, doctype, err, time.Since(start))
	if err != nil {
		err = &migration.MigrationError{Kind: m.def.Kind(), ExternalID: e.ID(), Err: err}
		m.record(ctx, migration.OutcomeError, "Error while migrating "+doctype, err.Error())
		m.log(ctx).Warn("Error while migrating "+doctype, zap.String("external_id", e.ID()), zap.Error(err))
		return nil, err
	}
	m.record(ctx, migration.OutcomeSuccess, fmt.Sprintf("Migrated %s %s", doctype, doc.Name), "")
	m.log(ctx).Debug("Migrated document", zap.String("doctype", doctype), zap.String("name", doc.Name))
	return doc, nil
}

func (m *Migration) migrateEntity(ctx context.Context, e migration.Entity) (*migration.Document, error) {
	existing, err := m.findExisting(ctx, e)
	if err != nil {
		return nil, err
	}
	working, err := m.def.BeforeTransform(ctx, m, e)
	if err != nil {
		return nil, fmt.Errorf("before transform: %w", err)
	}
	fields, err := m.def.Transform(ctx, m, working)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	store := m.engine.store
	var doc *migration.Document
	if existing != nil {
		doc, err = store.Update(ctx, existing, fields)
	} else {
		doc, err = store.Create(ctx, m.def.DestinationType(), m.def.ExternalID(working), fields)
	}
	if err != nil {
		return nil, err
	}

	if err := m.applyTags(ctx, doc, m.def.Tags(working)); err != nil {
		return nil, err
	}
	m.copyAttachments(ctx, working, doc)

	if err := m.def.AfterCreate(ctx, m, working, doc); err != nil {
		return nil, fmt.Errorf("after create: %w", err)
	}
	return doc, nil
}

func (m *Migration) findExisting(ctx context.Context, e migration.Entity) (*migration.Document, error) {
	if resolver, ok := m.def.(IdentityResolver); ok {
		return resolver.FindExisting(ctx, m, e)
	}
	return m.engine.store.FindByExternalID(ctx, m.def.DestinationType(), m.def.ExternalID(e))
}

// applyTags adds the tags the document does not carry yet. Tags are never removed.
func (m *Migration) applyTags(ctx context.Context, doc *migration.Document, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	present, err := m.engine.store.Tags(ctx, doc)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(present))
	for _, t := range present {
		have[t] = true
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || have[tag] {
			continue
		}
		if err := m.engine.store.AddTag(ctx, doc, tag); err != nil {
			return fmt.Errorf("add tag %q: %w", tag, err)
		}
		have[tag] = true
	}
	return nil
}

// copyAttachments uploads the cached files of e into <root>/<doctype>/<name>.
// Failures are logged and never fail the item.
func (m *Migration) copyAttachments(ctx context.Context, e migration.Entity, doc *migration.Document) {
	if m.def.SourceType() == "" {
		return
	}
	attachments, err := m.engine.source.Attachments(ctx, m.def.SourceType(), e.ID())
	if err != nil {
		m.attachmentFailed(ctx, doc, "", err)
		return
	}
	if len(attachments) == 0 {
		return
	}

	folder, err := m.ensureFolderChain(ctx, doc)
	if err != nil {
		m.attachmentFailed(ctx, doc, "", err)
		return
	}
	for _, att := range attachments {
		err := m.withSavepoint(ctx, func() error {
			return m.uploadAttachment(ctx, doc, folder, att)
		})
		if err != nil {
			m.attachmentFailed(ctx, doc, att.Name, err)
		}
	}
}

func (m *Migration) ensureFolderChain(ctx context.Context, doc *migration.Document) (string, error) {
	var segments []string
	for _, s := range strings.Split(m.engine.settings.AttachmentRoot, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	segments = append(segments, doc.Doctype, doc.Name)

	var folder string
	err := m.withSavepoint(ctx, func() error {
		for _, name := range segments {
			next, err := m.engine.store.EnsureFolder(ctx, folder, name)
			if err != nil {
				return err
			}
			folder = next
		}
		return nil
	})
	return folder, err
}

func (m *Migration) uploadAttachment(ctx context.Context, doc *migration.Document, folder string, att migration.Attachment) error {
	exists, err := m.engine.store.FileExists(ctx, folder, att.Name)
	if err != nil || exists {
		return err
	}
	r, err := att.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", att.Name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", att.Name, err)
	}
	_, err = m.engine.store.AttachFile(ctx, doc, folder, att.Name, data, true)
	return err
}

func (m *Migration) attachmentFailed(ctx context.Context, doc *migration.Document, file string, err error) {
	detail := err.Error()
	if file != "" {
		detail = file + ": " + detail
	}
	m.record(ctx, migration.OutcomeError, fmt.Sprintf("Error while attaching files to %s %s", doc.Doctype, doc.Name), detail)
	m.log(ctx).Warn("Attachment copy failed",
		zap.String("doctype", doc.Doctype),
		zap.String("name", doc.Name),
		zap.String("file", file),
		zap.Error(err),
	)
}

// Clear deletes doc, or every migrated document of the destination type when doc is nil.
// A top-level clear logs failures and goes on with the next document, a nested
// clear returns the first failure to its parent.
func (m *Migration) Clear(ctx context.Context, doc *migration.Document) error {
	if m.nested {
		if doc == nil {
			return fmt.Errorf("nested clear of %s needs a document", m.def.Kind())
		}
		return m.clearOne(ctx, doc)
	}

	ctx, span := telemetry.StartSpan(ctx, "migration.clear",
		telemetry.AttrKind.String(m.def.Kind()),
		telemetry.AttrDoctype.String(m.def.DestinationType()),
	)
	defer span.End()
	ctx, _ = logger.WithKind(ctx, m.baseLogger(ctx), m.def.Kind())

	docs := []*migration.Document{doc}
	if doc == nil {
		var err error
		if docs, err = m.engine.store.ListWithProvenance(ctx, m.def.DestinationType()); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	var stopped error
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			stopped = err
			break
		}
		err := m.withSavepoint(ctx, func() error {
			return m.clearOne(ctx, d)
		})
		if err != nil {
			m.record(ctx, migration.OutcomeError, "Error while clearing "+d.Doctype, fmt.Sprintf("%s: %v", d.Name, err))
			m.log(ctx).Warn("Error while clearing "+d.Doctype, zap.String("name", d.Name), zap.Error(err))
			continue
		}
		m.record(ctx, migration.OutcomeSuccess, fmt.Sprintf("Cleared %s %s", d.Doctype, d.Name), "")
	}

	if err := m.engine.store.Commit(context.WithoutCancel(ctx)); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("commit clear of %s: %w", m.def.DestinationType(), err)
	}
	return stopped
}

func (m *Migration) clearOne(ctx context.Context, doc *migration.Document) error {
	if err := m.def.BeforeClear(ctx, m, doc); err != nil {
		return fmt.Errorf("before clear %s %s: %w", doc.Doctype, doc.Name, err)
	}
	return m.engine.store.Delete(ctx, doc)
}

// DeleteLinkedChildren clears every childKind document linked below parent.
func (m *Migration) DeleteLinkedChildren(ctx context.Context, childKind string, parent *migration.Document) error {
	child, err := m.Child(childKind, parent)
	if err != nil {
		return err
	}
	store := m.engine.store
	links, err := store.FindLinks(ctx, parent.Doctype, parent.Name, child.def.DestinationType())
	if err != nil {
		return err
	}
	for _, link := range links {
		doc, err := store.Get(ctx, link.ChildType, link.ChildName)
		if err != nil && !errors.Is(err, migration.ErrNotFound) {
			return err
		}
		if err := store.DeleteLink(ctx, link); err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		if err := child.Clear(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// withSavepoint runs fn and rolls the store back to the state before fn when
// it fails or panics. A panic is returned as migration.ErrPanic.
func (m *Migration) withSavepoint(ctx context.Context, fn func() error) (err error) {
	store := m.engine.store
	sp, err := store.Savepoint(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", migration.ErrPanic, r)
			m.log(ctx).Error("Recovered panic in "+m.def.Kind(), zap.Any("panic", r), zap.Stack("stack"))
		}
		if err != nil {
			if rbErr := store.RollbackTo(context.WithoutCancel(ctx), sp); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
	}()
	return fn()
}

func (m *Migration) record(ctx context.Context, status migration.OutcomeStatus, message, detail string) {
	if m.engine.journal == nil {
		return
	}
	err := m.engine.journal.Record(ctx, migration.Outcome{
		Status:    status,
		Message:   message,
		Detail:    detail,
		Timestamp: time.Now(),
	})
	if err != nil {
		m.log(ctx).Error("Failed to write migration log", zap.Error(err))
	}
}

// baseLogger prefers the job or kind scoped logger carried by ctx.
func (m *Migration) baseLogger(ctx context.Context) *zap.Logger {
	if logger.JobID(ctx) != "" || logger.Kind(ctx) != "" {
		return logger.FromContext(ctx)
	}
	return m.engine.logger
}

func (m *Migration) log(ctx context.Context) *zap.Logger {
	return logger.WithTraceContext(ctx, m.baseLogger(ctx))
}
