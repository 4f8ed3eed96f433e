package migrationapp_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/tests/testutil"
)

// widget is a flat kind with tags and two ways to fail.
type widget struct {
	migrationapp.Base
}

func (widget) Kind() string            { return "widget" }
func (widget) SourceType() string      { return "widget" }
func (widget) DestinationType() string { return "Widget" }

func (widget) Transform(_ context.Context, _ *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	if e.Bool("fail") {
		return nil, errors.New("cannot transform")
	}
	return migration.Fields{"title": e.String("title")}, nil
}

func (widget) Tags(e migration.Entity) []string { return e.Strings("tags") }

func (widget) AfterCreate(_ context.Context, _ *migrationapp.Migration, e migration.Entity, _ *migration.Document) error {
	if e.Bool("failAfterCreate") {
		return errors.New("after create failed")
	}
	return nil
}

// volatile panics after its document was written.
type volatile struct {
	widget
}

func (volatile) Kind() string { return "volatile" }

func (volatile) AfterCreate(_ context.Context, _ *migrationapp.Migration, e migration.Entity, _ *migration.Document) error {
	if e.Bool("panic") {
		panic("index out of range")
	}
	return nil
}

// assembly owns parts through links.
type assembly struct {
	migrationapp.Base
}

func (assembly) Kind() string            { return "assembly" }
func (assembly) SourceType() string      { return "assembly" }
func (assembly) DestinationType() string { return "Assembly" }
func (assembly) DependsOn() []string     { return []string{"part"} }

func (assembly) Transform(_ context.Context, _ *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	return migration.Fields{"title": e.String("title")}, nil
}

func (assembly) AfterCreate(ctx context.Context, m *migrationapp.Migration, e migration.Entity, doc *migration.Document) error {
	_, err := m.MigrateLinked(ctx, "part", doc, e.List("parts"))
	return err
}

func (assembly) BeforeClear(ctx context.Context, m *migrationapp.Migration, doc *migration.Document) error {
	return m.DeleteLinkedChildren(ctx, "part", doc)
}

type part struct {
	migrationapp.Base
}

func (part) Kind() string            { return "part" }
func (part) SourceType() string      { return "" }
func (part) DestinationType() string { return "Part" }

func (part) Transform(_ context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	if e.Bool("fail") {
		return nil, errors.New("broken part")
	}
	return migration.Fields{"title": e.String("title"), "assembly": m.Parent().Name}, nil
}

func newEngine(t *testing.T, f *testutil.Fixture, defs ...migrationapp.Definition) *migrationapp.Engine {
	t.Helper()
	if len(defs) == 0 {
		defs = []migrationapp.Definition{widget{}, part{}, assembly{}}
	}
	reg, err := migrationapp.NewRegistry(defs...)
	require.NoError(t, err)
	return migrationapp.NewEngine(f.Store, f.Source, f.Journal, reg, migration.DefaultSettings())
}

func migrateKind(t *testing.T, e *migrationapp.Engine, kind string) []*migration.Document {
	t.Helper()
	m, err := e.For(kind)
	require.NoError(t, err)
	docs, err := m.Migrate(context.Background(), nil)
	require.NoError(t, err)
	return docs
}

func TestMigrate_UpdatesExistingDocument(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	f.Cache(t, "widget", migration.Entity{"id": "1", "title": "first"})
	first := migrateKind(t, engine, "widget")
	require.Len(t, first, 1)

	require.NoError(t, f.Source.Reset(ctx))
	f.Cache(t, "widget", migration.Entity{"id": "1", "title": "second"})
	second := migrateKind(t, engine, "widget")
	require.Len(t, second, 1)

	assert.Equal(t, first[0].Name, second[0].Name)
	docs, err := f.Store.ListWithProvenance(ctx, "Widget")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "second", docs[0].String("title"))
	assert.Equal(t, "1", docs[0].ExternalID)
}

func TestMigrate_TagsAreOnlyAdded(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	f.Cache(t, "widget", migration.Entity{"id": "1", "tags": []any{"A", "B"}})
	docs := migrateKind(t, engine, "widget")
	require.Len(t, docs, 1)

	require.NoError(t, f.Store.AddTag(ctx, docs[0], "D"))
	require.NoError(t, f.Store.Commit(ctx))

	require.NoError(t, f.Source.Reset(ctx))
	f.Cache(t, "widget", migration.Entity{"id": "1", "tags": []any{"B", "C"}})
	docs = migrateKind(t, engine, "widget")
	require.Len(t, docs, 1)

	tags, err := f.Store.Tags(ctx, docs[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, tags)
}

func TestMigrate_IsolatesFailedItems(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	f.Cache(t, "widget",
		migration.Entity{"id": "1", "title": "ok"},
		migration.Entity{"id": "2", "title": "half", "failAfterCreate": true},
		migration.Entity{"id": "3", "fail": true},
		migration.Entity{"id": "4", "title": "also ok"},
	)
	docs := migrateKind(t, engine, "widget")
	require.Len(t, docs, 2)

	half, err := f.Store.FindByExternalID(ctx, "Widget", "2")
	require.NoError(t, err)
	assert.Nil(t, half, "writes of a failed item are rolled back")

	errs := f.Outcomes(t, migration.OutcomeError)
	require.Len(t, errs, 2)
	for _, o := range errs {
		assert.Equal(t, "Error while migrating Widget", o.Message)
	}
	details := []string{errs[0].Detail, errs[1].Detail}
	assert.Contains(t, details[0]+details[1], "widget 2")
	assert.Contains(t, details[0]+details[1], "widget 3")
	assert.Len(t, f.Outcomes(t, migration.OutcomeSuccess), 2)
}

func TestMigrate_RecoversPanickingItems(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f, volatile{})

	f.Cache(t, "widget",
		migration.Entity{"id": "1", "title": "ok"},
		migration.Entity{"id": "2", "title": "boom", "panic": true},
		migration.Entity{"id": "3", "title": "ok too"},
	)
	docs := migrateKind(t, engine, "volatile")
	require.Len(t, docs, 2)
	assert.False(t, f.UoW.InTransaction(), "the batch is committed")

	boom, err := f.Store.FindByExternalID(ctx, "Widget", "2")
	require.NoError(t, err)
	assert.Nil(t, boom, "writes before the panic are rolled back")

	errs := f.Outcomes(t, migration.OutcomeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error while migrating Widget", errs[0].Message)
	assert.Contains(t, errs[0].Detail, "index out of range")
}

func TestMigrate_ChildOnlyKindIsRejected(t *testing.T) {
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	m, err := engine.For("part")
	require.NoError(t, err)
	_, err = m.Migrate(context.Background(), nil)
	assert.Error(t, err)
}

func TestMigrate_UnknownKind(t *testing.T) {
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	_, err := engine.For("gadget")
	assert.ErrorIs(t, err, migration.ErrUnknownKind)
}

func TestMigrate_StopsWhenCancelled(t *testing.T) {
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)
	f.Cache(t, "widget", migration.Entity{"id": "1"}, migration.Entity{"id": "2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := engine.For("widget")
	require.NoError(t, err)
	docs, err := m.Migrate(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, docs)
}

func TestMigrate_CopiesAttachmentsOnce(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	f.Cache(t, "widget", migration.Entity{"id": "7", "title": "with files"})
	f.Attach(t, "widget", "7", "manual.pdf", []byte("%PDF-1.4 manual"))
	f.Attach(t, "widget", "7", "photo.txt", []byte("photo"))

	docs := migrateKind(t, engine, "widget")
	require.Len(t, docs, 1)
	migrateKind(t, engine, "widget")

	folder := "Home/Attachments/Widget/" + docs[0].Name
	for _, name := range []string{"manual.pdf", "photo.txt"} {
		ok, err := f.Store.FileExists(ctx, folder, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	assert.Len(t, f.Blobs.Keys(), 2)
	assert.Empty(t, f.Outcomes(t, migration.OutcomeError))
}

func TestMigrate_AttachmentFailuresDoNotFailTheItem(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)
	f.Blobs.FailWhen(func(key string) bool { return strings.HasSuffix(key, "/broken.txt") })

	f.Cache(t, "widget", migration.Entity{"id": "7", "title": "with files"})
	f.Attach(t, "widget", "7", "manual.pdf", []byte("%PDF-1.4 manual"))
	f.Attach(t, "widget", "7", "broken.txt", []byte("broken"))

	docs := migrateKind(t, engine, "widget")
	require.Len(t, docs, 1)
	assert.False(t, f.UoW.InTransaction(), "the batch is committed")

	doc, err := f.Store.FindByExternalID(ctx, "Widget", "7")
	require.NoError(t, err)
	require.NotNil(t, doc)

	folder := "Home/Attachments/Widget/" + doc.Name
	ok, err := f.Store.FileExists(ctx, folder, "manual.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.Store.FileExists(ctx, folder, "broken.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"private/" + folder + "/manual.pdf"}, f.Blobs.Keys())

	errs := f.Outcomes(t, migration.OutcomeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error while attaching files to Widget "+doc.Name, errs[0].Message)
	assert.Contains(t, errs[0].Detail, "broken.txt")
	assert.Contains(t, errs[0].Detail, testutil.ErrBlobUnavailable.Error())

	success := f.Outcomes(t, migration.OutcomeSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, "Migrated Widget "+doc.Name, success[0].Message)
}

func TestMigrate_LinksChildren(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	f.Cache(t, "assembly", migration.Entity{
		"id":    "10",
		"title": "Engine",
		"parts": []any{
			map[string]any{"id": "p1", "title": "Piston"},
			map[string]any{"id": "p2", "title": "broken", "fail": true},
			map[string]any{"id": "p3", "title": "Valve"},
		},
	})
	docs := migrateKind(t, engine, "assembly")
	require.Len(t, docs, 1)

	links, err := f.Store.FindLinks(ctx, "Assembly", docs[0].Name, "Part")
	require.NoError(t, err)
	require.Len(t, links, 2)

	piston, err := f.Store.FindByExternalID(ctx, "Part", "p1")
	require.NoError(t, err)
	require.NotNil(t, piston)
	assert.Equal(t, docs[0].Name, piston.String("assembly"))

	errs := f.Outcomes(t, migration.OutcomeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error while migrating Part", errs[0].Message)
}

func TestMigrate_KeepsChildLogWhenParentFails(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f, part{}, fragileAssembly{})

	f.Cache(t, "assembly", migration.Entity{
		"id":              "10",
		"failAfterCreate": true,
		"parts": []any{
			map[string]any{"id": "p1", "title": "Piston"},
			map[string]any{"id": "p2", "fail": true},
		},
	})
	docs := migrateKind(t, engine, "assembly")
	assert.Empty(t, docs)

	piston, err := f.Store.FindByExternalID(ctx, "Part", "p1")
	require.NoError(t, err)
	assert.Nil(t, piston, "children of a failed parent are rolled back")

	errs := f.Outcomes(t, migration.OutcomeError)
	require.Len(t, errs, 2)
	assert.Contains(t, messages(errs), "Error while migrating Part")
	assert.Contains(t, messages(errs), "Error while migrating Assembly")
	assert.Empty(t, f.Outcomes(t, migration.OutcomeSuccess), "no success is reported for rolled back parts")
}

func TestClear_CascadesToLinkedChildren(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	f.Cache(t, "assembly", migration.Entity{
		"id":    "10",
		"title": "Engine",
		"parts": []any{map[string]any{"id": "p1"}, map[string]any{"id": "p2"}},
	})
	docs := migrateKind(t, engine, "assembly")
	require.Len(t, docs, 1)

	m, err := engine.For("assembly")
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx, nil))

	assemblies, err := f.Store.ListWithProvenance(ctx, "Assembly")
	require.NoError(t, err)
	assert.Empty(t, assemblies)
	parts, err := f.Store.ListWithProvenance(ctx, "Part")
	require.NoError(t, err)
	assert.Empty(t, parts)
	links, err := f.Store.FindLinks(ctx, "Assembly", docs[0].Name, "")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestClear_KeepsDocumentsWithoutProvenance(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	engine := newEngine(t, f)

	manual := f.Seed(t, "Widget", migration.Fields{"title": "manual"})
	f.Cache(t, "widget", migration.Entity{"id": "1", "title": "migrated"})
	migrateKind(t, engine, "widget")

	m, err := engine.For("widget")
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx, nil))

	kept, err := f.Store.Get(ctx, "Widget", manual.Name)
	require.NoError(t, err)
	assert.Equal(t, "manual", kept.String("title"))
	gone, err := f.Store.FindByExternalID(ctx, "Widget", "1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.Contains(t, messages(f.Outcomes(t, migration.OutcomeSuccess)), "Cleared Widget WIDGET-")
}

func TestClear_LogsBlockedDeletes(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	// without the cascade the parent keeps its links and cannot be deleted
	engine := newEngine(t, f, part{}, linkOnlyAssembly{})

	f.Cache(t, "assembly", migration.Entity{"id": "10", "parts": []any{map[string]any{"id": "p1"}}})
	migrateKind(t, engine, "assembly")

	m, err := engine.For("assembly")
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx, nil))

	errs := f.Outcomes(t, migration.OutcomeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error while clearing Assembly", errs[0].Message)
	still, err := f.Store.FindByExternalID(ctx, "Assembly", "10")
	require.NoError(t, err)
	assert.NotNil(t, still)
}

// fragileAssembly fails after its parts were migrated.
type fragileAssembly struct {
	assembly
}

func (a fragileAssembly) AfterCreate(ctx context.Context, m *migrationapp.Migration, e migration.Entity, doc *migration.Document) error {
	if err := a.assembly.AfterCreate(ctx, m, e, doc); err != nil {
		return err
	}
	if e.Bool("failAfterCreate") {
		return errors.New("assembly incomplete")
	}
	return nil
}

type linkOnlyAssembly struct {
	assembly
}

func (linkOnlyAssembly) BeforeClear(context.Context, *migrationapp.Migration, *migration.Document) error {
	return nil
}

func messages(outcomes []migration.Outcome) string {
	var out string
	for _, o := range outcomes {
		out += o.Message + "\n"
	}
	return out
}
