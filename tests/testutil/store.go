package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/persistence"
	"github.com/erp/weclapp-migration/internal/infrastructure/sourcecache"
)

// ErrBlobUnavailable is returned by MemoryBlobs.Put for keys set up to fail.
var ErrBlobUnavailable = errors.New("blob store unavailable")

// MemoryBlobs is an in-memory persistence.BlobStore.
type MemoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failing func(key string) bool
}

// NewMemoryBlobs returns an empty blob store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{objects: map[string][]byte{}}
}

// Put implements persistence.BlobStore.
func (b *MemoryBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing != nil && b.failing(key) {
		return fmt.Errorf("put %s: %w", key, ErrBlobUnavailable)
	}
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

// FailWhen makes Put reject every key for which match returns true.
func (b *MemoryBlobs) FailWhen(match func(key string) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = match
}

// Delete implements persistence.BlobStore.
func (b *MemoryBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (b *MemoryBlobs) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fixture bundles a sqlite destination store with a file backed source cache.
type Fixture struct {
	DB      *persistence.Database
	UoW     *persistence.UnitOfWork
	Store   *persistence.DocumentStore
	Journal *persistence.LogRepository
	Blobs   *MemoryBlobs
	Source  *sourcecache.FileCache
}

// NewFixture creates a fresh store and cache below t.TempDir().
func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	dir := t.TempDir()
	db, err := persistence.OpenSQLite(filepath.Join(dir, "store.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	uow := persistence.NewUnitOfWork(db.DB)
	t.Cleanup(func() { _ = uow.Rollback() })

	source, err := sourcecache.New(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	blobs := NewMemoryBlobs()
	return &Fixture{
		DB:      db,
		UoW:     uow,
		Store:   persistence.NewDocumentStore(uow, blobs),
		Journal: persistence.NewLogRepository(uow),
		Blobs:   blobs,
		Source:  source,
	}
}

// Cache appends entities to the source cache collection typeTag.
func (f *Fixture) Cache(t *testing.T, typeTag string, entities ...migration.Entity) {
	t.Helper()
	require.NoError(t, f.Source.Append(context.Background(), typeTag, entities))
}

// Attach stores a cached document for the entity externalID of typeTag.
func (f *Fixture) Attach(t *testing.T, typeTag, externalID, name string, data []byte) {
	t.Helper()
	require.NoError(t, f.Source.PutAttachment(context.Background(), typeTag, externalID, name, bytes.NewReader(data)))
}

// Seed creates a destination document without provenance.
func (f *Fixture) Seed(t *testing.T, doctype string, fields migration.Fields) *migration.Document {
	t.Helper()
	doc, err := f.Store.Create(context.Background(), doctype, "", fields)
	require.NoError(t, err)
	return doc
}

// Outcomes returns the journal entries with the given status, newest first.
func (f *Fixture) Outcomes(t *testing.T, status migration.OutcomeStatus) []migration.Outcome {
	t.Helper()
	out, err := f.Journal.List(context.Background(), migration.OutcomeFilter{Status: status})
	require.NoError(t, err)
	return out
}
