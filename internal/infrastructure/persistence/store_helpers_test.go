package persistence

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBlobs) Put(_ context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	b.types[key] = contentType
	return nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	delete(b.types, key)
	return nil
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

type storeFixture struct {
	db      *Database
	uow     *UnitOfWork
	store   *DocumentStore
	journal *LogRepository
	blobs   *memBlobs
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	uow := NewUnitOfWork(db.DB)
	t.Cleanup(func() { _ = uow.Rollback() })
	blobs := newMemBlobs()
	return &storeFixture{
		db:      db,
		uow:     uow,
		store:   NewDocumentStore(uow, blobs),
		journal: NewLogRepository(uow),
		blobs:   blobs,
	}
}
