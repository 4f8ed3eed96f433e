// Package sourcecache persists fetched WeClapp entities and their documents on local disk.
//
// Layout below the base directory:
//
//	<type>.json                      entities of one type as a JSON array
//	documents/<type>/<id>/<file>     attachments of one entity
package sourcecache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/erp/weclapp-migration/internal/domain/migration"
)

const documentsDir = "documents"

// FileCache is a directory backed migration.SourceCache
type FileCache struct {
	base string
	mu   sync.RWMutex
}

var _ migration.SourceCache = (*FileCache)(nil)

// New opens the cache rooted at dir, creating it when missing
func New(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, documentsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{base: dir}, nil
}

// Dir returns the cache root
func (c *FileCache) Dir() string {
	return c.base
}

// Reset removes everything cached so far
func (c *FileCache) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.base); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(c.base, documentsDir), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return nil
}

// Append adds entities to the collection of typeTag
func (c *FileCache) Append(_ context.Context, typeTag string, entities []migration.Entity) error {
	if err := checkSegment(typeTag); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.readLocked(typeTag)
	if err != nil {
		return err
	}
	existing = append(existing, entities...)
	raw, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", typeTag, err)
	}
	return writeAtomic(c.collectionPath(typeTag), raw)
}

// Query returns the cached entities of typeTag accepted by pred, in fetch order.
// A nil pred accepts everything; an uncached type yields no entities.
func (c *FileCache) Query(ctx context.Context, typeTag string, pred migration.Predicate) ([]migration.Entity, error) {
	if err := checkSegment(typeTag); err != nil {
		return nil, err
	}
	c.mu.RLock()
	all, err := c.readLocked(typeTag)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if pred == nil {
		return all, nil
	}
	out := make([]migration.Entity, 0, len(all))
	for _, e := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pred(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Count returns the number of cached entities of typeTag
func (c *FileCache) Count(ctx context.Context, typeTag string) (int, error) {
	all, err := c.Query(ctx, typeTag, nil)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// PutAttachment stores a document downloaded for an entity
func (c *FileCache) PutAttachment(_ context.Context, typeTag, externalID, name string, r io.Reader) error {
	for _, seg := range []string{typeTag, externalID, name} {
		if err := checkSegment(seg); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", name, err)
	}
	dir := filepath.Join(c.base, documentsDir, typeTag, externalID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create attachment directory: %w", err)
	}
	return writeAtomic(filepath.Join(dir, name), data)
}

// Attachments lists the cached documents of an entity sorted by name
func (c *FileCache) Attachments(_ context.Context, typeTag, externalID string) ([]migration.Attachment, error) {
	if err := checkSegment(typeTag); err != nil {
		return nil, err
	}
	if err := checkSegment(externalID); err != nil {
		return nil, err
	}
	dir := filepath.Join(c.base, documentsDir, typeTag, externalID)

	c.mu.RLock()
	defer c.mu.RUnlock()
	matches, err := doublestar.Glob(os.DirFS(dir), "*", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments of %s %s: %w", typeTag, externalID, err)
	}
	sort.Strings(matches)

	out := make([]migration.Attachment, 0, len(matches))
	for _, name := range matches {
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat attachment %s: %w", name, err)
		}
		out = append(out, migration.Attachment{
			Name: name,
			Size: info.Size(),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	return out, nil
}

func (c *FileCache) collectionPath(typeTag string) string {
	return filepath.Join(c.base, typeTag+".json")
}

func (c *FileCache) readLocked(typeTag string) ([]migration.Entity, error) {
	raw, err := os.ReadFile(c.collectionPath(typeTag))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached %s: %w", typeTag, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var entities []migration.Entity
	if err := dec.Decode(&entities); err != nil {
		return nil, fmt.Errorf("failed to decode cached %s: %w", typeTag, err)
	}
	return entities, nil
}

func checkSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid cache path segment %q", s)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
