package weclapp

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// ArchivedEmailType is the cache collection holding archived e-mails of all mail doctypes
const ArchivedEmailType = "archivedEmail"

// Cache is the write side of the source cache
type Cache interface {
	Reset(ctx context.Context) error
	Append(ctx context.Context, typeTag string, entities []migration.Entity) error
	PutAttachment(ctx context.Context, typeTag, externalID, name string, r io.Reader) error
}

// Fetcher copies WeClapp entities, their documents and archived e-mails into the cache
type Fetcher struct {
	client       *Client
	cache        Cache
	mailDoctypes map[string]bool
	logger       *zap.Logger
}

// NewFetcher creates a Fetcher. mailDoctypes are the types whose archived e-mails are cached too.
func NewFetcher(client *Client, cache Cache, mailDoctypes []string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]bool, len(mailDoctypes))
	for _, d := range mailDoctypes {
		set[d] = true
	}
	return &Fetcher{client: client, cache: cache, mailDoctypes: set, logger: logger}
}

// Reset empties the cache before a new fetch
func (f *Fetcher) Reset(ctx context.Context) error {
	return f.cache.Reset(ctx)
}

// CacheDoctype fetches every entity of doctype with its documents.
// It returns the number of cached entities.
func (f *Fetcher) CacheDoctype(ctx context.Context, doctype string) (int, error) {
	entities, err := f.client.All(ctx, doctype)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", doctype, err)
	}
	if err := f.cache.Append(ctx, doctype, entities); err != nil {
		return 0, err
	}

	var emails []migration.Entity
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		id := e.ID()
		if id == "" {
			continue
		}
		if err := f.cacheDocuments(ctx, doctype, id); err != nil {
			return 0, err
		}
		if f.mailDoctypes[doctype] {
			found, err := f.archivedEmails(ctx, doctype, id)
			if err != nil {
				return 0, err
			}
			emails = append(emails, found...)
		}
	}
	// The e-mail collection is shared by all mail doctypes and rewritten on every append.
	if len(emails) > 0 {
		if err := f.cache.Append(ctx, ArchivedEmailType, emails); err != nil {
			return 0, err
		}
	}
	return len(entities), nil
}

func (f *Fetcher) cacheDocuments(ctx context.Context, doctype, id string) error {
	docs, err := f.client.Documents(ctx, doctype, id)
	if err != nil {
		return fmt.Errorf("list documents of %s %s: %w", doctype, id, err)
	}
	for _, doc := range docs {
		name := fileName(doc)
		body, err := f.client.Download(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("download document %s of %s %s: %w", doc.ID, doctype, id, err)
		}
		err = f.cache.PutAttachment(ctx, doctype, id, name, body)
		body.Close()
		if err != nil {
			return err
		}
		f.logger.Debug("Cached document",
			zap.String("doctype", doctype),
			zap.String("entity_id", id),
			zap.String("file", name),
		)
	}
	return nil
}

func (f *Fetcher) archivedEmails(ctx context.Context, doctype, id string) ([]migration.Entity, error) {
	emails, err := f.client.ArchivedEmails(ctx, doctype, id)
	if err != nil {
		return nil, fmt.Errorf("list archived emails of %s %s: %w", doctype, id, err)
	}
	for _, email := range emails {
		email["entityName"] = doctype
		email["entityId"] = id
	}
	return emails, nil
}

func fileName(doc Document) string {
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(doc.Name)
	if name == "" || name == "." || name == ".." {
		return "document-" + doc.ID
	}
	return name
}
