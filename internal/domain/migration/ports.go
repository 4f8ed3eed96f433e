package migration

import (
	"context"
	"io"
	"time"
)

// Attachment is a file cached for a WeClapp entity.
type Attachment struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// SourceCache is the read side of the local WeClapp cache.
type SourceCache interface {
	Query(ctx context.Context, typeTag string, pred Predicate) ([]Entity, error)
	Attachments(ctx context.Context, typeTag, externalID string) ([]Attachment, error)
}

// Store is the destination document store.
// Lookups that find nothing return (nil, nil); Get returns ErrNotFound.
type Store interface {
	FindByExternalID(ctx context.Context, doctype, externalID string) (*Document, error)
	Get(ctx context.Context, doctype, name string) (*Document, error)
	Lookup(ctx context.Context, doctype, field, value string) (*Document, error)
	ListWithProvenance(ctx context.Context, doctype string) ([]*Document, error)
	Create(ctx context.Context, doctype, externalID string, fields Fields) (*Document, error)
	Update(ctx context.Context, doc *Document, fields Fields) (*Document, error)
	Delete(ctx context.Context, doc *Document) error

	AddTag(ctx context.Context, doc *Document, tag string) error
	Tags(ctx context.Context, doc *Document) ([]string, error)

	CreateLink(ctx context.Context, link Link) (*Link, error)
	FindLinks(ctx context.Context, parentType, parentName, childType string) ([]Link, error)
	DeleteLink(ctx context.Context, link Link) error

	EnsureFolder(ctx context.Context, parent, name string) (string, error)
	FileExists(ctx context.Context, folder, fileName string) (bool, error)
	AttachFile(ctx context.Context, doc *Document, folder, fileName string, data []byte, private bool) (*File, error)

	Savepoint(ctx context.Context) (string, error)
	RollbackTo(ctx context.Context, savepoint string) error
	Commit(ctx context.Context) error
	// Rollback abandons everything written since the last Commit
	Rollback(ctx context.Context) error
}

// OutcomeStatus is the status of a migration log entry.
type OutcomeStatus string

// Outcome statuses
const (
	OutcomeSuccess OutcomeStatus = "Success"
	OutcomeError   OutcomeStatus = "Error"
)

// Outcome is one entry of the persistent migration log.
type Outcome struct {
	ID        string        `json:"id"`
	Status    OutcomeStatus `json:"status"`
	Message   string        `json:"message"`
	Detail    string        `json:"detail"`
	Timestamp time.Time     `json:"timestamp"`
}

// OutcomeFilter narrows a log listing.
type OutcomeFilter struct {
	Status OutcomeStatus
	Limit  int
}

// Journal is the persistent migration log.
type Journal interface {
	Record(ctx context.Context, outcome Outcome) error
	List(ctx context.Context, filter OutcomeFilter) ([]Outcome, error)
	Clear(ctx context.Context) error
}
