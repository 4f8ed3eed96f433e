// Package migrationapp drives the migration of cached WeClapp entities into the
// destination store. A Definition per entity kind supplies the mapping and the
// lifecycle hooks, the Engine supplies the control flow.
package migrationapp

import (
	"context"

	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Definition describes how one entity kind is migrated.
type Definition interface {
	// Kind is the registry key, e.g. "customer".
	Kind() string
	// SourceType is the WeClapp cache collection. Kinds that are only
	// migrated as children of another kind return "".
	SourceType() string
	DestinationType() string
	// DependsOn lists the kinds that must be migrated first.
	DependsOn() []string

	// ExternalID returns the provenance id stored on the destination document.
	ExternalID(e migration.Entity) string
	// Transform maps the entity to destination fields. It may look up
	// destination documents but must not write.
	Transform(ctx context.Context, m *Migration, e migration.Entity) (migration.Fields, error)
	Tags(e migration.Entity) []string

	BeforeTransform(ctx context.Context, m *Migration, e migration.Entity) (migration.Entity, error)
	BeforeClear(ctx context.Context, m *Migration, doc *migration.Document) error
	AfterCreate(ctx context.Context, m *Migration, e migration.Entity, doc *migration.Document) error
}

// IdentityResolver is implemented by definitions whose documents are matched
// by a natural key instead of the provenance id.
type IdentityResolver interface {
	FindExisting(ctx context.Context, m *Migration, e migration.Entity) (*migration.Document, error)
}

// Base provides the default hooks. Definitions embed it and override what they need.
type Base struct{}

// DependsOn returns no dependencies
func (Base) DependsOn() []string { return nil }

// ExternalID returns the WeClapp id of the entity
func (Base) ExternalID(e migration.Entity) string { return e.ID() }

// Tags returns no tags
func (Base) Tags(migration.Entity) []string { return nil }

// BeforeTransform returns the entity unchanged
func (Base) BeforeTransform(_ context.Context, _ *Migration, e migration.Entity) (migration.Entity, error) {
	return e, nil
}

// BeforeClear does nothing
func (Base) BeforeClear(context.Context, *Migration, *migration.Document) error { return nil }

// AfterCreate does nothing
func (Base) AfterCreate(context.Context, *Migration, migration.Entity, *migration.Document) error {
	return nil
}
