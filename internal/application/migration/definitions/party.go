package definitions

import (
	"context"
	"fmt"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// ResolveParty finds the migrated counterparty of a WeClapp party id.
// A cached customer wins over a cached lead. A party that is cached but has no
// destination document resolves to the next candidate, or Unresolved.
func ResolveParty(ctx context.Context, m *migrationapp.Migration, partyID string) (migration.Party, error) {
	if partyID == "" {
		return migration.Unresolved{}, nil
	}

	customer, err := cachedDocument(ctx, m, Customer{}, partyID)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		return migration.CustomerRef{Document: customer}, nil
	}

	lead, err := cachedDocument(ctx, m, Lead{}, partyID)
	if err != nil {
		return nil, err
	}
	if lead != nil {
		return migration.LeadRef{Document: lead}, nil
	}
	return migration.Unresolved{}, nil
}

// ResolveContact returns the migrated contact of an opportunity. Contacts that
// point at the party itself are ignored. A cached contact without a migrated
// counterpart fails with migration.ErrContactNotMigrated.
func ResolveContact(ctx context.Context, m *migrationapp.Migration, e migration.Entity) (*migration.Document, error) {
	id := e.String("contactId")
	if id == "" || id == e.String("customerId") {
		return nil, nil
	}
	cached, err := m.CachedByID(ctx, "contact", id)
	if err != nil || cached == nil {
		return nil, err
	}
	doc, err := m.FindMigrated(ctx, KindContact, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: WeClapp contact %s has no destination contact", migration.ErrContactNotMigrated, id)
	}
	return doc, nil
}

func cachedDocument(ctx context.Context, m *migrationapp.Migration, def migrationapp.Definition, id string) (*migration.Document, error) {
	cached, err := m.CachedByID(ctx, def.SourceType(), id)
	if err != nil || cached == nil {
		return nil, err
	}
	return m.FindMigrated(ctx, def.Kind(), id)
}
