// Package definitions holds the migration definition of every WeClapp entity kind.
package definitions

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Entity kinds
const (
	KindSalutation       = "salutation"
	KindIndustryType     = "industry_type"
	KindMarketSegment    = "market_segment"
	KindLeadSource       = "lead_source"
	KindUser             = "user"
	KindUOM              = "uom"
	KindItem             = "item"
	KindAddress          = "address"
	KindContact          = "contact"
	KindLead             = "lead"
	KindCustomer         = "customer"
	KindOpportunity      = "opportunity"
	KindExtendedContract = "extended_contract"
)

// All returns every definition in registration order
func All() []migrationapp.Definition {
	return []migrationapp.Definition{
		Salutation(),
		IndustryType(),
		MarketSegment(),
		LeadSource(),
		User{},
		UOM(),
		Item{},
		Address{},
		Contact{},
		Lead{},
		Customer{},
		Opportunity{},
		ExtendedContract{},
	}
}

// NewRegistry returns a registry holding All
func NewRegistry() (*migrationapp.Registry, error) {
	return migrationapp.NewRegistry(All()...)
}

func phone(m *migrationapp.Migration, number string) any {
	return mapping.Optional(mapping.StandardizePhone(number, m.Settings().DefaultPhoneCountryCode))
}

func salutation(e migration.Entity) any {
	return mapping.Optional(mapping.Salutation(e.String("salutation"), e.String("title")))
}

// splitCombinedName moves "First Last" held in lastName into both fields
// when firstName is missing.
func splitCombinedName(e migration.Entity) migration.Entity {
	if e.String("firstName") != "" {
		return e
	}
	first, last := mapping.SplitName(e.String("lastName"))
	if first == "" {
		return e
	}
	out := e.Clone()
	out["firstName"] = first
	out["lastName"] = last
	return out
}

func number(e migration.Entity, key string) (decimal.Decimal, bool) {
	s := e.String(key)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func timestampDate(m *migrationapp.Migration, e migration.Entity, key string) any {
	ms, ok := e.Int64(key)
	if !ok {
		return nil
	}
	return mapping.Optional(mapping.DateFromTimestamp(ms, m.Settings().TimeZone()))
}

func timestampDateTime(m *migrationapp.Migration, e migration.Entity, key string) any {
	ms, ok := e.Int64(key)
	if !ok {
		return nil
	}
	return mapping.Optional(mapping.DateTimeFromTimestamp(ms, m.Settings().TimeZone()))
}

// country resolves a WeClapp country code to the destination Country name.
func country(ctx context.Context, m *migrationapp.Migration, code string) (any, error) {
	if code == "" {
		return nil, nil
	}
	doc, err := m.Store().Lookup(ctx, "Country", "code", strings.ToLower(code))
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Name, nil
}

func tags(e migration.Entity, topicsKey string) []string {
	return mapping.MergeTags(e.Strings("tags"), e.Strings(topicsKey))
}

// markPrimary resolves the migrated child with externalID, references it from
// parent via field and flags the child with flag.
func markPrimary(ctx context.Context, m *migrationapp.Migration, parent *migration.Document, kind, externalID, field, flag string) (*migration.Document, error) {
	if externalID == "" {
		return nil, nil
	}
	child, err := m.FindMigrated(ctx, kind, externalID)
	if err != nil || child == nil {
		return nil, err
	}
	if field != "" {
		if _, err := m.Store().Update(ctx, parent, migration.Fields{field: child.Name}); err != nil {
			return nil, err
		}
	}
	if _, err := m.Store().Update(ctx, child, migration.Fields{flag: true}); err != nil {
		return nil, err
	}
	return child, nil
}
