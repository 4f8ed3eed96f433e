package definitions

import (
	"context"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// ExtendedContract migrates WeClapp contracts
type ExtendedContract struct {
	migrationapp.Base
}

func (ExtendedContract) Kind() string            { return KindExtendedContract }
func (ExtendedContract) SourceType() string      { return "contract" }
func (ExtendedContract) DestinationType() string { return "Extended Contract" }
func (ExtendedContract) DependsOn() []string     { return []string{KindCustomer} }

func (ExtendedContract) Transform(ctx context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	fields := migration.Fields{
		"name":                   mapping.Optional(e.String("contractNumber")),
		"title":                  mapping.Optional(e.String("name")),
		"customer":               nil,
		"start_date":             timestampDate(m, e, "startDate"),
		"end_date":               timestampDate(m, e, "endDate"),
		"custom_weclapp_created": timestampDateTime(m, e, "createdDate"),
		"description":            mapping.Optional(mapping.StripHTML(e.String("description"))),
	}
	customer, err := m.FindMigrated(ctx, KindCustomer, e.String("customerId"))
	if err != nil {
		return nil, err
	}
	if customer != nil {
		fields["customer"] = customer.Name
	}
	return fields, nil
}

func (ExtendedContract) Tags(e migration.Entity) []string {
	return mapping.MergeTags(e.Strings("tags"))
}
