package definitions

import (
	"context"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Address migrates addresses embedded in customers, leads and contacts.
// It is always migrated as a child; the parent names the address.
type Address struct {
	migrationapp.Base
}

func (Address) Kind() string            { return KindAddress }
func (Address) SourceType() string      { return "" }
func (Address) DestinationType() string { return "Address" }

func (Address) Transform(ctx context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	countryName, err := country(ctx, m, e.String("countryCode"))
	if err != nil {
		return nil, err
	}
	title := e.ID()
	if parent := m.Parent(); parent != nil {
		title = parent.Name
	}
	return migration.Fields{
		"address_title":       title,
		"city":                mapping.Optional(e.String("city")),
		"country":             countryName,
		"address_type":        addressType(m.Parent(), e),
		"is_shipping_address": e.Bool("deliveryAddress"),
		"is_primary_address":  e.Bool("primeAddress") || e.Bool("invoiceAddress"),
		"phone":               phone(m, e.String("phoneNumber")),
		"state":               mapping.Optional(e.String("state")),
		"address_line1":       mapping.Optional(e.String("street1")),
		"address_line2":       mapping.Optional(e.String("street2")),
		"pincode":             mapping.Optional(e.String("zipcode")),
	}, nil
}

func addressType(parent *migration.Document, e migration.Entity) string {
	switch {
	case e.Bool("invoiceAddress") || e.Bool("primeAddress"):
		return "Billing"
	case e.Bool("deliveryAddress"):
		return "Shipping"
	case parent != nil && parent.Doctype == "Contact":
		return "Personal"
	default:
		return "Other"
	}
}
