package definitions

import (
	"context"
	"strings"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Customer migrates WeClapp customers with their contacts and addresses
type Customer struct {
	migrationapp.Base
}

func (Customer) Kind() string            { return KindCustomer }
func (Customer) SourceType() string      { return "customer" }
func (Customer) DestinationType() string { return "Customer" }

func (Customer) DependsOn() []string {
	return []string{KindSalutation, KindIndustryType, KindMarketSegment, KindLeadSource, KindContact, KindAddress}
}

func (Customer) Transform(_ context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	return migration.Fields{
		"name":               mapping.Optional(e.String("customerNumber")),
		"salutation":         salutation(e),
		"customer_name":      customerName(e),
		"customer_type":      customerType(e),
		"website":            mapping.Optional(e.String("website")),
		"tax_id":             mapping.Optional(e.String("vatRegistrationNumber")),
		"custom_phone":       phone(m, e.String("phone")),
		"custom_email":       mapping.Optional(e.String("email")),
		"industry":           mapping.Optional(e.String("sectorName")),
		"market_segment":     mapping.Optional(e.String("customerCategoryName")),
		"custom_rating":      mapping.Optional(e.String("customerRatingName")),
		"custom_lead_source": mapping.Optional(e.String("leadSourceName")),
		"customer_details":   mapping.Optional(mapping.StripHTML(e.String("description"))),
	}, nil
}

func (Customer) Tags(e migration.Entity) []string {
	return tags(e, "customerTopics")
}

// AfterCreate migrates the embedded contacts and addresses and marks the primary ones.
func (Customer) AfterCreate(ctx context.Context, m *migrationapp.Migration, e migration.Entity, doc *migration.Document) error {
	if _, err := m.MigrateLinked(ctx, KindContact, doc, e.List("contacts")); err != nil {
		return err
	}
	if _, err := markPrimary(ctx, m, doc, KindContact, e.String("primaryContactId"), "customer_primary_contact", "is_primary_contact"); err != nil {
		return err
	}
	if _, err := m.MigrateLinked(ctx, KindAddress, doc, e.List("addresses")); err != nil {
		return err
	}
	_, err := markPrimary(ctx, m, doc, KindAddress, e.String("primaryAddressId"), "customer_primary_address", "is_primary_address")
	return err
}

// BeforeClear drops the primary references and clears the linked contacts and addresses.
func (Customer) BeforeClear(ctx context.Context, m *migrationapp.Migration, doc *migration.Document) error {
	_, err := m.Store().Update(ctx, doc, migration.Fields{
		"customer_primary_contact": nil,
		"customer_primary_address": nil,
	})
	if err != nil {
		return err
	}
	if err := m.DeleteLinkedChildren(ctx, KindContact, doc); err != nil {
		return err
	}
	return m.DeleteLinkedChildren(ctx, KindAddress, doc)
}

func isCompany(e migration.Entity) bool {
	return e.String("partyType") != "PERSON"
}

func customerName(e migration.Entity) any {
	if isCompany(e) {
		return mapping.Optional(e.String("company"))
	}
	return mapping.Optional(strings.TrimSpace(e.String("firstName") + " " + e.String("lastName")))
}

func customerType(e migration.Entity) string {
	if isCompany(e) {
		return "Company"
	}
	return "Individual"
}
