package definitions

import (
	"context"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Lead migrates WeClapp leads with their contacts and addresses
type Lead struct {
	migrationapp.Base
}

func (Lead) Kind() string            { return KindLead }
func (Lead) SourceType() string      { return "lead" }
func (Lead) DestinationType() string { return "Lead" }

func (Lead) DependsOn() []string {
	return []string{KindSalutation, KindIndustryType, KindMarketSegment, KindLeadSource, KindContact, KindAddress}
}

func (Lead) BeforeTransform(_ context.Context, _ *migrationapp.Migration, e migration.Entity) (migration.Entity, error) {
	return splitCombinedName(e), nil
}

func (Lead) Transform(_ context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	status, qualification := leadStatus(e.String("leadStatus"))
	return migration.Fields{
		"name":                 mapping.Optional(e.String("leadNumber")),
		"salutation":           salutation(e),
		"first_name":           mapping.Optional(e.String("firstName")),
		"last_name":            mapping.Optional(e.String("lastName")),
		"company_name":         mapping.Optional(e.String("company")),
		"source":               mapping.Optional(e.String("leadSourceName")),
		"type":                 m.Settings().DefaultLeadType,
		"email_id":             mapping.Optional(e.String("email")),
		"phone":                phone(m, e.String("phone")),
		"website":              mapping.Optional(e.String("website")),
		"industry":             mapping.Optional(e.String("sectorName")),
		"market_segment":       mapping.Optional(e.String("customerCategoryName")),
		"status":               status,
		"qualification_status": qualification,
	}, nil
}

func (Lead) Tags(e migration.Entity) []string {
	return tags(e, "leadTopics")
}

// AfterCreate migrates contacts and addresses. The primary contact and address
// fill lead fields that are still empty.
func (Lead) AfterCreate(ctx context.Context, m *migrationapp.Migration, e migration.Entity, doc *migration.Document) error {
	if _, err := m.MigrateLinked(ctx, KindContact, doc, e.List("contacts")); err != nil {
		return err
	}
	contact, err := markPrimary(ctx, m, doc, KindContact, e.String("primaryContactId"), "", "is_primary_contact")
	if err != nil {
		return err
	}
	if contact != nil {
		if err := fillEmpty(ctx, m, doc, migration.Fields{
			"first_name": contact.String("first_name"),
			"last_name":  contact.String("last_name"),
			"email_id":   firstRow(contact, "email_ids", "is_primary", "email_id"),
			"phone":      firstRow(contact, "phone_nos", "is_primary_phone", "phone"),
			"mobile_no":  firstRow(contact, "phone_nos", "is_primary_mobile_no", "phone"),
			"fax":        firstRow(contact, "phone_nos", "custom_is_fax_number", "phone"),
		}); err != nil {
			return err
		}
	}

	if _, err := m.MigrateLinked(ctx, KindAddress, doc, e.List("addresses")); err != nil {
		return err
	}
	address, err := markPrimary(ctx, m, doc, KindAddress, e.String("primaryAddressId"), "", "is_primary_address")
	if err != nil || address == nil {
		return err
	}
	_, err = m.Store().Update(ctx, doc, migration.Fields{
		"city":    mapping.Optional(address.String("city")),
		"state":   mapping.Optional(address.String("state")),
		"country": mapping.Optional(address.String("country")),
	})
	return err
}

func (Lead) BeforeClear(ctx context.Context, m *migrationapp.Migration, doc *migration.Document) error {
	if err := m.DeleteLinkedChildren(ctx, KindContact, doc); err != nil {
		return err
	}
	return m.DeleteLinkedChildren(ctx, KindAddress, doc)
}

func leadStatus(status string) (string, string) {
	switch status {
	case "QUALIFIED":
		return "Lead", "Qualified"
	case "DISQUALIFIED":
		return "Do Not Contact", "Unqualified"
	default:
		return "Open", "In Process"
	}
}

// fillEmpty writes the non-empty values whose field is still empty on doc.
func fillEmpty(ctx context.Context, m *migrationapp.Migration, doc *migration.Document, values migration.Fields) error {
	updates := migration.Fields{}
	for field, v := range values {
		s, _ := v.(string)
		if s == "" || doc.String(field) != "" {
			continue
		}
		updates[field] = s
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := m.Store().Update(ctx, doc, updates)
	return err
}

// firstRow returns column of the first child table row with flag set.
func firstRow(doc *migration.Document, table, flag, column string) string {
	for _, row := range doc.Rows(table) {
		if b, _ := row[flag].(bool); b {
			s, _ := row[column].(string)
			return s
		}
	}
	return ""
}
