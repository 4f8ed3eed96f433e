package definitions

import (
	"context"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Contact migrates contact persons embedded in customers and leads
type Contact struct {
	migrationapp.Base
}

func (Contact) Kind() string            { return KindContact }
func (Contact) SourceType() string      { return "" }
func (Contact) DestinationType() string { return "Contact" }
func (Contact) DependsOn() []string     { return []string{KindSalutation, KindAddress} }

func (Contact) BeforeTransform(_ context.Context, _ *migrationapp.Migration, e migration.Entity) (migration.Entity, error) {
	return splitCombinedName(e), nil
}

func (Contact) Transform(_ context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	return migration.Fields{
		"salutation": salutation(e),
		"first_name": mapping.Optional(e.String("firstName")),
		"last_name":  mapping.Optional(e.String("lastName")),
		"email_ids":  emailIDs(e),
		"phone_nos":  phoneNos(m, e),
	}, nil
}

// AfterCreate migrates the contact's addresses and references the first one.
func (Contact) AfterCreate(ctx context.Context, m *migrationapp.Migration, e migration.Entity, doc *migration.Document) error {
	addresses := e.List("addresses")
	if len(addresses) == 0 {
		return nil
	}
	docs, err := m.MigrateLinked(ctx, KindAddress, doc, addresses)
	if err != nil || len(docs) == 0 {
		return err
	}
	_, err = m.Store().Update(ctx, doc, migration.Fields{"address": docs[0].Name})
	return err
}

func (Contact) BeforeClear(ctx context.Context, m *migrationapp.Migration, doc *migration.Document) error {
	if doc.String("address") != "" {
		if _, err := m.Store().Update(ctx, doc, migration.Fields{"address": nil}); err != nil {
			return err
		}
	}
	return m.DeleteLinkedChildren(ctx, KindAddress, doc)
}

func emailIDs(e migration.Entity) []migration.Fields {
	email := e.String("email")
	if email == "" {
		return []migration.Fields{}
	}
	return []migration.Fields{{"email_id": email, "is_primary": true}}
}

func phoneNos(m *migrationapp.Migration, e migration.Entity) []migration.Fields {
	rows := []migration.Fields{}
	if v := e.String("phone"); v != "" {
		rows = append(rows, migration.Fields{"phone": phone(m, v), "is_primary_phone": true})
	}
	if v := e.String("fax"); v != "" {
		rows = append(rows, migration.Fields{"phone": phone(m, v), "custom_is_fax_number": true})
	}
	if v := e.String("mobilePhone1"); v != "" {
		rows = append(rows, migration.Fields{"phone": phone(m, v), "is_primary_mobile_no": true})
	}
	if v := e.String("mobilePhone2"); v != "" {
		rows = append(rows, migration.Fields{"phone": phone(m, v)})
	}
	return rows
}
