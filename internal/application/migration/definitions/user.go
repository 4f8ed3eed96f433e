package definitions

import (
	"context"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// User migrates WeClapp users. Users are matched by e-mail instead of the
// WeClapp id, carry no provenance and are therefore never cleared.
type User struct {
	migrationapp.Base
}

func (User) Kind() string            { return KindUser }
func (User) SourceType() string      { return "user" }
func (User) DestinationType() string { return "User" }

// ExternalID is empty; users are identified by e-mail
func (User) ExternalID(migration.Entity) string { return "" }

// FindExisting looks the user up by the prepared e-mail address
func (User) FindExisting(ctx context.Context, m *migrationapp.Migration, e migration.Entity) (*migration.Document, error) {
	email := mapping.PrepareEmail(e.String("email"))
	if email == "" {
		return nil, nil
	}
	return m.Store().Lookup(ctx, "User", "email", email)
}

func (User) Transform(_ context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	email := mapping.Optional(mapping.PrepareEmail(e.String("email")))
	return migration.Fields{
		"name":       email,
		"email":      email,
		"first_name": mapping.Optional(e.String("firstName")),
		"last_name":  mapping.Optional(e.String("lastName")),
		"language":   m.Settings().DefaultLanguage,
	}, nil
}
