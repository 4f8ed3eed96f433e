package definitions

import (
	"context"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Opportunity migrates WeClapp opportunities onto a migrated customer or lead
type Opportunity struct {
	migrationapp.Base
}

func (Opportunity) Kind() string            { return KindOpportunity }
func (Opportunity) SourceType() string      { return "opportunity" }
func (Opportunity) DestinationType() string { return "Opportunity" }
func (Opportunity) DependsOn() []string     { return []string{KindCustomer, KindLead, KindUser} }

// salesStages maps WeClapp sales stage names to opportunity statuses
var salesStages = map[string]string{
	"Qualifikation":           "Open",
	"Erstes Angebot erstellt": "Quotation",
	"Annahme unter Vorbehalt": "Converted",
	"Auftrag erzeugt":         "Converted",
	"Gewonnen":                "Converted",
	"Verloren":                "Lost",
	"Erste Kontaktaufnahme":   "Replied",
}

func (Opportunity) Transform(ctx context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	party, err := ResolveParty(ctx, m, e.String("customerId"))
	if err != nil {
		return nil, err
	}
	contact, err := ResolveContact(ctx, m, e)
	if err != nil {
		return nil, err
	}
	owner, err := opportunityOwner(ctx, m, e.String("responsibleUserUsername"))
	if err != nil {
		return nil, err
	}

	fields := migration.Fields{
		"name":                   mapping.Optional(e.String("opportunityNumber")),
		"opportunity_from":       nil,
		"party_name":             nil,
		"contact_person":         nil,
		"custom_title":           mapping.Optional(e.String("name")),
		"custom_description":     mapping.Optional(e.String("description")),
		"opportunity_owner":      owner,
		"sales_stage":            mapping.Optional(e.String("salesStageName")),
		"status":                 opportunityStatus(e.String("salesStageName")),
		"probability":            nil,
		"expected_closing":       timestampDate(m, e, "expectedSignatureDate"),
		"custom_weclapp_created": timestampDateTime(m, e, "createdDate"),
		"opportunity_amount":     nil,
		"hot_lead":               e.Bool("hotLead"),
		"opportunity_type":       m.Settings().DefaultOpportunityType,
	}
	if doctype, doc := migration.PartyDocument(party); doc != nil {
		fields["opportunity_from"] = doctype
		fields["party_name"] = doc.Name
	}
	if contact != nil {
		fields["contact_person"] = contact.Name
	}
	if p, ok := number(e, "salesProbability"); ok {
		fields["probability"] = p.InexactFloat64()
	}
	if revenue, ok := number(e, "revenue"); ok {
		fields["opportunity_amount"] = revenue.Round(2).InexactFloat64()
	}
	return fields, nil
}

func opportunityStatus(stage string) string {
	if status, ok := salesStages[stage]; ok {
		return status
	}
	return "Open"
}

// opportunityOwner resolves the responsible WeClapp user to a migrated User by name or email.
func opportunityOwner(ctx context.Context, m *migrationapp.Migration, username string) (any, error) {
	if username == "" {
		return nil, nil
	}
	user, err := m.Store().Lookup(ctx, "User", "name", username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if user, err = m.Store().Lookup(ctx, "User", "email", mapping.PrepareEmail(username)); err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, nil
	}
	return user.Name, nil
}
