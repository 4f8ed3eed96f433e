package definitions

import (
	"context"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// referenceList migrates WeClapp lookup lists whose entries only carry a name.
// The destination document is named after the entry so that other documents
// can reference it by value.
type referenceList struct {
	migrationapp.Base
	kind, sourceType, destinationType string
	field                             string
	extra                             migration.Fields
}

func (r referenceList) Kind() string            { return r.kind }
func (r referenceList) SourceType() string      { return r.sourceType }
func (r referenceList) DestinationType() string { return r.destinationType }

func (r referenceList) Transform(_ context.Context, _ *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	name := e.String("name")
	fields := migration.Fields{
		"name":  mapping.Optional(name),
		r.field: mapping.Optional(name),
	}
	for k, v := range r.extra {
		fields[k] = v
	}
	return fields, nil
}

// Salutation migrates WeClapp titles
func Salutation() migrationapp.Definition {
	return referenceList{kind: KindSalutation, sourceType: "title", destinationType: "Salutation", field: "salutation"}
}

// IndustryType migrates WeClapp sectors
func IndustryType() migrationapp.Definition {
	return referenceList{kind: KindIndustryType, sourceType: "sector", destinationType: "Industry Type", field: "industry"}
}

// MarketSegment migrates WeClapp customer categories
func MarketSegment() migrationapp.Definition {
	return referenceList{kind: KindMarketSegment, sourceType: "customerCategory", destinationType: "Market Segment", field: "market_segment"}
}

// LeadSource migrates WeClapp lead sources
func LeadSource() migrationapp.Definition {
	return referenceList{kind: KindLeadSource, sourceType: "leadSource", destinationType: "Lead Source", field: "source_name"}
}

// UOM migrates WeClapp units
func UOM() migrationapp.Definition {
	return referenceList{
		kind:            KindUOM,
		sourceType:      "unit",
		destinationType: "UOM",
		field:           "uom_name",
		extra:           migration.Fields{"enabled": true},
	}
}
