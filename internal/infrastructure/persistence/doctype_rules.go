package persistence

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// requiredFields mirrors the mandatory fields of the destination doctypes.
var requiredFields = map[string][]string{
	"Address":        {"address_title", "address_line1", "city", "address_type"},
	"Contact":        {"first_name"},
	"Customer":       {"customer_name", "customer_type"},
	"Industry Type":  {"industry"},
	"Item":           {"item_code", "item_name", "item_group", "stock_uom"},
	"Lead":           {"status"},
	"Lead Source":    {"source_name"},
	"Market Segment": {"market_segment"},
	"Opportunity":    {"opportunity_from", "party_name", "status"},
	"Salutation":     {"salutation"},
	"UOM":            {"uom_name"},
	"User":           {"email", "first_name"},
}

// reference is a link field on Doctype pointing at another document.
// TypeField names the field holding the target doctype for dynamic links.
type reference struct {
	Doctype   string
	Field     string
	TypeField string
}

// referencedBy lists, per target doctype, the fields that block its deletion.
var referencedBy = map[string][]reference{
	"Address": {
		{Doctype: "Customer", Field: "customer_primary_address"},
		{Doctype: "Contact", Field: "address"},
	},
	"Contact": {
		{Doctype: "Customer", Field: "customer_primary_contact"},
		{Doctype: "Opportunity", Field: "contact_person"},
	},
	"Customer": {
		{Doctype: "Opportunity", Field: "party_name", TypeField: "opportunity_from"},
		{Doctype: "Extended Contract", Field: "customer"},
	},
	"Lead": {
		{Doctype: "Opportunity", Field: "party_name", TypeField: "opportunity_from"},
	},
	"UOM": {
		{Doctype: "Item", Field: "stock_uom"},
	},
	"User": {
		{Doctype: "Opportunity", Field: "opportunity_owner"},
	},
}

var namingSeries = map[string]string{
	"Address":           "ADDR-",
	"Contact":           "CONT-",
	"Customer":          "CUST-",
	"Extended Contract": "CONTRACT-",
	"Lead":              "CRM-LEAD-",
	"Opportunity":       "CRM-OPP-",
}

func validateRequired(doctype string, fields map[string]any) error {
	var missing []string
	for _, f := range requiredFields[doctype] {
		if isBlank(fields[f]) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s needs %s", migration.ErrMissingRequiredField, doctype, strings.Join(missing, ", "))
	}
	return nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func autoname(doctype string) string {
	prefix, ok := namingSeries[doctype]
	if !ok {
		prefix = strings.ToUpper(strings.ReplaceAll(doctype, " ", "-")) + "-"
	}
	return prefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
