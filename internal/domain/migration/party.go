package migration

// Party is the resolved counterparty of an opportunity.
// It is one of CustomerRef, LeadRef or Unresolved.
type Party interface {
	isParty()
}

// CustomerRef points at a migrated Customer.
type CustomerRef struct {
	Document *Document
}

// LeadRef points at a migrated Lead.
type LeadRef struct {
	Document *Document
}

// Unresolved means no migrated customer or lead matches.
type Unresolved struct{}

func (CustomerRef) isParty() {}
func (LeadRef) isParty()     {}
func (Unresolved) isParty()  {}

// PartyDocument returns the doctype and document of a resolved party.
func PartyDocument(p Party) (string, *Document) {
	switch ref := p.(type) {
	case CustomerRef:
		return "Customer", ref.Document
	case LeadRef:
		return "Lead", ref.Document
	default:
		return "", nil
	}
}
