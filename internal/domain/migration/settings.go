package migration

import "time"

// Settings are the migration defaults shared by the engine and all definitions.
// The value is copied into the engine and never mutated.
type Settings struct {
	DefaultPhoneCountryCode string
	DefaultLanguage         string
	DefaultOpportunityType  string
	DefaultItemGroup        string
	DefaultLeadType         string
	AttachmentRoot          string
	PageSize                int
	Location                *time.Location
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		DefaultPhoneCountryCode: "49",
		DefaultLanguage:         "de",
		DefaultOpportunityType:  "Sales",
		DefaultItemGroup:        "Products",
		DefaultLeadType:         "Client",
		AttachmentRoot:          "Home/Attachments",
		PageSize:                100,
		Location:                time.Local,
	}
}

// TimeZone returns the configured location, falling back to the local zone.
func (s Settings) TimeZone() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}
