package migration

import "fmt"

// DomainError represents a migration domain error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Migration errors, compared with errors.Is
var (
	ErrNotFound             = NewDomainError("NOT_FOUND", "Document not found")
	ErrDuplicateIdentity    = NewDomainError("DUPLICATE_IDENTITY", "Document with the same identity already exists")
	ErrMissingRequiredField = NewDomainError("MISSING_REQUIRED_FIELD", "Required field is missing")
	ErrMissingReference     = NewDomainError("MISSING_REFERENCE", "Referenced document is missing")
	ErrLinkExists           = NewDomainError("LINK_EXISTS", "Document is still referenced by other documents")
	ErrContactNotMigrated   = NewDomainError("CONTACT_NOT_MIGRATED", "Contact has not been migrated yet")
	ErrSourceAPI            = NewDomainError("SOURCE_API", "WeClapp API error")
	ErrUnknownKind          = NewDomainError("UNKNOWN_KIND", "Unknown migration kind")
	ErrPanic                = NewDomainError("PANIC", "Migration code panicked")
)

// MigrationError carries the entity a failure belongs to.
type MigrationError struct {
	Kind       string
	ExternalID string
	Err        error
}

// Error implements the error interface
func (e *MigrationError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ExternalID, e.Err)
}

// Unwrap returns the underlying error
func (e *MigrationError) Unwrap() error {
	return e.Err
}
