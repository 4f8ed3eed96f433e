package dto

import "net/http"

// Error codes returned by the job API.

// General errors
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Request errors
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Authentication errors
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
)

// Resource errors
const (
	ErrCodeNotFound    = "ERR_NOT_FOUND"
	ErrCodeUnknownKind = "ERR_UNKNOWN_KIND"
	ErrCodeConflict    = "ERR_CONFLICT"
)

// Migration errors
const (
	ErrCodeMissingField     = "ERR_MISSING_REQUIRED_FIELD"
	ErrCodeMissingReference = "ERR_MISSING_REFERENCE"
	ErrCodeLinkExists       = "ERR_LINK_EXISTS"
	ErrCodeSourceAPI        = "ERR_SOURCE_API"
)

// Scheduling errors
const (
	ErrCodeQueueFull   = "ERR_QUEUE_FULL"
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:    http.StatusNotFound,
	ErrCodeUnknownKind: http.StatusNotFound,
	ErrCodeConflict:    http.StatusConflict,

	ErrCodeMissingField:     http.StatusUnprocessableEntity,
	ErrCodeMissingReference: http.StatusUnprocessableEntity,
	ErrCodeLinkExists:       http.StatusConflict,
	ErrCodeSourceAPI:        http.StatusBadGateway,

	ErrCodeQueueFull:   http.StatusServiceUnavailable,
	ErrCodeUnavailable: http.StatusServiceUnavailable,
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps migration domain error codes to API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"DUPLICATE_IDENTITY":     ErrCodeConflict,
	"MISSING_REQUIRED_FIELD": ErrCodeMissingField,
	"MISSING_REFERENCE":      ErrCodeMissingReference,
	"LINK_EXISTS":            ErrCodeLinkExists,
	"CONTACT_NOT_MIGRATED":   ErrCodeMissingReference,
	"SOURCE_API":             ErrCodeSourceAPI,
	"UNKNOWN_KIND":           ErrCodeUnknownKind,
}

// NormalizeErrorCode converts a domain error code to its API code
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
