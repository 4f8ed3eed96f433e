package dto

import (
	"time"

	"github.com/google/uuid"
)

// MigrateJobRequest submits a migration of one kind, or of every kind when Kind is empty
type MigrateJobRequest struct {
	Kind  string            `json:"kind" binding:"omitempty,kind"`
	Where map[string]string `json:"where" binding:"omitempty,max=10"`
}

// ClearJobRequest names the kind to clear
type ClearJobRequest struct {
	Kind string `uri:"kind" binding:"required,kind"`
}

// JobIDRequest names a job by id
type JobIDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// LogListRequest filters the migration log
type LogListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=Success Error"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// JobResponse is the API view of a scheduled job
type JobResponse struct {
	ID          uuid.UUID         `json:"id"`
	Type        string            `json:"type"`
	Kind        string            `json:"kind,omitempty"`
	Where       map[string]string `json:"where,omitempty"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// LogEntryResponse is one migration log entry
type LogEntryResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
