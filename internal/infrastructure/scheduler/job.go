package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobType is the operation a job performs
type JobType string

const (
	// JobTypeCache refetches the WeClapp source cache
	JobTypeCache JobType = "CACHE"
	// JobTypeMigrate migrates one kind, or all kinds in dependency order
	JobTypeMigrate JobType = "MIGRATE"
	// JobTypeClear un-migrates one kind
	JobTypeClear JobType = "CLEAR"
)

// Job is one queued unit of work
type Job struct {
	ID          uuid.UUID         `json:"id"`
	Type        JobType           `json:"type"`
	Kind        string            `json:"kind,omitempty"`
	Where       map[string]string `json:"where,omitempty"`
	Status      JobStatus         `json:"status"`
	Error       string            `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// NewJob creates a pending job
func NewJob(jobType JobType, kind string, where map[string]string) *Job {
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Kind:        kind,
		Where:       where,
		Status:      JobStatusPending,
		SubmittedAt: time.Now(),
	}
}

// Validate checks that the job names what it needs
func (j *Job) Validate() error {
	switch j.Type {
	case JobTypeCache:
		return nil
	case JobTypeMigrate:
		if len(j.Where) > 0 && j.Kind == "" {
			return fmt.Errorf("%w: a filter needs a kind", ErrInvalidJob)
		}
		return nil
	case JobTypeClear:
		if j.Kind == "" {
			return fmt.Errorf("%w: clear needs a kind", ErrInvalidJob)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidJob, j.Type)
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// Finished reports whether the job reached a final status
func (j *Job) Finished() bool {
	return j.Status == JobStatusSuccess || j.Status == JobStatusFailed
}

func (j *Job) snapshot() Job {
	out := *j
	if j.Where != nil {
		out.Where = make(map[string]string, len(j.Where))
		for k, v := range j.Where {
			out.Where[k] = v
		}
	}
	return out
}
