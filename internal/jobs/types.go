package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypePostRecurring posts one occurrence of a due recurring
	// transaction template.
	JobTypePostRecurring JobType = "process_recurring_transaction"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed after exhausting retries.
	JobStatusFailed JobStatus = "failed"
)

// PostRecurringJob is one fanned-out work item: post one due recurring
// transaction. The trigger function emits one job per due template so the
// consumer can parallelize and throttle per user.
type PostRecurringJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// TransactionID is the recurring template to post.
	TransactionID uuid.UUID `json:"transaction_id"`

	// UserID owns the template; the consumer throttles on it.
	UserID uuid.UUID `json:"user_id"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// MaxAttempts bounds retries; the default is two attempts with
	// exponential backoff.
	MaxAttempts int `json:"max_attempts"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *PostRecurringJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *PostRecurringJob) GetType() JobType {
	return JobTypePostRecurring
}

// GetStatus implements the Job interface.
func (j *PostRecurringJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
// The abstraction allows swapping the in-memory queue for a durable broker
// without touching the trigger function.
type Publisher interface {
	// PublishPostRecurring publishes a recurring-posting job.
	PublishPostRecurring(ctx context.Context, job *PostRecurringJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *PostRecurringJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*PostRecurringJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*PostRecurringJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// TransactionID filters jobs by the template they post.
	TransactionID uuid.UUID

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
