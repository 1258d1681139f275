package interfaces

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal returns true once a job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents a fetch job in the queue
type Job struct {
	ID          string    `json:"id"`
	Worker      string    `json:"worker"`
	RequestURL  string    `json:"request_url,omitempty"`
	Status      JobStatus `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// String returns a string representation of the job
func (j *Job) String() string {
	return fmt.Sprintf("Job{ID: %s, Worker: %s, Status: %s, Attempts: %d/%d}",
		j.ID, j.Worker, j.Status, j.Attempts, j.MaxAttempts)
}

// CanRetry returns true while the job has requeues left. A job is requeued
// at most MaxAttempts times; the execution after the final requeue is its
// last.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// Result is the immutable record of a job's output. FinalURL is always set:
// a result without a concrete fetched resource is never persisted.
type Result struct {
	ID          string          `json:"id"`
	JobID       string          `json:"job_id"`
	OriginalURL string          `json:"original_url,omitempty"`
	FinalURL    string          `json:"final_url"`
	Payload     json.RawMessage `json:"payload"`
	Success     bool            `json:"success"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
