package interfaces

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateID is returned when inserting a job whose ID already exists.
	ErrDuplicateID = errors.New("job ID already exists")
	// ErrNotFound is returned when a job or result does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a finalize or requeue targets a
	// job that is not currently processing. Duplicate finalization lands here.
	ErrInvalidTransition = errors.New("job is not in a finalizable state")
	// ErrDanglingReference is returned when saving a result for a job that
	// does not exist.
	ErrDanglingReference = errors.New("result references unknown job")
)

// JobStore defines the durable operations needed by the engine and workers.
// ClaimNext is the only operation requiring mutual exclusion across callers:
// it must be a single atomic read-modify-write so that two concurrent
// claimers can never both receive the same job.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context) ([]*Job, error)

	// ClaimNext atomically claims the oldest pending job for the given
	// worker kind, transitioning it to processing. Returns nil, nil when no
	// eligible job exists.
	ClaimNext(ctx context.Context, worker string) (*Job, error)

	// Finalize moves a processing job to completed or failed. Returns
	// ErrInvalidTransition if the job is not processing.
	Finalize(ctx context.Context, id string, status JobStatus, lastError string, attempts int) error

	// Requeue moves a processing job back to pending after a recoverable
	// failure, incrementing its attempt counter.
	Requeue(ctx context.Context, id string, lastError string) error

	// RequeueStale returns processing jobs whose updated_at has not advanced
	// within olderThan back to pending. This is the sole crash recovery
	// mechanism for abandoned claims.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// TouchJob advances updated_at on a processing job, keeping its claim
	// lease alive during a long fetch. Returns ErrInvalidTransition when the
	// job is no longer processing (its lease was lost) and ErrNotFound when
	// it does not exist.
	TouchJob(ctx context.Context, id string) error

	SaveResult(ctx context.Context, result *Result) error
	GetResultByJobID(ctx context.Context, jobID string) (*Result, error)

	// FindCachedResult returns the most recent successful result for the
	// given worker kind whose original or final URL equals url, created
	// within the freshness window. A zero window disables the lookup.
	FindCachedResult(ctx context.Context, worker, url string, window time.Duration) (*Result, error)
}
