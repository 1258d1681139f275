package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mtr002/Crawl-Queue/internal/interfaces"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Store handles database operations for jobs and results
type Store struct {
	db *sql.DB
}

// NewStore creates a new database store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, worker, request_url, status, attempts, max_attempts, last_error, created_at, updated_at`

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(ctx context.Context, job *interfaces.Job) error {
	query := `
		INSERT INTO jobs (id, worker, request_url, status, attempts, max_attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.Worker, nullString(job.RequestURL), job.Status,
		job.Attempts, job.MaxAttempts, nullString(job.LastError),
		job.CreatedAt, job.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return interfaces.ErrDuplicateID
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*interfaces.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListJobs retrieves all jobs, newest first
func (s *Store) ListJobs(ctx context.Context) ([]*interfaces.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*interfaces.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return jobs, nil
}

// ClaimNext atomically claims the oldest pending job for the given worker
// kind using SELECT FOR UPDATE SKIP LOCKED, so that concurrent claimers can
// never both receive the same job. Returns nil, nil when no job is eligible.
func (s *Store) ClaimNext(ctx context.Context, worker string) (*interfaces.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'pending' AND worker = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	job, err := scanJob(tx.QueryRowContext(ctx, query, worker))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No pending jobs
		}
		return nil, fmt.Errorf("failed to select pending job: %w", err)
	}

	job.Status = interfaces.StatusProcessing
	job.UpdatedAt = time.Now().UTC()

	updateQuery := `UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, job.ID, job.Status, job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to mark job as processing: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	return job, nil
}

// Finalize transitions a processing job to completed or failed. The guard on
// the current status makes duplicate finalization fail with
// ErrInvalidTransition instead of being applied twice.
func (s *Store) Finalize(ctx context.Context, id string, status interfaces.JobStatus, lastError string, attempts int) error {
	if status != interfaces.StatusCompleted && status != interfaces.StatusFailed {
		return fmt.Errorf("finalize to %q: %w", status, interfaces.ErrInvalidTransition)
	}

	query := `
		UPDATE jobs
		SET status = $2, last_error = $3, attempts = $4, updated_at = $5
		WHERE id = $1 AND status = 'processing'
	`

	res, err := s.db.ExecContext(ctx, query, id, status, nullString(lastError), attempts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetJob(ctx, id); errors.Is(err, interfaces.ErrNotFound) {
			return interfaces.ErrNotFound
		}
		return interfaces.ErrInvalidTransition
	}

	return nil
}

// Requeue moves a processing job back to pending after a recoverable failure
// and increments its attempt counter.
func (s *Store) Requeue(ctx context.Context, id string, lastError string) error {
	query := `
		UPDATE jobs
		SET status = 'pending', last_error = $2, attempts = attempts + 1, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`

	res, err := s.db.ExecContext(ctx, query, id, nullString(lastError), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetJob(ctx, id); errors.Is(err, interfaces.ErrNotFound) {
			return interfaces.ErrNotFound
		}
		return interfaces.ErrInvalidTransition
	}

	return nil
}

// RequeueStale returns processing jobs whose claim lease has gone stale back
// to pending. A crash between claim and finalize leaves updated_at frozen, so
// the job becomes claimable again once olderThan elapses.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		UPDATE jobs
		SET status = 'pending',
		    last_error = CASE
		        WHEN last_error IS NULL OR last_error = '' THEN 'requeued after stale claim'
		        ELSE last_error || '; requeued after stale claim'
		    END,
		    updated_at = $2
		WHERE status = 'processing' AND updated_at < $1
	`

	res, err := s.db.ExecContext(ctx, query, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// TouchJob advances updated_at on a processing job, keeping the claim lease
// alive while a long fetch runs. A job that is no longer processing returns
// ErrInvalidTransition so the holder learns its lease was lost to the stale
// reaper.
func (s *Store) TouchJob(ctx context.Context, id string) error {
	query := `UPDATE jobs SET updated_at = $2 WHERE id = $1 AND status = 'processing'`

	res, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetJob(ctx, id); errors.Is(err, interfaces.ErrNotFound) {
			return interfaces.ErrNotFound
		}
		return interfaces.ErrInvalidTransition
	}

	return nil
}

// SaveResult persists a result linked to its owning job
func (s *Store) SaveResult(ctx context.Context, result *interfaces.Result) error {
	query := `
		INSERT INTO results (id, job_id, original_url, final_url, payload, success, error_detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		result.ID, result.JobID, nullString(result.OriginalURL), result.FinalURL,
		[]byte(result.Payload), result.Success, nullString(result.ErrorDetail),
		result.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqForeignKeyViolation:
				return interfaces.ErrDanglingReference
			case pqUniqueViolation:
				return interfaces.ErrDuplicateID
			}
		}
		return fmt.Errorf("failed to save result: %w", err)
	}

	return nil
}

const resultColumns = `id, job_id, original_url, final_url, payload, success, error_detail, created_at`

// GetResultByJobID retrieves the most recent result for a job
func (s *Store) GetResultByJobID(ctx context.Context, jobID string) (*interfaces.Result, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM results
		WHERE job_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	result, err := scanResult(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return result, nil
}

// FindCachedResult looks up the most recent successful result for the worker
// kind whose original or final URL matches url. Two spellings of the same
// resource (the submitted URL and its redirect-resolved form) both hit the
// same entry. Returns nil, nil on a miss; a zero window always misses.
func (s *Store) FindCachedResult(ctx context.Context, worker, url string, window time.Duration) (*interfaces.Result, error) {
	if window <= 0 {
		return nil, nil
	}

	cutoff := time.Now().UTC().Add(-window)

	query := `
		SELECT r.id, r.job_id, r.original_url, r.final_url, r.payload, r.success, r.error_detail, r.created_at
		FROM results r
		JOIN jobs j ON j.id = r.job_id
		WHERE j.worker = $1
		  AND (r.original_url = $2 OR r.final_url = $2)
		  AND r.success = TRUE
		  AND r.created_at >= $3
		ORDER BY r.created_at DESC
		LIMIT 1
	`

	result, err := scanResult(s.db.QueryRowContext(ctx, query, worker, url, cutoff))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to look up cached result: %w", err)
	}

	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*interfaces.Job, error) {
	job := &interfaces.Job{}
	var requestURL, lastError sql.NullString

	err := row.Scan(&job.ID, &job.Worker, &requestURL, &job.Status,
		&job.Attempts, &job.MaxAttempts, &lastError, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.RequestURL = requestURL.String
	job.LastError = lastError.String
	return job, nil
}

func scanResult(row scanner) (*interfaces.Result, error) {
	result := &interfaces.Result{}
	var originalURL, errorDetail sql.NullString
	var payload []byte

	err := row.Scan(&result.ID, &result.JobID, &originalURL, &result.FinalURL,
		&payload, &result.Success, &errorDetail, &result.CreatedAt)
	if err != nil {
		return nil, err
	}

	result.OriginalURL = originalURL.String
	result.ErrorDetail = errorDetail.String
	result.Payload = payload
	return result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
