package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mtr002/Crawl-Queue/internal/interfaces"
	"github.com/mtr002/Crawl-Queue/internal/logger"
	"github.com/mtr002/Crawl-Queue/internal/metrics"
)

// ValidationError rejects a bad submission before any job row is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Engine governs the job lifecycle: submit validation, the claim protocol,
// and the finalize/requeue policy. Retry and staleness parameters always come
// from configuration; the engine has no defaults of its own.
type Engine struct {
	store          interfaces.JobStore
	kinds          map[string]bool
	maxAttempts    int
	staleThreshold time.Duration
}

// NewEngine creates an engine accepting the given worker kinds.
func NewEngine(store interfaces.JobStore, kinds []string, maxAttempts int, staleThreshold time.Duration) *Engine {
	known := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		known[k] = true
	}

	return &Engine{
		store:          store,
		kinds:          known,
		maxAttempts:    maxAttempts,
		staleThreshold: staleThreshold,
	}
}

// Kinds reports the worker kinds this engine accepts.
func (e *Engine) Kinds() []string {
	kinds := make([]string, 0, len(e.kinds))
	for k := range e.kinds {
		kinds = append(kinds, k)
	}
	return kinds
}

// Submit validates and persists a new pending job. An unrecognized worker
// kind is a configuration error and is rejected before a row exists.
func (e *Engine) Submit(ctx context.Context, worker, requestURL string) (*interfaces.Job, error) {
	if worker == "" {
		return nil, &ValidationError{Field: "worker", Reason: "must not be empty"}
	}
	if !e.kinds[worker] {
		return nil, &ValidationError{Field: "worker", Reason: fmt.Sprintf("unknown worker kind %q", worker)}
	}

	now := time.Now().UTC()
	job := &interfaces.Job{
		ID:          uuid.New().String(),
		Worker:      worker,
		RequestURL:  requestURL,
		Status:      interfaces.StatusPending,
		Attempts:    0,
		MaxAttempts: e.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	metrics.JobsSubmittedTotal.WithLabelValues(worker).Inc()
	log := logger.WithJobID(job.ID)
	log.Info().Str("worker", job.Worker).Str("request_url", job.RequestURL).Msg("Job submitted")
	return job, nil
}

// GetJob retrieves a job by ID.
func (e *Engine) GetJob(ctx context.Context, id string) (*interfaces.Job, error) {
	return e.store.GetJob(ctx, id)
}

// ListJobs returns all jobs.
func (e *Engine) ListJobs(ctx context.Context) ([]*interfaces.Job, error) {
	return e.store.ListJobs(ctx)
}

// GetResult returns the most recent result for a job.
func (e *Engine) GetResult(ctx context.Context, jobID string) (*interfaces.Result, error) {
	return e.store.GetResultByJobID(ctx, jobID)
}

// Claim recovers stale claims and then atomically claims the oldest pending
// job for the worker kind. Returns nil, nil when nothing is eligible.
func (e *Engine) Claim(ctx context.Context, worker string) (*interfaces.Job, error) {
	recovered, err := e.store.RequeueStale(ctx, e.staleThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	if recovered > 0 {
		metrics.StaleJobsRecovered.Add(float64(recovered))
		logger.Logger.Warn().Int64("count", recovered).Msg("Requeued stale processing jobs")
	}

	return e.store.ClaimNext(ctx, worker)
}

// Heartbeat keeps the claim lease on a processing job alive.
func (e *Engine) Heartbeat(ctx context.Context, jobID string) error {
	return e.store.TouchJob(ctx, jobID)
}

// Complete records a result for a processing job and finalizes it as
// completed. The result must carry the resolved final URL.
func (e *Engine) Complete(ctx context.Context, job *interfaces.Job, result *interfaces.Result) error {
	if result.FinalURL == "" {
		return fmt.Errorf("result for job %s has no final URL", job.ID)
	}

	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	result.JobID = job.ID
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	if err := e.store.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	if err := e.store.Finalize(ctx, job.ID, interfaces.StatusCompleted, "", job.Attempts+1); err != nil {
		return fmt.Errorf("failed to finalize job as completed: %w", err)
	}

	metrics.JobsCompletedTotal.WithLabelValues(job.Worker).Inc()
	log := logger.WithJobID(job.ID)
	log.Info().Str("final_url", result.FinalURL).Msg("Job completed")
	return nil
}

// Fail applies the retry policy to a failed execution. A recoverable failure
// requeues the job while attempts remain; a terminal failure, or running out
// of attempts, finalizes it as failed with the last error recorded.
func (e *Engine) Fail(ctx context.Context, job *interfaces.Job, recoverable bool, detail string) error {
	log := logger.WithJobID(job.ID)

	if recoverable && job.CanRetry() {
		if err := e.store.Requeue(ctx, job.ID, detail); err != nil {
			return fmt.Errorf("failed to requeue job: %w", err)
		}

		metrics.JobsRequeuedTotal.WithLabelValues(job.Worker).Inc()
		log.Info().
			Int("attempts", job.Attempts+1).
			Int("max_attempts", job.MaxAttempts).
			Str("error", detail).
			Msg("Job failed, requeued for retry")
		return nil
	}

	if err := e.store.Finalize(ctx, job.ID, interfaces.StatusFailed, detail, job.Attempts+1); err != nil {
		return fmt.Errorf("failed to finalize job as failed: %w", err)
	}

	metrics.JobsFailedTotal.WithLabelValues(job.Worker).Inc()
	log.Info().
		Int("attempts", job.Attempts+1).
		Bool("recoverable", recoverable).
		Str("error", detail).
		Msg("Job permanently failed")
	return nil
}
