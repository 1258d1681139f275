package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mtr002/Crawl-Queue/internal/cache"
	"github.com/mtr002/Crawl-Queue/internal/fetch"
	"github.com/mtr002/Crawl-Queue/internal/interfaces"
	"github.com/mtr002/Crawl-Queue/internal/jobs"
	"github.com/mtr002/Crawl-Queue/internal/logger"
	"github.com/mtr002/Crawl-Queue/internal/metrics"
)

// Notifier receives job state changes for live status consumers. Delivery is
// best effort; the durable store remains the source of truth.
type Notifier interface {
	NotifyJobUpdate(job *interfaces.Job)
}

// Options configures a worker pool.
type Options struct {
	WorkerCount       int
	PollInterval      time.Duration
	FetchTimeout      time.Duration
	HeartbeatInterval time.Duration
	Notifier          Notifier
}

// Pool polls the queue engine for claimable jobs and drives each one through
// cache check, fetcher dispatch and outcome recording. Multiple pools may run
// in separate processes; the store's atomic claim keeps them from colliding.
type Pool struct {
	engine   *jobs.Engine
	registry *fetch.Registry
	cache    *cache.Cache
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(engine *jobs.Engine, registry *fetch.Registry, resultCache *cache.Cache, opts Options) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		engine:   engine,
		registry: registry,
		cache:    resultCache,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing jobs with the configured number of workers.
func (p *Pool) Start() {
	logger.Logger.Info().
		Int("worker_count", p.opts.WorkerCount).
		Strs("kinds", p.registry.Kinds()).
		Msg("Starting worker pool")
	metrics.ActiveWorkers.Set(float64(p.opts.WorkerCount))

	for i := 0; i < p.opts.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop gracefully shuts down the worker pool, waiting for in-flight jobs.
func (p *Pool) Stop() {
	logger.Logger.Info().Msg("Stopping worker pool")
	p.cancel()
	p.wg.Wait()
	metrics.ActiveWorkers.Set(0)
	logger.Logger.Info().Msg("Worker pool stopped")
}

// worker polls for claimable jobs, suspending for the poll interval whenever
// the queue is drained.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger.Logger.Info().Int("worker_id", id).Msg("Worker started")

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			logger.Logger.Info().Int("worker_id", id).Msg("Worker shutting down")
			return
		case <-ticker.C:
			p.drain(id)
		}
	}
}

// drain claims and processes jobs until no kind has anything eligible.
func (p *Pool) drain(workerID int) {
	for {
		if p.ctx.Err() != nil {
			return
		}

		claimed := false
		for _, kind := range p.registry.Kinds() {
			job, err := p.engine.Claim(p.ctx, kind)
			if err != nil {
				logger.Logger.Error().Int("worker_id", workerID).Str("kind", kind).Err(err).Msg("Error claiming job")
				continue
			}
			if job == nil {
				continue
			}

			claimed = true
			p.processJob(workerID, job)
		}

		if !claimed {
			return
		}
	}
}

// processJob runs a single claimed job to a terminal or requeued state. Any
// fault from the fetcher is translated into a finalize-with-outcome call;
// nothing a job does can take the loop down.
func (p *Pool) processJob(workerID int, job *interfaces.Job) {
	log := logger.WithJobID(job.ID)
	log.Info().
		Int("worker_id", workerID).
		Str("worker", job.Worker).
		Int("attempt", job.Attempts+1).
		Int("max_attempts", job.MaxAttempts).
		Msg("Processing job")

	if p.completeFromCache(job) {
		p.notify(job.ID)
		return
	}

	fetcher := p.registry.Get(job.Worker)
	if fetcher == nil {
		// Submission validation should make this unreachable; a job for an
		// unserved kind would otherwise be reclaimed forever.
		log.Error().Str("worker", job.Worker).Msg("No fetcher registered for worker kind")
		p.recordFailure(job, false, fmt.Sprintf("no fetcher registered for worker kind %q", job.Worker))
		p.notify(job.ID)
		return
	}

	startTime := time.Now()
	fetched, err := p.runFetcher(fetcher, job)
	metrics.FetchDuration.WithLabelValues(job.Worker).Observe(time.Since(startTime).Seconds())

	if err != nil {
		log.Error().Int("worker_id", workerID).Err(err).Msg("Job processing failed")
		p.recordFailure(job, fetch.IsRecoverable(err), err.Error())
		p.notify(job.ID)
		return
	}

	result := &interfaces.Result{
		OriginalURL: job.RequestURL,
		FinalURL:    fetched.FinalURL,
		Payload:     fetched.Payload,
		Success:     fetched.Success,
	}

	if err := p.engine.Complete(p.ctx, job, result); err != nil {
		log.Error().Int("worker_id", workerID).Err(err).Msg("Failed to record job completion")
		return
	}

	log.Info().Int("worker_id", workerID).Str("final_url", result.FinalURL).Msg("Job completed")
	p.notify(job.ID)
}

// runFetcher invokes the fetcher under the per-job timeout, with a heartbeat
// keeping the claim lease alive and a recover guard at the loop boundary. A
// timeout classifies as recoverable.
func (p *Pool) runFetcher(fetcher fetch.Fetcher, job *interfaces.Job) (fetched *fetch.Fetched, err error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.FetchTimeout)
	defer cancel()

	stopHeartbeat := p.startHeartbeat(ctx, job.ID)
	defer stopHeartbeat()

	defer func() {
		if r := recover(); r != nil {
			logger.WithJobID(job.ID).Error().Interface("panic", r).Msg("Fetcher panicked")
			fetched = nil
			err = fetch.Recoverablef("fetcher panic: %v", r)
		}
	}()

	fetched, err = fetcher.Fetch(ctx, job.RequestURL)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fetch.Recoverablef("fetch timed out after %s", p.opts.FetchTimeout)
		}
		return nil, err
	}
	return fetched, nil
}

// startHeartbeat advances the job lease while the fetcher runs so a healthy
// long fetch is not mistaken for an abandoned claim.
func (p *Pool) startHeartbeat(ctx context.Context, jobID string) func() {
	if p.opts.HeartbeatInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(p.opts.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.engine.Heartbeat(p.ctx, jobID); err != nil {
					logger.WithJobID(jobID).Warn().Err(err).Msg("Heartbeat failed")
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// completeFromCache finalizes the job from a fresh prior result when one
// exists, skipping the fetcher entirely. Returns true when the job was
// completed this way.
func (p *Pool) completeFromCache(job *interfaces.Job) bool {
	cached, err := p.cache.Lookup(p.ctx, job.Worker, job.RequestURL)
	if err != nil {
		logger.WithJobID(job.ID).Warn().Err(err).Msg("Cache lookup failed, executing fetcher")
		return false
	}
	if cached == nil {
		return false
	}

	result := &interfaces.Result{
		OriginalURL: job.RequestURL,
		FinalURL:    cached.FinalURL,
		Payload:     cached.Payload,
		Success:     true,
	}

	if err := p.engine.Complete(p.ctx, job, result); err != nil {
		logger.WithJobID(job.ID).Error().Err(err).Msg("Failed to complete job from cache")
		return false
	}

	metrics.CacheHitsTotal.WithLabelValues(job.Worker).Inc()
	logger.WithJobID(job.ID).Info().
		Str("cached_result_id", cached.ID).
		Str("final_url", cached.FinalURL).
		Msg("Job completed from cached result")
	return true
}

func (p *Pool) recordFailure(job *interfaces.Job, recoverable bool, detail string) {
	if err := p.engine.Fail(p.ctx, job, recoverable, detail); err != nil {
		logger.WithJobID(job.ID).Error().Err(err).Msg("Failed to record job failure")
	}
}

func (p *Pool) notify(jobID string) {
	if p.opts.Notifier == nil {
		return
	}

	job, err := p.engine.GetJob(p.ctx, jobID)
	if err != nil {
		return
	}
	p.opts.Notifier.NotifyJobUpdate(job)
}
