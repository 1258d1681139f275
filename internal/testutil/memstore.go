// Package testutil provides an in-memory JobStore used by unit tests. It
// mirrors the Postgres store's transition guards and FIFO claim order so the
// engine and worker loop can be exercised without a database.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/mtr002/Crawl-Queue/internal/interfaces"
)

// MemStore is a mutex-guarded in-memory implementation of
// interfaces.JobStore.
type MemStore struct {
	mu      sync.Mutex
	jobs    map[string]*interfaces.Job
	results []*interfaces.Result
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]*interfaces.Job)}
}

func copyJob(job *interfaces.Job) *interfaces.Job {
	j := *job
	return &j
}

func copyResult(result *interfaces.Result) *interfaces.Result {
	r := *result
	return &r
}

func (s *MemStore) CreateJob(_ context.Context, job *interfaces.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return interfaces.ErrDuplicateID
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemStore) GetJob(_ context.Context, id string) (*interfaces.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyJob(job), nil
}

func (s *MemStore) ListJobs(_ context.Context) ([]*interfaces.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*interfaces.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, copyJob(job))
	}
	return jobs, nil
}

// ClaimNext picks the oldest pending job for the worker kind, exactly like
// the SQL claim: the whole read-modify-write happens under one lock.
func (s *MemStore) ClaimNext(_ context.Context, worker string) (*interfaces.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *interfaces.Job
	for _, job := range s.jobs {
		if job.Status != interfaces.StatusPending || job.Worker != worker {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Status = interfaces.StatusProcessing
	oldest.UpdatedAt = time.Now().UTC()
	return copyJob(oldest), nil
}

func (s *MemStore) Finalize(_ context.Context, id string, status interfaces.JobStatus, lastError string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	if job.Status != interfaces.StatusProcessing {
		return interfaces.ErrInvalidTransition
	}
	if status != interfaces.StatusCompleted && status != interfaces.StatusFailed {
		return interfaces.ErrInvalidTransition
	}

	job.Status = status
	job.LastError = lastError
	job.Attempts = attempts
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) Requeue(_ context.Context, id string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	if job.Status != interfaces.StatusProcessing {
		return interfaces.ErrInvalidTransition
	}

	job.Status = interfaces.StatusPending
	job.LastError = lastError
	job.Attempts++
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) RequeueStale(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var count int64
	for _, job := range s.jobs {
		if job.Status == interfaces.StatusProcessing && job.UpdatedAt.Before(cutoff) {
			job.Status = interfaces.StatusPending
			if job.LastError == "" {
				job.LastError = "requeued after stale claim"
			} else {
				job.LastError += "; requeued after stale claim"
			}
			job.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (s *MemStore) TouchJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	if job.Status != interfaces.StatusProcessing {
		return interfaces.ErrInvalidTransition
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) SaveResult(_ context.Context, result *interfaces.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[result.JobID]; !ok {
		return interfaces.ErrDanglingReference
	}
	s.results = append(s.results, copyResult(result))
	return nil
}

func (s *MemStore) GetResultByJobID(_ context.Context, jobID string) (*interfaces.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *interfaces.Result
	for _, result := range s.results {
		if result.JobID != jobID {
			continue
		}
		if latest == nil || result.CreatedAt.After(latest.CreatedAt) {
			latest = result
		}
	}
	if latest == nil {
		return nil, interfaces.ErrNotFound
	}
	return copyResult(latest), nil
}

func (s *MemStore) FindCachedResult(_ context.Context, worker, url string, window time.Duration) (*interfaces.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if window <= 0 {
		return nil, nil
	}
	cutoff := time.Now().UTC().Add(-window)

	var latest *interfaces.Result
	for _, result := range s.results {
		if !result.Success || result.CreatedAt.Before(cutoff) {
			continue
		}
		if result.OriginalURL != url && result.FinalURL != url {
			continue
		}
		job, ok := s.jobs[result.JobID]
		if !ok || job.Worker != worker {
			continue
		}
		if latest == nil || result.CreatedAt.After(latest.CreatedAt) {
			latest = result
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyResult(latest), nil
}
