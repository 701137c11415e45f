package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/grabba-media/internal/domain"
)

// InMemoryJobRepository implements JobRepository using in-memory storage.
type InMemoryJobRepository struct {
	mu        sync.RWMutex
	running   map[domain.JobID]*domain.Job
	completed int
	failed    int
}

// NewInMemoryJobRepository creates a new in-memory job repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		running: make(map[domain.JobID]*domain.Job),
	}
}

// Claim registers a running job.
func (r *InMemoryJobRepository) Claim(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.running[job.ID]; ok {
		return domain.ErrJobInFlight
	}
	r.running[job.ID] = job

	return nil
}

// Release marks the job finished and removes it from the running set.
func (r *InMemoryJobRepository) Release(ctx context.Context, id domain.JobID, status domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.running[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	delete(r.running, id)

	switch status {
	case domain.JobStatusCompleted:
		job.MarkCompleted()
		r.completed++
	default:
		job.MarkFailed()
		r.failed++
	}

	return nil
}

// Get retrieves a running job by ID.
func (r *InMemoryJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.running[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	return job, nil
}

// Stats returns job statistics.
func (r *InMemoryJobRepository) Stats(ctx context.Context) (*JobStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &JobStats{
		Running:   len(r.running),
		Completed: r.completed,
		Failed:    r.failed,
	}, nil
}

// Clear removes all jobs (useful for testing).
func (r *InMemoryJobRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = make(map[domain.JobID]*domain.Job)
	r.completed = 0
	r.failed = 0
}
