package repository

import (
	"context"

	"github.com/iconidentify/grabba-media/internal/domain"
)

// JobRepository tracks jobs that are currently being downloaded.
type JobRepository interface {
	// Claim registers a running job. It fails with domain.ErrJobInFlight
	// if a job with the same id is already running.
	Claim(ctx context.Context, job *domain.Job) error

	// Release records the final status and frees the id for reuse.
	Release(ctx context.Context, id domain.JobID, status domain.JobStatus) error

	// Get retrieves a running job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// Stats returns job statistics.
	Stats(ctx context.Context) (*JobStats, error)
}

// JobStats contains job statistics since startup.
type JobStats struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// MediaRepository is the catalog of completed downloads.
type MediaRepository interface {
	// Create stores a record, assigning an ID and timestamp when unset.
	Create(ctx context.Context, media *domain.CompletedMedia) error

	// List returns records newest first. An empty kind lists all kinds.
	List(ctx context.Context, kind domain.MediaKind, limit, offset int) ([]*domain.CompletedMedia, error)

	// Count returns the number of records of kind, or all when kind is empty.
	Count(ctx context.Context, kind domain.MediaKind) (int, error)
}
