package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
)

// JobStore defines the interface for batch job persistence.
type JobStore interface {
	// CreateJob saves a new job.
	// Returns ErrDuplicate if a job with the same ID exists.
	CreateJob(ctx context.Context, job *domain.BatchJob) error

	// GetJob retrieves a job by ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error)

	// UpdateJob replaces the stored status, counters and timestamps of a job.
	// Returns ErrJobNotFound if the job does not exist.
	UpdateJob(ctx context.Context, job *domain.BatchJob) error

	// ListJobsByStatus returns jobs in any of the given statuses, oldest first.
	// Returns an empty slice if none match.
	ListJobsByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]*domain.BatchJob, error)
}

// ItemStore defines the interface for batch item persistence.
type ItemStore interface {
	// CreateItems saves all items of a job atomically.
	CreateItems(ctx context.Context, items []*domain.BatchItem) error

	// GetItem retrieves an item by ID.
	// Returns ErrItemNotFound if the item does not exist.
	GetItem(ctx context.Context, id uuid.UUID) (*domain.BatchItem, error)

	// UpdateItem saves the status, attempts and error of an item.
	// Returns ErrItemNotFound if the item does not exist.
	UpdateItem(ctx context.Context, item *domain.BatchItem) error

	// ListItems returns the items of a job in submission order.
	ListItems(ctx context.Context, jobID uuid.UUID) ([]*domain.BatchItem, error)
}
