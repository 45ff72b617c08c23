package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
)

// CandidateStore persists raw annotation candidates produced by the worker.
type CandidateStore interface {
	// SaveCandidates stores the candidates of one item. Boxes are stored
	// exactly as proposed; predictions are applied when they are read.
	SaveCandidates(ctx context.Context, candidates []*domain.AnnotationCandidate) error

	// GetCandidate retrieves a candidate by ID.
	// Returns ErrCandidateNotFound if the candidate does not exist.
	GetCandidate(ctx context.Context, id uuid.UUID) (*domain.AnnotationCandidate, error)

	// ListCandidates returns the candidates of an item, oldest first.
	ListCandidates(ctx context.Context, itemID uuid.UUID) ([]*domain.AnnotationCandidate, error)
}

// ImageCatalog resolves image IDs submitted in a batch to their location and
// the species they depict.
type ImageCatalog interface {
	// SaveImage creates or replaces a catalog entry.
	SaveImage(ctx context.Context, img *domain.Image) error

	// GetImage retrieves a catalog entry.
	// Returns ErrImageNotFound if the ID is unknown.
	GetImage(ctx context.Context, id string) (*domain.Image, error)
}
