package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
)

// FeedbackStore is the append-only log of reviewer decisions.
type FeedbackStore interface {
	// Append records an event. Events are never updated or deleted.
	// Returns ErrDuplicate if an event with the same ID was already appended.
	Append(ctx context.Context, event *domain.FeedbackEvent) error

	// ListByItem returns the events recorded for an item in the order they
	// were appended.
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.FeedbackEvent, error)

	// ListByKey returns every event for a normalized pattern key, oldest first.
	ListByKey(ctx context.Context, key domain.PatternKey) ([]*domain.FeedbackEvent, error)
}
