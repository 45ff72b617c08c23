package store

import (
	"context"

	"github.com/phrazzld/aves-annotator/internal/domain"
)

// PatternUpdateFn computes the next state of a pattern. current is a private
// copy of the stored pattern, or nil when none exists yet. The returned
// pattern is persisted; returning an error aborts the update.
type PatternUpdateFn func(current *domain.Pattern) (*domain.Pattern, error)

// PatternStore persists learned patterns.
//
// Implementations serialize UpdatePattern calls for the same key so that
// concurrent read-modify-write cycles never lose an update. Calls for
// different keys must not block each other.
type PatternStore interface {
	// GetPattern retrieves a pattern.
	// Returns ErrPatternNotFound if no feedback was recorded for the key.
	GetPattern(ctx context.Context, key domain.PatternKey) (*domain.Pattern, error)

	// UpdatePattern atomically applies fn to the pattern stored under key and
	// returns the persisted result.
	UpdatePattern(ctx context.Context, key domain.PatternKey, fn PatternUpdateFn) (*domain.Pattern, error)

	// ListPatterns returns patterns ordered by key. An empty species lists
	// every pattern.
	ListPatterns(ctx context.Context, species string) ([]*domain.Pattern, error)
}
