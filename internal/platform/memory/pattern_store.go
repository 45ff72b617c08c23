package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// PatternStore implements store.PatternStore. Updates for the same key are
// serialized by a per-key mutex; the map itself is guarded separately so a
// slow update on one key never blocks reads or writes of other keys.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[domain.PatternKey]*domain.Pattern

	locksMu sync.Mutex
	locks   map[domain.PatternKey]*sync.Mutex
}

var _ store.PatternStore = (*PatternStore)(nil)

// NewPatternStore creates an empty PatternStore.
func NewPatternStore() *PatternStore {
	return &PatternStore{
		patterns: make(map[domain.PatternKey]*domain.Pattern),
		locks:    make(map[domain.PatternKey]*sync.Mutex),
	}
}

func (s *PatternStore) keyLock(key domain.PatternKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// GetPattern implements store.PatternStore.
func (s *PatternStore) GetPattern(ctx context.Context, key domain.PatternKey) (*domain.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[key]
	if !ok {
		return nil, store.ErrPatternNotFound
	}
	return p.Clone(), nil
}

// UpdatePattern implements store.PatternStore.
func (s *PatternStore) UpdatePattern(
	ctx context.Context,
	key domain.PatternKey,
	fn store.PatternUpdateFn,
) (*domain.Pattern, error) {
	if key.IsZero() {
		return nil, store.NewStoreError("pattern", "update", "empty key", store.ErrInvalidEntity)
	}

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current := s.patterns[key].Clone()
	s.mu.RUnlock()

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, store.NewStoreError("pattern", "update", "update returned no pattern", store.ErrUpdateFailed)
	}
	next.Key = key

	stored := next.Clone()
	s.mu.Lock()
	s.patterns[key] = stored
	s.mu.Unlock()

	return stored.Clone(), nil
}

// ListPatterns implements store.PatternStore.
func (s *PatternStore) ListPatterns(ctx context.Context, species string) ([]*domain.Pattern, error) {
	filter := domain.NormalizeName(species)

	s.mu.RLock()
	result := make([]*domain.Pattern, 0, len(s.patterns))
	for key, p := range s.patterns {
		if filter == "" || key.Species == filter {
			result = append(result, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Key.Species != result[j].Key.Species {
			return result[i].Key.Species < result[j].Key.Species
		}
		return result[i].Key.Term < result[j].Key.Term
	})
	return result, nil
}
