package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// FeedbackStore implements store.FeedbackStore as an in-memory append-only log.
type FeedbackStore struct {
	mu     sync.RWMutex
	log    []*domain.FeedbackEvent
	seen   map[uuid.UUID]struct{}
	byItem map[uuid.UUID][]int
	byKey  map[domain.PatternKey][]int
}

var _ store.FeedbackStore = (*FeedbackStore)(nil)

// NewFeedbackStore creates an empty FeedbackStore.
func NewFeedbackStore() *FeedbackStore {
	return &FeedbackStore{
		seen:   make(map[uuid.UUID]struct{}),
		byItem: make(map[uuid.UUID][]int),
		byKey:  make(map[domain.PatternKey][]int),
	}
}

// Append implements store.FeedbackStore.
func (s *FeedbackStore) Append(ctx context.Context, event *domain.FeedbackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[event.ID]; dup {
		return store.ErrDuplicate
	}

	idx := len(s.log)
	s.log = append(s.log, event.Clone())
	s.seen[event.ID] = struct{}{}
	s.byItem[event.ItemID] = append(s.byItem[event.ItemID], idx)
	key := event.Key()
	s.byKey[key] = append(s.byKey[key], idx)
	return nil
}

// ListByItem implements store.FeedbackStore.
func (s *FeedbackStore) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.FeedbackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byItem[itemID]), nil
}

// ListByKey implements store.FeedbackStore.
func (s *FeedbackStore) ListByKey(ctx context.Context, key domain.PatternKey) ([]*domain.FeedbackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byKey[key]), nil
}

// Len returns the number of recorded events.
func (s *FeedbackStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

func (s *FeedbackStore) collect(indexes []int) []*domain.FeedbackEvent {
	result := make([]*domain.FeedbackEvent, 0, len(indexes))
	for _, i := range indexes {
		result = append(result, s.log[i].Clone())
	}
	return result
}
