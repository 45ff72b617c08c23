package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// BatchStore implements store.JobStore and store.ItemStore.
type BatchStore struct {
	mu       sync.RWMutex
	jobs     map[uuid.UUID]*domain.BatchJob
	items    map[uuid.UUID]*domain.BatchItem
	jobItems map[uuid.UUID][]uuid.UUID
}

// Compile-time checks
var (
	_ store.JobStore  = (*BatchStore)(nil)
	_ store.ItemStore = (*BatchStore)(nil)
)

// NewBatchStore creates an empty BatchStore.
func NewBatchStore() *BatchStore {
	return &BatchStore{
		jobs:     make(map[uuid.UUID]*domain.BatchJob),
		items:    make(map[uuid.UUID]*domain.BatchItem),
		jobItems: make(map[uuid.UUID][]uuid.UUID),
	}
}

// CreateJob implements store.JobStore.
func (s *BatchStore) CreateJob(ctx context.Context, job *domain.BatchJob) error {
	if err := job.Validate(); err != nil {
		return store.NewStoreError("batch_job", "create", "invalid job", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrDuplicate
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob implements store.JobStore.
func (s *BatchStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job.Clone(), nil
}

// UpdateJob implements store.JobStore.
func (s *BatchStore) UpdateJob(ctx context.Context, job *domain.BatchJob) error {
	if err := job.Validate(); err != nil {
		return store.NewStoreError("batch_job", "update", "invalid job", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return store.ErrJobNotFound
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// ListJobsByStatus implements store.JobStore.
func (s *BatchStore) ListJobsByStatus(
	ctx context.Context,
	statuses ...domain.JobStatus,
) ([]*domain.BatchJob, error) {
	want := make(map[domain.JobStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.BatchJob, 0)
	for _, job := range s.jobs {
		if want[job.Status] {
			result = append(result, job.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CreateItems implements store.ItemStore. Either every item is stored or none.
func (s *BatchStore) CreateItems(ctx context.Context, items []*domain.BatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, exists := s.items[item.ID]; exists {
			return store.ErrDuplicate
		}
		if _, ok := s.jobs[item.JobID]; !ok {
			return store.ErrJobNotFound
		}
	}
	for _, item := range items {
		s.items[item.ID] = item.Clone()
		s.jobItems[item.JobID] = append(s.jobItems[item.JobID], item.ID)
	}
	return nil
}

// GetItem implements store.ItemStore.
func (s *BatchStore) GetItem(ctx context.Context, id uuid.UUID) (*domain.BatchItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	return item.Clone(), nil
}

// UpdateItem implements store.ItemStore.
func (s *BatchStore) UpdateItem(ctx context.Context, item *domain.BatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; !ok {
		return store.ErrItemNotFound
	}
	s.items[item.ID] = item.Clone()
	return nil
}

// ListItems implements store.ItemStore.
func (s *BatchStore) ListItems(ctx context.Context, jobID uuid.UUID) ([]*domain.BatchItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.jobItems[jobID]
	result := make([]*domain.BatchItem, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.items[id].Clone())
	}
	return result, nil
}
