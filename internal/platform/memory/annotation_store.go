package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// CandidateStore implements store.CandidateStore.
type CandidateStore struct {
	mu         sync.RWMutex
	candidates map[uuid.UUID]domain.AnnotationCandidate
	byItem     map[uuid.UUID][]uuid.UUID
}

var _ store.CandidateStore = (*CandidateStore)(nil)

// NewCandidateStore creates an empty CandidateStore.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{
		candidates: make(map[uuid.UUID]domain.AnnotationCandidate),
		byItem:     make(map[uuid.UUID][]uuid.UUID),
	}
}

// SaveCandidates implements store.CandidateStore.
func (s *CandidateStore) SaveCandidates(ctx context.Context, candidates []*domain.AnnotationCandidate) error {
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return store.NewStoreError("annotation_candidate", "create", "invalid candidate", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candidates {
		if _, exists := s.candidates[c.ID]; exists {
			return store.ErrDuplicate
		}
	}
	for _, c := range candidates {
		s.candidates[c.ID] = *c
		s.byItem[c.ItemID] = append(s.byItem[c.ItemID], c.ID)
	}
	return nil
}

// GetCandidate implements store.CandidateStore.
func (s *CandidateStore) GetCandidate(ctx context.Context, id uuid.UUID) (*domain.AnnotationCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, store.ErrCandidateNotFound
	}
	return &c, nil
}

// ListCandidates implements store.CandidateStore.
func (s *CandidateStore) ListCandidates(ctx context.Context, itemID uuid.UUID) ([]*domain.AnnotationCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byItem[itemID]
	result := make([]*domain.AnnotationCandidate, 0, len(ids))
	for _, id := range ids {
		c := s.candidates[id]
		result = append(result, &c)
	}
	return result, nil
}

// ImageCatalog implements store.ImageCatalog.
type ImageCatalog struct {
	mu     sync.RWMutex
	images map[string]domain.Image
}

var _ store.ImageCatalog = (*ImageCatalog)(nil)

// NewImageCatalog creates a catalog seeded with images.
func NewImageCatalog(images ...*domain.Image) *ImageCatalog {
	c := &ImageCatalog{images: make(map[string]domain.Image, len(images))}
	for _, img := range images {
		c.images[img.ID] = *img
	}
	return c
}

// SaveImage implements store.ImageCatalog.
func (c *ImageCatalog) SaveImage(ctx context.Context, img *domain.Image) error {
	if err := img.Validate(); err != nil {
		return store.NewStoreError("image", "save", "invalid image", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[img.ID] = *img
	return nil
}

// GetImage implements store.ImageCatalog.
func (c *ImageCatalog) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	img, ok := c.images[strings.TrimSpace(id)]
	if !ok {
		return nil, store.ErrImageNotFound
	}
	return &img, nil
}
