// Package review serves the reviewer-facing read side of the pipeline:
// stored candidates with their predicted positions, and feedback submission.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/prediction"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// Predictor adjusts raw boxes. *prediction.Predictor satisfies it.
type Predictor interface {
	Predict(ctx context.Context, species, term string, rawBox domain.BoundingBox) prediction.Prediction
}

// FeedbackRecorder stores reviewer decisions. *feedback.Capture satisfies it.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, in *domain.FeedbackEvent) (*domain.FeedbackEvent, error)
	ListFeedback(ctx context.Context, itemID uuid.UUID) ([]*domain.FeedbackEvent, error)
}

// Candidate is a stored candidate paired with its predicted position.
type Candidate struct {
	*domain.AnnotationCandidate
	Prediction prediction.Prediction `json:"prediction"`
}

// ItemCandidates groups the candidates of one batch item.
type ItemCandidates struct {
	ItemID     uuid.UUID         `json:"item_id"`
	ImageRef   string            `json:"image_ref"`
	Status     domain.ItemStatus `json:"status"`
	Candidates []Candidate       `json:"candidates"`
}

// Service implements the review operations.
type Service struct {
	jobs       store.JobStore
	items      store.ItemStore
	candidates store.CandidateStore
	predictor  Predictor
	feedback   FeedbackRecorder
	logger     *slog.Logger
}

// NewService creates a review Service.
func NewService(
	jobs store.JobStore,
	items store.ItemStore,
	candidates store.CandidateStore,
	predictor Predictor,
	feedback FeedbackRecorder,
	log *slog.Logger,
) *Service {
	if jobs == nil || items == nil || candidates == nil {
		panic("review stores cannot be nil")
	}
	if predictor == nil {
		panic("predictor cannot be nil")
	}
	if feedback == nil {
		panic("feedback recorder cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		jobs:       jobs,
		items:      items,
		candidates: candidates,
		predictor:  predictor,
		feedback:   feedback,
		logger:     log.With(slog.String("component", "review_service")),
	}
}

// ListCandidates returns every item of a job with its candidates. Boxes are
// adjusted here, at read time, so predictions always reflect the latest
// patterns while the stored proposals stay untouched.
func (s *Service) ListCandidates(ctx context.Context, jobID uuid.UUID) ([]ItemCandidates, error) {
	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	items, err := s.items.ListItems(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of job %s: %w", jobID, err)
	}

	out := make([]ItemCandidates, 0, len(items))
	for _, item := range items {
		cands, err := s.itemCandidates(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ItemCandidates{
			ItemID:     item.ID,
			ImageRef:   item.ImageRef,
			Status:     item.Status,
			Candidates: cands,
		})
	}
	return out, nil
}

// ItemCandidates returns the predicted candidates of a single item.
func (s *Service) ItemCandidates(ctx context.Context, itemID uuid.UUID) (ItemCandidates, error) {
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return ItemCandidates{}, err
	}
	cands, err := s.itemCandidates(ctx, item.ID)
	if err != nil {
		return ItemCandidates{}, err
	}
	return ItemCandidates{
		ItemID:     item.ID,
		ImageRef:   item.ImageRef,
		Status:     item.Status,
		Candidates: cands,
	}, nil
}

func (s *Service) itemCandidates(ctx context.Context, itemID uuid.UUID) ([]Candidate, error) {
	stored, err := s.candidates.ListCandidates(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates of item %s: %w", itemID, err)
	}
	out := make([]Candidate, 0, len(stored))
	for _, c := range stored {
		out = append(out, Candidate{
			AnnotationCandidate: c,
			Prediction:          s.predictor.Predict(ctx, c.Species, c.Term(), c.Box),
		})
	}
	return out, nil
}

// SubmitFeedback records a reviewer decision.
func (s *Service) SubmitFeedback(ctx context.Context, event *domain.FeedbackEvent) (*domain.FeedbackEvent, error) {
	return s.feedback.RecordFeedback(ctx, event)
}

// ItemFeedback returns the feedback trail of an item.
func (s *Service) ItemFeedback(ctx context.Context, itemID uuid.UUID) ([]*domain.FeedbackEvent, error) {
	if _, err := s.items.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.feedback.ListFeedback(ctx, itemID)
}
