package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/batch"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/learning"
	"github.com/phrazzld/aves-annotator/internal/review"
)

type stubBatches struct{}

func (stubBatches) StartBatch(context.Context, []string, int) (uuid.UUID, error) {
	return uuid.Nil, batch.ErrShuttingDown
}

func (stubBatches) GetJobProgress(context.Context, uuid.UUID) (batch.Progress, error) {
	return batch.Progress{}, domain.ErrNotFound
}

func (stubBatches) CancelJob(context.Context, uuid.UUID) (bool, error) { return false, nil }

func (stubBatches) ListActiveJobs(context.Context) ([]*domain.BatchJob, error) { return nil, nil }

func (stubBatches) ListItems(context.Context, uuid.UUID) ([]*domain.BatchItem, error) {
	return nil, nil
}

type stubReview struct{}

func (stubReview) ListCandidates(context.Context, uuid.UUID) ([]review.ItemCandidates, error) {
	return nil, nil
}

func (stubReview) ItemCandidates(context.Context, uuid.UUID) (review.ItemCandidates, error) {
	return review.ItemCandidates{}, nil
}

func (stubReview) SubmitFeedback(context.Context, *domain.FeedbackEvent) (*domain.FeedbackEvent, error) {
	return nil, domain.ErrInvalidFeedback
}

func (stubReview) ItemFeedback(context.Context, uuid.UUID) ([]*domain.FeedbackEvent, error) {
	return nil, nil
}

type stubPatterns struct{}

func (stubPatterns) GetPattern(context.Context, domain.PatternKey) (*domain.Pattern, error) {
	return nil, domain.ErrNotFound
}

func (stubPatterns) ListPatterns(context.Context, string) ([]*domain.Pattern, error) {
	return nil, nil
}

func (stubPatterns) Reset(context.Context, domain.PatternKey) (*domain.Pattern, error) {
	return nil, domain.ErrNotFound
}

func (stubPatterns) Rebuild(context.Context, domain.PatternKey) (*domain.Pattern, learning.BatchResult, error) {
	return nil, learning.BatchResult{}, domain.ErrNotFound
}
