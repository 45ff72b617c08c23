package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/api/shared"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/review"
)

// ReviewService serves candidates and records feedback. *review.Service
// satisfies it.
type ReviewService interface {
	ListCandidates(ctx context.Context, jobID uuid.UUID) ([]review.ItemCandidates, error)
	ItemCandidates(ctx context.Context, itemID uuid.UUID) (review.ItemCandidates, error)
	SubmitFeedback(ctx context.Context, event *domain.FeedbackEvent) (*domain.FeedbackEvent, error)
	ItemFeedback(ctx context.Context, itemID uuid.UUID) ([]*domain.FeedbackEvent, error)
}

// ReviewHandler handles candidate review and feedback requests.
type ReviewHandler struct {
	review ReviewService
	logger *slog.Logger
}

// NewReviewHandler creates a ReviewHandler.
func NewReviewHandler(svc ReviewService, log *slog.Logger) *ReviewHandler {
	if svc == nil {
		panic("review service cannot be nil for ReviewHandler")
	}
	if log == nil {
		panic("logger cannot be nil for ReviewHandler")
	}
	return &ReviewHandler{
		review: svc,
		logger: log.With(slog.String("component", "review_handler")),
	}
}

// ListBatchCandidates handles GET /api/batches/{id}/candidates.
func (h *ReviewHandler) ListBatchCandidates(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid batch ID")
		return
	}

	out, err := h.review.ListCandidates(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// ItemCandidates handles GET /api/items/{id}/candidates.
func (h *ReviewHandler) ItemCandidates(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid item ID")
		return
	}

	out, err := h.review.ItemCandidates(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// SubmitFeedback handles POST /api/feedback. An authenticated reviewer
// overrides any reviewer_id in the body.
func (h *ReviewHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req FeedbackRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.ItemID == uuid.Nil && req.CandidateID == uuid.Nil {
		HandleAPIError(w, r,
			fmt.Errorf("%w: item_id or candidate_id is required", domain.ErrInvalidFeedback),
			"Either item_id or candidate_id is required")
		return
	}

	event := req.toEvent()
	if reviewer, ok := shared.GetReviewerID(r.Context()); ok {
		event.ReviewerID = reviewer
	}

	stored, err := h.review.SubmitFeedback(r.Context(), event)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("feedback accepted", "feedback_id", stored.ID, "action", stored.Action)
	shared.RespondWithJSON(w, r, http.StatusCreated, stored)
}

// ItemFeedback handles GET /api/items/{id}/feedback.
func (h *ReviewHandler) ItemFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid item ID")
		return
	}

	trail, err := h.review.ItemFeedback(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, trail)
}
