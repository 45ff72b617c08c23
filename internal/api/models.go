package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
)

// StartBatchRequest is the payload of POST /api/batches.
type StartBatchRequest struct {
	ImageRefs   []string `json:"image_refs"  validate:"required,min=1,dive,required"`
	Concurrency int      `json:"concurrency" validate:"gte=0"`
}

// StartBatchResponse is returned when a batch is accepted.
type StartBatchResponse struct {
	JobID uuid.UUID `json:"job_id"`
}

// CancelBatchResponse reports whether a cancellation was accepted. It is
// false for jobs that had already finished.
type CancelBatchResponse struct {
	JobID    uuid.UUID `json:"job_id"`
	Accepted bool      `json:"accepted"`
}

// FeedbackRequest is the payload of POST /api/feedback. Either ItemID or
// CandidateID must be set; species, term and original box default to the
// candidate's when a candidate is referenced.
type FeedbackRequest struct {
	ItemID          uuid.UUID           `json:"item_id"`
	CandidateID     uuid.UUID           `json:"candidate_id"`
	ReviewerID      string              `json:"reviewer_id"      validate:"max=128"`
	Species         string              `json:"species"          validate:"max=128"`
	Term            string              `json:"term"             validate:"max=128"`
	Action          string              `json:"action"           validate:"required,oneof=approve reject correct"`
	OriginalBox     *domain.BoundingBox `json:"original_box"`
	CorrectedBox    *domain.BoundingBox `json:"corrected_box"`
	RejectionReason string              `json:"rejection_reason" validate:"max=500"`
}

// toEvent converts the request into an unrecorded feedback event.
func (req *FeedbackRequest) toEvent() *domain.FeedbackEvent {
	e := &domain.FeedbackEvent{
		ItemID:          req.ItemID,
		CandidateID:     req.CandidateID,
		ReviewerID:      req.ReviewerID,
		Species:         req.Species,
		Term:            req.Term,
		Action:          domain.ReviewAction(req.Action),
		CorrectedBox:    req.CorrectedBox,
		RejectionReason: req.RejectionReason,
	}
	if req.OriginalBox != nil {
		e.OriginalBox = *req.OriginalBox
	}
	return e
}

// ResetPatternRequest is the payload of POST /api/patterns/reset. With
// Rebuild set the pattern is replayed from the feedback log after the reset.
type ResetPatternRequest struct {
	Species string `json:"species" validate:"required,max=128"`
	Term    string `json:"term"    validate:"required,max=128"`
	Rebuild bool   `json:"rebuild"`
}

// ResetPatternResponse returns the pattern after a reset or rebuild.
type ResetPatternResponse struct {
	Pattern *domain.Pattern `json:"pattern"`
	Applied int             `json:"applied"`
	Skipped int             `json:"skipped"`
}

// CreateImageRequest is the payload of POST /api/images.
type CreateImageRequest struct {
	ID      string `json:"id"      validate:"required,max=256"`
	URI     string `json:"uri"     validate:"required,max=2048"`
	Species string `json:"species" validate:"required,max=128"`
}
