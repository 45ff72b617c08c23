package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReviewAction is the decision a reviewer made about a candidate.
type ReviewAction string

// Possible review actions
const (
	ActionApprove ReviewAction = "approve"
	ActionReject  ReviewAction = "reject"
	ActionCorrect ReviewAction = "correct"
)

// IsValid reports whether a is a known review action.
func (a ReviewAction) IsValid() bool {
	return a == ActionApprove || a == ActionReject || a == ActionCorrect
}

// FeedbackEvent records one reviewer decision. Events are append-only and
// never mutated after they are recorded.
type FeedbackEvent struct {
	ID              uuid.UUID    `json:"id"`
	ItemID          uuid.UUID    `json:"item_id"`
	CandidateID     uuid.UUID    `json:"candidate_id,omitempty"`
	ReviewerID      string       `json:"reviewer_id,omitempty"`
	Species         string       `json:"species"`
	Term            string       `json:"term"`
	Action          ReviewAction `json:"action"`
	OriginalBox     BoundingBox  `json:"original_box"`
	CorrectedBox    *BoundingBox `json:"corrected_box,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Key returns the pattern key this event updates.
func (e *FeedbackEvent) Key() PatternKey {
	return NewPatternKey(e.Species, e.Term)
}

// Validate enforces the per-action shape of an event: corrections carry a
// corrected box, rejections carry a reason.
func (e *FeedbackEvent) Validate() error {
	if e.ItemID == uuid.Nil {
		return fmt.Errorf("%w: item ID cannot be empty", ErrInvalidFeedback)
	}
	if strings.TrimSpace(e.Species) == "" {
		return fmt.Errorf("%w: species cannot be empty", ErrInvalidFeedback)
	}
	if strings.TrimSpace(e.Term) == "" {
		return fmt.Errorf("%w: term cannot be empty", ErrInvalidFeedback)
	}
	if !e.Action.IsValid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidFeedback, e.Action)
	}
	if err := e.OriginalBox.Validate(); err != nil {
		return fmt.Errorf("%w: original box: %v", ErrInvalidFeedback, err)
	}

	switch e.Action {
	case ActionCorrect:
		if e.CorrectedBox == nil {
			return fmt.Errorf("%w: correct action requires a corrected box", ErrInvalidFeedback)
		}
		if err := e.CorrectedBox.Validate(); err != nil {
			return fmt.Errorf("%w: corrected box: %v", ErrInvalidFeedback, err)
		}
	case ActionReject:
		if strings.TrimSpace(e.RejectionReason) == "" {
			return fmt.Errorf("%w: reject action requires a reason", ErrInvalidFeedback)
		}
	}
	return nil
}

// Delta returns the positional correction carried by the event. Only
// corrections carry one; every other action yields a zero delta.
func (e *FeedbackEvent) Delta() BoxDelta {
	if e.Action != ActionCorrect || e.CorrectedBox == nil {
		return BoxDelta{}
	}
	return DeltaBetween(e.OriginalBox, *e.CorrectedBox)
}

// Clone returns a deep copy of the event.
func (e *FeedbackEvent) Clone() *FeedbackEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.CorrectedBox != nil {
		box := *e.CorrectedBox
		c.CorrectedBox = &box
	}
	return &c
}
