package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/events"
	"github.com/phrazzld/aves-annotator/internal/observability/metrics"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// CaptureError wraps unexpected failures of the capture service with the
// operation that failed.
type CaptureError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for CaptureError.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("feedback %s failed: %s: %v", e.Operation, e.Message, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// newCaptureError returns sentinel errors callers branch on unchanged and
// wraps everything else.
func newCaptureError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidFeedback) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return &CaptureError{Operation: operation, Message: message, Err: err}
}

// Capture accepts reviewer feedback.
type Capture struct {
	feedback   store.FeedbackStore
	items      store.ItemStore
	candidates store.CandidateStore
	emitter    events.EventEmitter
	metrics    *metrics.PipelineMetrics
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures optional collaborators of a Capture.
type Option func(*Capture)

// WithItemStore makes RecordFeedback reject events for unknown items.
func WithItemStore(items store.ItemStore) Option {
	return func(c *Capture) { c.items = items }
}

// WithCandidateStore lets events reference a candidate by ID; missing
// species, term and original box are filled in from the stored candidate.
func WithCandidateStore(candidates store.CandidateStore) Option {
	return func(c *Capture) { c.candidates = candidates }
}

// WithMetrics records accepted events.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(c *Capture) { c.metrics = m }
}

// NewCapture creates a Capture. A nil emitter discards events.
func NewCapture(
	feedbackStore store.FeedbackStore,
	emitter events.EventEmitter,
	log *slog.Logger,
	opts ...Option,
) *Capture {
	if feedbackStore == nil {
		panic("feedback store cannot be nil")
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Capture{
		feedback: feedbackStore,
		emitter:  emitter,
		logger:   log.With(slog.String("component", "feedback_capture")),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordFeedback validates and stores one reviewer decision, then publishes
// it. The stored event, with its assigned ID and timestamp, is returned.
func (c *Capture) RecordFeedback(ctx context.Context, in *domain.FeedbackEvent) (*domain.FeedbackEvent, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: event cannot be nil", domain.ErrInvalidFeedback)
	}
	log := logger.FromContextOrDefault(ctx, c.logger)

	event := in.Clone()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = c.now()
	}

	if err := c.fillFromCandidate(ctx, event); err != nil {
		return nil, newCaptureError("record", "failed to load candidate", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if c.items != nil {
		if _, err := c.items.GetItem(ctx, event.ItemID); err != nil {
			return nil, newCaptureError("record", "failed to load item", err)
		}
	}

	if err := c.feedback.Append(ctx, event); err != nil {
		return nil, newCaptureError("record", "failed to append event", err)
	}
	c.metrics.FeedbackReceived(string(event.Action))

	log.InfoContext(ctx, "Feedback recorded",
		"feedback_id", event.ID,
		"item_id", event.ItemID,
		"pattern_key", event.Key().String(),
		"action", event.Action)

	c.publish(ctx, log, event)
	return event.Clone(), nil
}

// ListFeedback returns the audit trail of an item in the order recorded.
func (c *Capture) ListFeedback(ctx context.Context, itemID uuid.UUID) ([]*domain.FeedbackEvent, error) {
	out, err := c.feedback.ListByItem(ctx, itemID)
	if err != nil {
		return nil, newCaptureError("list", "failed to list feedback", err)
	}
	return out, nil
}

func (c *Capture) fillFromCandidate(ctx context.Context, event *domain.FeedbackEvent) error {
	if event.CandidateID == uuid.Nil || c.candidates == nil {
		return nil
	}

	cand, err := c.candidates.GetCandidate(ctx, event.CandidateID)
	if err != nil {
		return err
	}
	if event.ItemID == uuid.Nil {
		event.ItemID = cand.ItemID
	}
	if event.ItemID != cand.ItemID {
		return fmt.Errorf("%w: candidate %s belongs to another item", domain.ErrInvalidFeedback, cand.ID)
	}
	if event.Species == "" {
		event.Species = cand.Species
	}
	if event.Term == "" {
		event.Term = cand.Term()
	}
	if event.OriginalBox == (domain.BoundingBox{}) {
		event.OriginalBox = cand.Box
	}
	return nil
}

func (c *Capture) publish(ctx context.Context, log *slog.Logger, event *domain.FeedbackEvent) {
	evt, err := events.NewEvent(events.TypeFeedbackRecorded, events.FeedbackRecorded{Feedback: *event})
	if err != nil {
		log.ErrorContext(ctx, "Failed to build feedback event", "error", err)
		return
	}
	if err := c.emitter.EmitEvent(ctx, evt); err != nil {
		log.ErrorContext(ctx, "Feedback subscriber failed",
			"feedback_id", event.ID,
			"error", err)
	}
}
