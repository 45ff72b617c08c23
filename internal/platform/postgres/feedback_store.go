package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// FeedbackStore implements store.FeedbackStore on PostgreSQL. The seq column
// preserves append order.
type FeedbackStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.FeedbackStore = (*FeedbackStore)(nil)

// NewFeedbackStore creates a FeedbackStore. If logger is nil, slog.Default is used.
func NewFeedbackStore(db store.DBTX, logger *slog.Logger) *FeedbackStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackStore{
		db:     db,
		logger: logger.With(slog.String("component", "feedback_store")),
	}
}

const feedbackColumns = `id, item_id, candidate_id, reviewer_id, species, term, action,
	original_x, original_y, original_width, original_height,
	corrected_x, corrected_y, corrected_width, corrected_height,
	rejection_reason, created_at`

// Append implements store.FeedbackStore.
func (s *FeedbackStore) Append(ctx context.Context, e *domain.FeedbackEvent) error {
	key := e.Key()

	var candidateID *uuid.UUID
	if e.CandidateID != uuid.Nil {
		id := e.CandidateID
		candidateID = &id
	}

	var cx, cy, cw, ch *float64
	if e.CorrectedBox != nil {
		cx, cy, cw, ch = &e.CorrectedBox.X, &e.CorrectedBox.Y, &e.CorrectedBox.Width, &e.CorrectedBox.Height
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_events (species_key, term_key, `+feedbackColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		key.Species, key.Term,
		e.ID, e.ItemID, candidateID, e.ReviewerID, e.Species, e.Term, e.Action,
		e.OriginalBox.X, e.OriginalBox.Y, e.OriginalBox.Width, e.OriginalBox.Height,
		cx, cy, cw, ch,
		e.RejectionReason, e.CreatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to append feedback",
			slog.String("error", err.Error()),
			slog.String("event_id", e.ID.String()),
			slog.String("item_id", e.ItemID.String()))
		if IsForeignKeyViolation(err) {
			return store.ErrItemNotFound
		}
		return MapError(err)
	}
	return nil
}

// ListByItem implements store.FeedbackStore.
func (s *FeedbackStore) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.FeedbackEvent, error) {
	return s.query(ctx,
		`SELECT `+feedbackColumns+` FROM feedback_events WHERE item_id = $1 ORDER BY seq`, itemID)
}

// ListByKey implements store.FeedbackStore.
func (s *FeedbackStore) ListByKey(ctx context.Context, key domain.PatternKey) ([]*domain.FeedbackEvent, error) {
	return s.query(ctx,
		`SELECT `+feedbackColumns+` FROM feedback_events
		WHERE species_key = $1 AND term_key = $2 ORDER BY seq`, key.Species, key.Term)
}

func (s *FeedbackStore) query(ctx context.Context, query string, args ...any) ([]*domain.FeedbackEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*domain.FeedbackEvent, 0)
	for rows.Next() {
		e, err := scanFeedback(rows)
		if err != nil {
			return nil, MapError(err)
		}
		events = append(events, e)
	}
	return events, MapError(rows.Err())
}

func scanFeedback(row rowScanner) (*domain.FeedbackEvent, error) {
	var e domain.FeedbackEvent
	var action string
	var candidateID uuid.NullUUID
	var cx, cy, cw, ch sql.NullFloat64

	err := row.Scan(
		&e.ID, &e.ItemID, &candidateID, &e.ReviewerID, &e.Species, &e.Term, &action,
		&e.OriginalBox.X, &e.OriginalBox.Y, &e.OriginalBox.Width, &e.OriginalBox.Height,
		&cx, &cy, &cw, &ch,
		&e.RejectionReason, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Action = domain.ReviewAction(action)
	if candidateID.Valid {
		e.CandidateID = candidateID.UUID
	}
	if cx.Valid {
		e.CorrectedBox = &domain.BoundingBox{X: cx.Float64, Y: cy.Float64, Width: cw.Float64, Height: ch.Float64}
	}
	return &e, nil
}
