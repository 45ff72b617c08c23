package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// PatternStore implements store.PatternStore on PostgreSQL. UpdatePattern
// locks the row with SELECT ... FOR UPDATE so concurrent updates of one key
// queue up; first inserts race on the primary key and are retried once.
type PatternStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.PatternStore = (*PatternStore)(nil)

// NewPatternStore creates a PatternStore. If logger is nil, slog.Default is used.
func NewPatternStore(db *sql.DB, logger *slog.Logger) *PatternStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PatternStore{
		db:     db,
		logger: logger.With(slog.String("component", "pattern_store")),
	}
}

const patternColumns = `species_key, term_key, sample_count, approval_count, rejection_count,
	correction_count, total_weight, mean_dx, mean_dy, mean_dw, mean_dh, confidence,
	rejection_reasons, last_rejection_reason, last_rejection_at, created_at, updated_at`

// GetPattern implements store.PatternStore.
func (s *PatternStore) GetPattern(ctx context.Context, key domain.PatternKey) (*domain.Pattern, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE species_key = $1 AND term_key = $2`,
		key.Species, key.Term)
	p, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPatternNotFound
		}
		return nil, MapError(err)
	}
	return p, nil
}

// UpdatePattern implements store.PatternStore.
func (s *PatternStore) UpdatePattern(
	ctx context.Context,
	key domain.PatternKey,
	fn store.PatternUpdateFn,
) (*domain.Pattern, error) {
	if key.IsZero() {
		return nil, store.NewStoreError("pattern", "update", "empty key", store.ErrInvalidEntity)
	}

	result, err := s.updateOnce(ctx, key, fn)
	if err != nil && errors.Is(err, store.ErrDuplicate) {
		// Another writer inserted the row first; the retry finds and locks it.
		logger.FromContextOrDefault(ctx, s.logger).Debug("pattern insert raced, retrying",
			slog.String("key", key.String()))
		result, err = s.updateOnce(ctx, key, fn)
	}
	return result, err
}

func (s *PatternStore) updateOnce(
	ctx context.Context,
	key domain.PatternKey,
	fn store.PatternUpdateFn,
) (*domain.Pattern, error) {
	var result *domain.Pattern

	err := store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+patternColumns+` FROM patterns
			WHERE species_key = $1 AND term_key = $2 FOR UPDATE`,
			key.Species, key.Term)

		current, err := scanPattern(row)
		exists := true
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return MapError(err)
			}
			current, exists = nil, false
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return store.NewStoreError("pattern", "update", "update returned no pattern", store.ErrUpdateFailed)
		}
		next.Key = key

		if err := s.write(ctx, tx, next, exists); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PatternStore) write(ctx context.Context, tx *sql.Tx, p *domain.Pattern, exists bool) error {
	reasons, err := json.Marshal(p.RejectionReasons)
	if err != nil {
		return fmt.Errorf("encode rejection reasons: %w", err)
	}

	args := []any{
		p.Key.Species, p.Key.Term, p.SampleCount, p.ApprovalCount, p.RejectionCount,
		p.CorrectionCount, p.TotalWeight, p.MeanDelta.DX, p.MeanDelta.DY, p.MeanDelta.DW, p.MeanDelta.DH,
		p.Confidence, reasons, p.LastRejectionReason, p.LastRejectionAt, p.CreatedAt, p.UpdatedAt,
	}

	query := `
		INSERT INTO patterns (` + patternColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	if exists {
		query = `
			UPDATE patterns
			SET sample_count = $3, approval_count = $4, rejection_count = $5, correction_count = $6,
				total_weight = $7, mean_dx = $8, mean_dy = $9, mean_dw = $10, mean_dh = $11,
				confidence = $12, rejection_reasons = $13, last_rejection_reason = $14,
				last_rejection_at = $15, created_at = $16, updated_at = $17
			WHERE species_key = $1 AND term_key = $2`
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to write pattern",
			slog.String("error", err.Error()),
			slog.String("key", p.Key.String()))
		return MapError(err)
	}
	return nil
}

// ListPatterns implements store.PatternStore.
func (s *PatternStore) ListPatterns(ctx context.Context, species string) ([]*domain.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns`
	args := []any{}
	if filter := domain.NormalizeName(species); filter != "" {
		query += ` WHERE species_key = $1`
		args = append(args, filter)
	}
	query += ` ORDER BY species_key, term_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	patterns := make([]*domain.Pattern, 0)
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, MapError(err)
		}
		patterns = append(patterns, p)
	}
	return patterns, MapError(rows.Err())
}

func scanPattern(row rowScanner) (*domain.Pattern, error) {
	var p domain.Pattern
	var reasons []byte
	err := row.Scan(
		&p.Key.Species, &p.Key.Term, &p.SampleCount, &p.ApprovalCount, &p.RejectionCount,
		&p.CorrectionCount, &p.TotalWeight, &p.MeanDelta.DX, &p.MeanDelta.DY, &p.MeanDelta.DW, &p.MeanDelta.DH,
		&p.Confidence, &reasons, &p.LastRejectionReason, &p.LastRejectionAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.RejectionReasons = make(map[string]int)
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &p.RejectionReasons); err != nil {
			return nil, fmt.Errorf("decode rejection reasons: %w", err)
		}
	}
	return &p, nil
}
