package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// CandidateStore implements store.CandidateStore on PostgreSQL.
type CandidateStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.CandidateStore = (*CandidateStore)(nil)

// NewCandidateStore creates a CandidateStore. If logger is nil, slog.Default is used.
func NewCandidateStore(db *sql.DB, logger *slog.Logger) *CandidateStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CandidateStore{
		db:     db,
		logger: logger.With(slog.String("component", "candidate_store")),
	}
}

const candidateColumns = `id, item_id, species, spanish_term, english_term,
	box_x, box_y, box_width, box_height, feature_type, confidence, created_at`

// SaveCandidates implements store.CandidateStore.
func (s *CandidateStore) SaveCandidates(ctx context.Context, candidates []*domain.AnnotationCandidate) error {
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return store.NewStoreError("annotation_candidate", "create", "invalid candidate", err)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	return store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO annotation_candidates (`+candidateColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
		if err != nil {
			return MapError(err)
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range candidates {
			if _, err := stmt.ExecContext(ctx,
				c.ID, c.ItemID, c.Species, c.SpanishTerm, c.EnglishTerm,
				c.Box.X, c.Box.Y, c.Box.Width, c.Box.Height, c.Type, c.Confidence, c.CreatedAt,
			); err != nil {
				logger.FromContextOrDefault(ctx, s.logger).Error("failed to insert candidate",
					slog.String("error", err.Error()),
					slog.String("item_id", c.ItemID.String()))
				return MapError(err)
			}
		}
		return nil
	})
}

// GetCandidate implements store.CandidateStore.
func (s *CandidateStore) GetCandidate(ctx context.Context, id uuid.UUID) (*domain.AnnotationCandidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM annotation_candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCandidateNotFound
		}
		return nil, MapError(err)
	}
	return c, nil
}

// ListCandidates implements store.CandidateStore.
func (s *CandidateStore) ListCandidates(ctx context.Context, itemID uuid.UUID) ([]*domain.AnnotationCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM annotation_candidates WHERE item_id = $1 ORDER BY created_at, id`,
		itemID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*domain.AnnotationCandidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, MapError(err)
		}
		result = append(result, c)
	}
	return result, MapError(rows.Err())
}

func scanCandidate(row rowScanner) (*domain.AnnotationCandidate, error) {
	var c domain.AnnotationCandidate
	var featureType string
	err := row.Scan(
		&c.ID, &c.ItemID, &c.Species, &c.SpanishTerm, &c.EnglishTerm,
		&c.Box.X, &c.Box.Y, &c.Box.Width, &c.Box.Height, &featureType, &c.Confidence, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = domain.FeatureType(featureType)
	return &c, nil
}

// ImageCatalog implements store.ImageCatalog on PostgreSQL.
type ImageCatalog struct {
	db store.DBTX
}

var _ store.ImageCatalog = (*ImageCatalog)(nil)

// NewImageCatalog creates an ImageCatalog.
func NewImageCatalog(db store.DBTX) *ImageCatalog {
	return &ImageCatalog{db: db}
}

// SaveImage implements store.ImageCatalog.
func (c *ImageCatalog) SaveImage(ctx context.Context, img *domain.Image) error {
	if err := img.Validate(); err != nil {
		return store.NewStoreError("image", "save", "invalid image", err)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO images (id, uri, species, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET uri = EXCLUDED.uri, species = EXCLUDED.species`,
		img.ID, img.URI, img.Species, img.CreatedAt)
	return MapError(err)
}

// GetImage implements store.ImageCatalog.
func (c *ImageCatalog) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	var img domain.Image
	err := c.db.QueryRowContext(ctx,
		`SELECT id, uri, species, created_at FROM images WHERE id = $1`, id).
		Scan(&img.ID, &img.URI, &img.Species, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrImageNotFound
		}
		return nil, MapError(err)
	}
	return &img, nil
}
