package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// BatchStore implements store.JobStore and store.ItemStore on PostgreSQL.
type BatchStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ store.JobStore  = (*BatchStore)(nil)
	_ store.ItemStore = (*BatchStore)(nil)
)

// NewBatchStore creates a BatchStore. If logger is nil, slog.Default is used.
func NewBatchStore(db *sql.DB, logger *slog.Logger) *BatchStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchStore{
		db:     db,
		logger: logger.With(slog.String("component", "batch_store")),
	}
}

const jobColumns = `id, status, total_items, processed_items, successful_items, failed_items,
	concurrency, cancel_requested, error, created_at, started_at, completed_at, cancelled_at`

// CreateJob implements store.JobStore.
func (s *BatchStore) CreateJob(ctx context.Context, job *domain.BatchJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		return store.NewStoreError("batch_job", "create", "invalid job", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.Status, job.TotalItems, job.ProcessedItems, job.SuccessfulItems, job.FailedItems,
		job.Concurrency, job.CancelRequested, job.Error, job.CreatedAt,
		job.StartedAt, job.CompletedAt, job.CancelledAt,
	)
	if err != nil {
		log.Error("failed to create batch job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return MapError(err)
	}

	log.Debug("batch job created", slog.String("job_id", job.ID.String()))
	return nil
}

// GetJob implements store.JobStore.
func (s *BatchStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM batch_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get batch job",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, MapError(err)
	}
	return job, nil
}

// UpdateJob implements store.JobStore.
func (s *BatchStore) UpdateJob(ctx context.Context, job *domain.BatchJob) error {
	if err := job.Validate(); err != nil {
		return store.NewStoreError("batch_job", "update", "invalid job", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs
		SET status = $2, processed_items = $3, successful_items = $4, failed_items = $5,
			cancel_requested = $6, error = $7, started_at = $8, completed_at = $9, cancelled_at = $10
		WHERE id = $1`,
		job.ID, job.Status, job.ProcessedItems, job.SuccessfulItems, job.FailedItems,
		job.CancelRequested, job.Error, job.StartedAt, job.CompletedAt, job.CancelledAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update batch job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// ListJobsByStatus implements store.JobStore.
func (s *BatchStore) ListJobsByStatus(
	ctx context.Context,
	statuses ...domain.JobStatus,
) ([]*domain.BatchJob, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE status = ANY($1) ORDER BY created_at`,
		names,
	)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.BatchJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}
	return jobs, MapError(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.BatchJob, error) {
	var job domain.BatchJob
	var status string
	err := row.Scan(
		&job.ID, &status, &job.TotalItems, &job.ProcessedItems, &job.SuccessfulItems, &job.FailedItems,
		&job.Concurrency, &job.CancelRequested, &job.Error, &job.CreatedAt,
		&job.StartedAt, &job.CompletedAt, &job.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

const itemColumns = `id, job_id, image_ref, status, attempts, last_error, candidate_count,
	created_at, started_at, finished_at`

// CreateItems implements store.ItemStore. Items keep their slice position so
// ListItems returns them in submission order.
func (s *BatchStore) CreateItems(ctx context.Context, items []*domain.BatchItem) error {
	return store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO batch_items (position, `+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
		if err != nil {
			return MapError(err)
		}
		defer func() { _ = stmt.Close() }()

		for i, item := range items {
			if _, err := stmt.ExecContext(ctx,
				i, item.ID, item.JobID, item.ImageRef, item.Status, item.Attempts, item.LastError,
				item.CandidateCount, item.CreatedAt, item.StartedAt, item.FinishedAt,
			); err != nil {
				if IsForeignKeyViolation(err) {
					return store.ErrJobNotFound
				}
				return fmt.Errorf("insert item %d: %w", i, MapError(err))
			}
		}
		return nil
	})
}

// GetItem implements store.ItemStore.
func (s *BatchStore) GetItem(ctx context.Context, id uuid.UUID) (*domain.BatchItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM batch_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		return nil, MapError(err)
	}
	return item, nil
}

// UpdateItem implements store.ItemStore.
func (s *BatchStore) UpdateItem(ctx context.Context, item *domain.BatchItem) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE batch_items
		SET status = $2, attempts = $3, last_error = $4, candidate_count = $5,
			started_at = $6, finished_at = $7
		WHERE id = $1`,
		item.ID, item.Status, item.Attempts, item.LastError, item.CandidateCount,
		item.StartedAt, item.FinishedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update batch item",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrItemNotFound)
}

// ListItems implements store.ItemStore.
func (s *BatchStore) ListItems(ctx context.Context, jobID uuid.UUID) ([]*domain.BatchItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM batch_items WHERE job_id = $1 ORDER BY position`, jobID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]*domain.BatchItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, MapError(err)
		}
		items = append(items, item)
	}
	return items, MapError(rows.Err())
}

func scanItem(row rowScanner) (*domain.BatchItem, error) {
	var item domain.BatchItem
	var status string
	err := row.Scan(
		&item.ID, &item.JobID, &item.ImageRef, &status, &item.Attempts, &item.LastError,
		&item.CandidateCount, &item.CreatedAt, &item.StartedAt, &item.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Status = domain.ItemStatus(status)
	return &item, nil
}
