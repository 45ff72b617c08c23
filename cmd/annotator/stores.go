package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/platform/memory"
	"github.com/phrazzld/aves-annotator/internal/platform/postgres"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// storeSet groups the persistence backends of the pipeline.
type storeSet struct {
	jobs       store.JobStore
	items      store.ItemStore
	candidates store.CandidateStore
	catalog    store.ImageCatalog
	feedback   store.FeedbackStore
	patterns   store.PatternStore

	// db is nil for the in-memory backend.
	db *sql.DB
}

// openStores connects to Postgres when a database URL is configured and
// falls back to process-local memory stores otherwise.
func openStores(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*storeSet, error) {
	if !cfg.UsePostgres() {
		log.Warn("no database configured, using in-memory stores")
		return newMemoryStores(), nil
	}

	db, err := postgres.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	batches := postgres.NewBatchStore(db, log)
	return &storeSet{
		jobs:       batches,
		items:      batches,
		candidates: postgres.NewCandidateStore(db, log),
		catalog:    postgres.NewImageCatalog(db),
		feedback:   postgres.NewFeedbackStore(db, log),
		patterns:   postgres.NewPatternStore(db, log),
		db:         db,
	}, nil
}

func newMemoryStores() *storeSet {
	batches := memory.NewBatchStore()
	return &storeSet{
		jobs:       batches,
		items:      batches,
		candidates: memory.NewCandidateStore(),
		catalog:    memory.NewImageCatalog(),
		feedback:   memory.NewFeedbackStore(),
		patterns:   memory.NewPatternStore(),
	}
}

// ping checks the database, if any.
func (s *storeSet) ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *storeSet) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
