package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/api/shared"
	"github.com/phrazzld/aves-annotator/internal/batch"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
)

// BatchService controls batch jobs. *batch.Manager satisfies it.
type BatchService interface {
	StartBatch(ctx context.Context, imageRefs []string, concurrency int) (uuid.UUID, error)
	GetJobProgress(ctx context.Context, id uuid.UUID) (batch.Progress, error)
	CancelJob(ctx context.Context, id uuid.UUID) (bool, error)
	ListActiveJobs(ctx context.Context) ([]*domain.BatchJob, error)
	ListItems(ctx context.Context, id uuid.UUID) ([]*domain.BatchItem, error)
}

// BatchHandler handles batch job requests.
type BatchHandler struct {
	batches BatchService
	logger  *slog.Logger
}

// NewBatchHandler creates a BatchHandler.
func NewBatchHandler(batches BatchService, log *slog.Logger) *BatchHandler {
	if batches == nil {
		panic("batch service cannot be nil for BatchHandler")
	}
	if log == nil {
		panic("logger cannot be nil for BatchHandler")
	}
	return &BatchHandler{
		batches: batches,
		logger:  log.With(slog.String("component", "batch_handler")),
	}
}

// StartBatch handles POST /api/batches. Processing continues after the
// response, so it answers 202 with the new job ID.
func (h *BatchHandler) StartBatch(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req StartBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	jobID, err := h.batches.StartBatch(r.Context(), req.ImageRefs, req.Concurrency)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("batch accepted", "job_id", jobID, "items", len(req.ImageRefs))
	shared.RespondWithJSON(w, r, http.StatusAccepted, StartBatchResponse{JobID: jobID})
}

// ListActive handles GET /api/batches.
func (h *BatchHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.batches.ListActiveJobs(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list batches")
		return
	}
	out := make([]batch.Progress, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, batch.ProgressOf(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// GetProgress handles GET /api/batches/{id}.
func (h *BatchHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid batch ID")
		return
	}

	progress, err := h.batches.GetJobProgress(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, progress)
}

// Cancel handles POST /api/batches/{id}/cancel.
func (h *BatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid batch ID")
		return
	}

	accepted, err := h.batches.CancelJob(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("batch cancellation handled", "job_id", id, "accepted", accepted)
	shared.RespondWithJSON(w, r, http.StatusOK, CancelBatchResponse{JobID: id, Accepted: accepted})
}

// ListItems handles GET /api/batches/{id}/items.
func (h *BatchHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid batch ID")
		return
	}

	items, err := h.batches.ListItems(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, items)
}
