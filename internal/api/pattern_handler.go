package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/aves-annotator/internal/api/shared"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/learning"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
)

// PatternService reads and resets learned patterns. *learning.Learner
// satisfies it.
type PatternService interface {
	GetPattern(ctx context.Context, key domain.PatternKey) (*domain.Pattern, error)
	ListPatterns(ctx context.Context, species string) ([]*domain.Pattern, error)
	Reset(ctx context.Context, key domain.PatternKey) (*domain.Pattern, error)
	Rebuild(ctx context.Context, key domain.PatternKey) (*domain.Pattern, learning.BatchResult, error)
}

// PatternHandler handles pattern inspection and maintenance requests.
type PatternHandler struct {
	patterns PatternService
	logger   *slog.Logger
}

// NewPatternHandler creates a PatternHandler.
func NewPatternHandler(patterns PatternService, log *slog.Logger) *PatternHandler {
	if patterns == nil {
		panic("pattern service cannot be nil for PatternHandler")
	}
	if log == nil {
		panic("logger cannot be nil for PatternHandler")
	}
	return &PatternHandler{
		patterns: patterns,
		logger:   log.With(slog.String("component", "pattern_handler")),
	}
}

// List handles GET /api/patterns?species=.
func (h *PatternHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.patterns.ListPatterns(r.Context(), r.URL.Query().Get("species"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list patterns")
		return
	}
	if out == nil {
		out = []*domain.Pattern{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// Get handles GET /api/patterns/{species}/{term}.
func (h *PatternHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := domain.NewPatternKey(chi.URLParam(r, "species"), chi.URLParam(r, "term"))
	if key.IsZero() {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Species and term are required")
		return
	}

	p, err := h.patterns.GetPattern(r.Context(), key)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, p)
}

// Reset handles POST /api/patterns/reset.
func (h *PatternHandler) Reset(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req ResetPatternRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	key := domain.NewPatternKey(req.Species, req.Term)

	var (
		resp ResetPatternResponse
		err  error
	)
	if req.Rebuild {
		var res learning.BatchResult
		resp.Pattern, res, err = h.patterns.Rebuild(r.Context(), key)
		resp.Applied, resp.Skipped = res.Applied, res.Skipped
	} else {
		resp.Pattern, err = h.patterns.Reset(r.Context(), key)
	}
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	reviewer, _ := shared.GetReviewerID(r.Context())
	log.Info("pattern reset",
		"pattern_key", key.String(),
		"rebuild", req.Rebuild,
		"reviewer_id", reviewer)
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
