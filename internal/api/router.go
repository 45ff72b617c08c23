package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apimiddleware "github.com/phrazzld/aves-annotator/internal/api/middleware"
	"github.com/phrazzld/aves-annotator/internal/api/shared"
	"github.com/phrazzld/aves-annotator/internal/auth"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// RouterDeps collects everything the router serves. Tokens is optional;
// without it the API accepts unauthenticated requests. Metrics, when set, is
// mounted at /metrics. Health, when set, is probed by /health.
type RouterDeps struct {
	Logger   *slog.Logger
	Batches  BatchService
	Review   ReviewService
	Patterns PatternService
	Images   store.ImageCatalog
	Tokens   auth.TokenService
	Metrics  http.Handler
	Health   func(ctx context.Context) error
}

// NewRouter builds the HTTP handler tree.
func NewRouter(deps RouterDeps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	batchHandler := NewBatchHandler(deps.Batches, log)
	reviewHandler := NewReviewHandler(deps.Review, log)
	patternHandler := NewPatternHandler(deps.Patterns, log)
	imageHandler := NewImageHandler(deps.Images, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(log))

	r.Route("/api", func(r chi.Router) {
		if deps.Tokens != nil {
			r.Use(apimiddleware.NewAuthMiddleware(deps.Tokens).Authenticate)
		}

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", batchHandler.StartBatch)
			r.Get("/", batchHandler.ListActive)
			r.Get("/{id}", batchHandler.GetProgress)
			r.Post("/{id}/cancel", batchHandler.Cancel)
			r.Get("/{id}/items", batchHandler.ListItems)
			r.Get("/{id}/candidates", reviewHandler.ListBatchCandidates)
		})

		r.Get("/items/{id}/candidates", reviewHandler.ItemCandidates)
		r.Get("/items/{id}/feedback", reviewHandler.ItemFeedback)
		r.Post("/feedback", reviewHandler.SubmitFeedback)

		r.Get("/patterns", patternHandler.List)
		r.Get("/patterns/{species}/{term}", patternHandler.Get)
		r.Post("/patterns/reset", patternHandler.Reset)

		r.Post("/images", imageHandler.Create)
		r.Get("/images/{id}", imageHandler.Get)
	})

	r.Get("/health", healthHandler(deps.Health))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

func healthHandler(probe func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if probe != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := probe(ctx); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "unavailable", err)
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}
