package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/aves-annotator/internal/api/shared"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// ImageHandler manages the image catalog batches draw from.
type ImageHandler struct {
	catalog store.ImageCatalog
	logger  *slog.Logger
}

// NewImageHandler creates an ImageHandler.
func NewImageHandler(catalog store.ImageCatalog, log *slog.Logger) *ImageHandler {
	if catalog == nil {
		panic("image catalog cannot be nil for ImageHandler")
	}
	if log == nil {
		panic("logger cannot be nil for ImageHandler")
	}
	return &ImageHandler{
		catalog: catalog,
		logger:  log.With(slog.String("component", "image_handler")),
	}
}

// Create handles POST /api/images.
func (h *ImageHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateImageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	img, err := domain.NewImage(req.ID, req.URI, req.Species)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := h.catalog.SaveImage(r.Context(), img); err != nil {
		HandleAPIError(w, r, err, "Failed to save image")
		return
	}

	log.Info("image catalogued", "image_id", img.ID, "species", img.Species)
	shared.RespondWithJSON(w, r, http.StatusCreated, img)
}

// Get handles GET /api/images/{id}.
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	img, err := h.catalog.GetImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, img)
}
