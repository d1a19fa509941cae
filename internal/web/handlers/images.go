package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facesearch/internal/facematch"
	"github.com/kozaktomas/facesearch/internal/web/middleware"
	"github.com/rs/zerolog/hlog"
)

// ImagesHandler handles image upload and lookup endpoints.
type ImagesHandler struct {
	enroller *facematch.Enroller
}

// NewImagesHandler creates a new images handler.
func NewImagesHandler(enroller *facematch.Enroller) *ImagesHandler {
	return &ImagesHandler{enroller: enroller}
}

// Upload ingests one image sent as the multipart "file" field.
func (h *ImagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	data, name, err := formFile(r, "file")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	res, err := h.enroller.Ingest(r.Context(), user, name, data)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().
		Str("image_id", res.Image.ID).
		Int("faces", len(res.Image.Faces)).
		Int("stored", res.Stored).
		Msg("image ingested")
	respondJSON(w, http.StatusCreated, res)
}

// Get returns an image document.
func (h *ImagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	img, err := h.enroller.Image(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, img)
}

// Delete removes an image document and its embeddings.
func (h *ImagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.enroller.DeleteImage(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"image_id":      id,
		"deleted_faces": n,
	})
}
