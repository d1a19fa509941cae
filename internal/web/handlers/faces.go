package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/facematch"
)

// FacesHandler handles face enrollment, search and verification endpoints.
type FacesHandler struct {
	enroller *facematch.Enroller
	search   *facematch.SearchService
	verifier *facematch.Verifier
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(enroller *facematch.Enroller, search *facematch.SearchService, verifier *facematch.Verifier) *FacesHandler {
	return &FacesHandler{
		enroller: enroller,
		search:   search,
		verifier: verifier,
	}
}

// faceResponse is an embedding record without its vector.
type faceResponse struct {
	FaceID    string    `json:"face_id"`
	Label     string    `json:"label,omitempty"`
	ImageID   string    `json:"image_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

func toFaceResponse(rec *database.EmbeddingRecord) faceResponse {
	return faceResponse{
		FaceID:    rec.FaceID,
		Label:     rec.Label,
		ImageID:   rec.ImageID,
		CreatedAt: rec.CreatedAt,
	}
}

type addFaceRequest struct {
	FaceID  string    `json:"face_id"`
	Vector  []float32 `json:"vector"`
	Label   string    `json:"label"`
	ImageID string    `json:"image_id"`
}

// Add stores a precomputed embedding.
func (h *FacesHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addFaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.enroller.AddEmbedding(r.Context(), database.EmbeddingRecord{
		FaceID:  req.FaceID,
		Vector:  req.Vector,
		Label:   req.Label,
		ImageID: req.ImageID,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toFaceResponse(rec))
}

type enrollRequest struct {
	ImageID string `json:"image_id"`
	FaceID  string `json:"face_id"`
	Label   string `json:"label"`
}

// Enroll labels a detected face.
func (h *FacesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.enroller.Enroll(r.Context(), req.ImageID, req.FaceID, req.Label)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toFaceResponse(rec))
}

// List returns the faces enrolled under the label query parameter.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.enroller.ListByLabel(r.Context(), r.URL.Query().Get("label"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	out := make([]faceResponse, len(recs))
	for i := range recs {
		out[i] = toFaceResponse(&recs[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{"faces": out})
}

// Delete removes a face embedding.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.enroller.DeleteFace(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"face_id": id, "deleted": true})
}
