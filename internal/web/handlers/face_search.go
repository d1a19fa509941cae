package handlers

import (
	"net/http"

	"github.com/kozaktomas/facesearch/internal/facematch"
)

type searchResponse struct {
	Results []facematch.SearchHit `json:"results"`
}

// Search finds enrolled faces similar to the most confident face of the multipart "query" image.
func (h *FacesHandler) Search(w http.ResponseWriter, r *http.Request) {
	topK, err := optionalInt(r.URL.Query().Get("top_k"), "top_k")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	query, _, err := formFile(r, "query")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	hits, err := h.search.SearchImage(r.Context(), query, topK)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, searchResponse{Results: hits})
}

type searchVectorRequest struct {
	Vector []float32 `json:"vector"`
	TopK   int       `json:"top_k"`
}

// SearchVector finds enrolled faces similar to a query embedding.
func (h *FacesHandler) SearchVector(w http.ResponseWriter, r *http.Request) {
	var req searchVectorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hits, err := h.search.Search(r.Context(), req.Vector, req.TopK)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, searchResponse{Results: hits})
}
