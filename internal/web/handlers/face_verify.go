package handlers

import (
	"net/http"

	"github.com/kozaktomas/facesearch/internal/web/middleware"
)

// Verify compares the multipart "query" and "candidate" images.
// An optional "threshold" form value overrides the user's threshold.
func (h *FacesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	threshold, err := optionalFloat(r.FormValue("threshold"), "threshold")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	query, _, err := formFile(r, "query")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	candidate, _, err := formFile(r, "candidate")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	res, err := h.verifier.VerifyImages(r.Context(), user, query, candidate, threshold)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type verifyIDsRequest struct {
	QueryImageID     string   `json:"query_image_id"`
	CandidateImageID string   `json:"candidate_image_id"`
	Threshold        *float64 `json:"threshold"`
}

// VerifyIDs compares the primary faces of two stored images.
func (h *FacesHandler) VerifyIDs(w http.ResponseWriter, r *http.Request) {
	var req verifyIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := middleware.GetUserFromContext(r.Context())
	res, err := h.verifier.VerifyImageIDs(r.Context(), user, req.QueryImageID, req.CandidateImageID, req.Threshold)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type verifyVectorsRequest struct {
	Query     []float32 `json:"query"`
	Candidate []float32 `json:"candidate"`
	Threshold *float64  `json:"threshold"`
}

// VerifyVectors compares two embeddings.
func (h *FacesHandler) VerifyVectors(w http.ResponseWriter, r *http.Request) {
	var req verifyVectorsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := middleware.GetUserFromContext(r.Context())
	res, err := h.verifier.VerifyEmbeddings(r.Context(), user, req.Query, req.Candidate, req.Threshold)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
