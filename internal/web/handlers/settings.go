package handlers

import (
	"net/http"

	"github.com/kozaktomas/facesearch/internal/facematch"
	"github.com/kozaktomas/facesearch/internal/web/middleware"
)

// SettingsHandler handles per-user settings.
type SettingsHandler struct {
	policy *facematch.ThresholdPolicy
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(policy *facematch.ThresholdPolicy) *SettingsHandler {
	return &SettingsHandler{policy: policy}
}

type thresholdResponse struct {
	Threshold float64          `json:"threshold"`
	Default   float64          `json:"default"`
	Bounds    facematch.Bounds `json:"bounds"`
}

// GetThreshold returns the caller's match threshold.
func (h *SettingsHandler) GetThreshold(w http.ResponseWriter, r *http.Request) {
	v, err := h.policy.Get(r.Context(), middleware.GetUserFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, thresholdResponse{Threshold: v, Default: h.policy.Default(), Bounds: h.policy.Bounds()})
}

type setThresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// SetThreshold stores the caller's match threshold.
func (h *SettingsHandler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req setThresholdRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Threshold == nil {
		respondError(w, http.StatusBadRequest, "threshold is required")
		return
	}
	if err := h.policy.Set(r.Context(), middleware.GetUserFromContext(r.Context()), *req.Threshold); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, thresholdResponse{Threshold: *req.Threshold, Default: h.policy.Default(), Bounds: h.policy.Bounds()})
}
