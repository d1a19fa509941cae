package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/facesearch/internal/extractor"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/rs/zerolog/hlog"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadSize bounds a multipart request with one or two images.
const maxUploadSize = 32 << 20

// maxJSONBody bounds JSON request bodies; a 512-d vector pair fits easily.
const maxJSONBody = 1 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps a service error to an HTTP status.
func errorStatus(err error) int {
	var extractErr *extractor.ExtractionError
	switch {
	case errors.As(err, &extractErr):
		return http.StatusBadGateway
	case errors.Is(err, faceerr.ErrOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, faceerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, faceerr.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, faceerr.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, faceerr.ErrInvalidArgument), errors.Is(err, faceerr.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondServiceError sends the status matching err. Internal errors are logged and
// replaced by a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", sanitizeForLog(r.URL.Path)).Msg("request failed")
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// parseMultipart parses a bounded multipart form.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return false
	}
	return true
}

// formFile reads one uploaded file from a parsed multipart form.
func formFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s file is required", faceerr.ErrInvalidArgument, field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", field, err)
	}
	return data, header.Filename, nil
}

// optionalFloat parses an optional numeric form or query value.
func optionalFloat(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", faceerr.ErrInvalidArgument, name)
	}
	return &v, nil
}

// optionalInt parses an optional integer query value, zero when absent.
func optionalInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", faceerr.ErrInvalidArgument, name)
	}
	return v, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
