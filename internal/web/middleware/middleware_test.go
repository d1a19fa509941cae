package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestUserID(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantUser   string
		wantStatus int
	}{
		{"anonymous", "", "", http.StatusOK},
		{"trimmed", "  alice ", "alice", http.StatusOK},
		{"too long", strings.Repeat("x", maxUserIDLength+1), "", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			h := UserID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetUserFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(UserHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if got != tc.wantUser {
				t.Errorf("expected user %q, got %q", tc.wantUser, got)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://faces.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"whitelisted", http.MethodGet, "https://faces.example.com", "https://faces.example.com", http.StatusTeapot},
		{"localhost", http.MethodGet, "http://localhost:5173", "http://localhost:5173", http.StatusTeapot},
		{"localhost lookalike", http.MethodGet, "http://localhost.evil.com", "", http.StatusTeapot},
		{"unknown", http.MethodGet, "https://evil.com", "", http.StatusTeapot},
		{"preflight", http.MethodOptions, "https://faces.example.com", "https://faces.example.com", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/health", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("expected allow-origin %q, got %q", tc.wantOrigin, got)
			}
			if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), UserHeader) {
				t.Error("expected X-User-ID in allowed headers")
			}
		})
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/images", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["path"] != "/api/v1/images" || entry["method"] != "POST" {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["status"] != float64(http.StatusCreated) || entry["size"] != float64(5) {
		t.Errorf("unexpected status/size in %v", entry)
	}
}
