package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facesearch/internal/config"
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/database/mock"
	"github.com/kozaktomas/facesearch/internal/extractor"
	"github.com/kozaktomas/facesearch/internal/facematch"
	"github.com/kozaktomas/facesearch/internal/faceindex"
	"github.com/kozaktomas/facesearch/internal/web/middleware"
)

const testDim = 4

// testEnv wires the services over in-memory stores and a fake extractor.
type testEnv struct {
	emb      *mock.MockEmbeddingStore
	images   *mock.MockImageStore
	settings *mock.MockSettingsStore
	index    *faceindex.Index
	faces    map[string][]extractor.Face // extractor results keyed by image bytes
	extErr   error

	enroller *facematch.Enroller
	search   *facematch.SearchService
	verifier *facematch.Verifier
	policy   *facematch.ThresholdPolicy
}

// newTestEnv seeds the embedding store and builds a loaded index over it.
func newTestEnv(t *testing.T, recs ...database.EmbeddingRecord) *testEnv {
	t.Helper()
	return newTestEnvWithIndex(t, faceindex.Options{Dim: testDim}, true, recs...)
}

func newTestEnvWithIndex(t *testing.T, opts faceindex.Options, load bool, recs ...database.EmbeddingRecord) *testEnv {
	t.Helper()
	store, emb, images, settings := mock.NewStore()
	for _, r := range recs {
		emb.AddRecord(r)
	}
	ix, err := faceindex.New(emb, opts)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	if load {
		if _, err := ix.Rebuild(context.Background()); err != nil {
			t.Fatalf("failed to build index: %v", err)
		}
	}

	env := &testEnv{
		emb:      emb,
		images:   images,
		settings: settings,
		index:    ix,
		faces:    make(map[string][]extractor.Face),
	}
	ext := extractor.Func(func(ctx context.Context, img []byte) ([]extractor.Face, error) {
		if env.extErr != nil {
			return nil, env.extErr
		}
		return append([]extractor.Face(nil), env.faces[string(img)]...), nil
	})
	env.policy = facematch.NewThresholdPolicy(settings, config.ThresholdConfig{Default: 75, Min: 70, Max: 90})
	env.enroller = facematch.NewEnroller(store, ext, ix)
	env.search = facematch.NewSearchService(ix, store, ext, config.SearchConfig{DefaultTopK: 5, MaxTopK: 100})
	env.verifier = facematch.NewVerifier(testDim, env.policy, ext, store, nil)
	return env
}

func (e *testEnv) facesHandler() *FacesHandler {
	return NewFacesHandler(e.enroller, e.search, e.verifier)
}

// testPNG returns a valid PNG whose bytes differ for every width.
func testPNG(t *testing.T, width int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, width, 8))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// jsonRequest creates a request with a JSON body and an optional user.
func jsonRequest(t *testing.T, method, path string, body any, user string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return withUser(req, user)
}

// multipartRequest creates a multipart POST with the given files and fields.
func multipartRequest(t *testing.T, path string, files map[string][]byte, fields map[string]string, user string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(data)
	}
	for name, value := range fields {
		mw.WriteField(name, value)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withUser(req, user)
}

func withUser(r *http.Request, user string) *http.Request {
	return r.WithContext(middleware.SetUserInContext(r.Context(), user))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
