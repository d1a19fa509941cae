// Package extractor talks to the face detection and embedding service.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/metrics"
)

const defaultExtractorURL = "http://localhost:8000"

// duplicateIoU is the overlap above which two detections are taken to be the same face.
const duplicateIoU = 0.9

// Face is one detected face. Embedding is nil when the service could not embed it.
type Face struct {
	FaceID     string     // Service-assigned id, empty when the service does not assign one
	BBox       [4]float64 // [x, y, w, h] in raw pixel coordinates
	Confidence float64
	Embedding  []float32
	CropRef    string // Reference to a stored face crop, if the service keeps one

	Attributes *database.FaceAttributes // nil when the service reports none
}

// Extractor turns an image into detected faces. An image without faces yields an
// empty slice and a nil error.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]Face, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, image []byte) ([]Face, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, image []byte) ([]Face, error) {
	return f(ctx, image)
}

// ExtractionError reports a failed call to the extraction service.
type ExtractionError struct {
	StatusCode int // HTTP status, 0 when no response was received
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("face extraction failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("face extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Client calls the extraction service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	metrics *metrics.Metrics
}

// NewClient creates a new extraction client
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if baseURL == "" {
		baseURL = defaultExtractorURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// faceDetection represents a single detected face in the service response
type faceDetection struct {
	FaceID    string    `json:"face_id,omitempty"`
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
	CropRef   string    `json:"crop_ref,omitempty"`

	// Optional analysis fields, present only when the service runs attribute models.
	Landmarks []float64 `json:"landmarks,omitempty"`
	Age       *float64  `json:"age,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Emotion   string    `json:"emotion,omitempty"`
	Quality   *float64  `json:"quality,omitempty"`
}

func (d *faceDetection) attributes() *database.FaceAttributes {
	a := &database.FaceAttributes{
		Landmarks: d.Landmarks,
		Age:       d.Age,
		Gender:    d.Gender,
		Emotion:   d.Emotion,
		Quality:   d.Quality,
	}
	if a.Empty() {
		return nil
	}
	return a
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Extract detects faces and computes their embeddings.
func (c *Client) Extract(ctx context.Context, image []byte) ([]Face, error) {
	start := time.Now()
	faces, err := c.extract(ctx, image)
	c.metrics.ExtractionFinished(time.Since(start), err)
	return faces, err
}

func (c *Client) extract(ctx context.Context, image []byte) ([]Face, error) {
	body, status, err := c.postMultipartImage(ctx, "/embed/face", image)
	if err != nil {
		return nil, &ExtractionError{StatusCode: status, Err: err}
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ExtractionError{StatusCode: status, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	faces := make([]Face, 0, len(resp.Faces))
	for _, d := range resp.Faces {
		if len(d.BBox) != 4 {
			return nil, &ExtractionError{StatusCode: status,
				Err: fmt.Errorf("face %d has a bbox of length %d", d.FaceIndex, len(d.BBox))}
		}
		f := Face{
			FaceID:     d.FaceID,
			BBox:       CornersToXYWH(d.BBox),
			Confidence: d.DetScore,
			CropRef:    d.CropRef,
			Attributes: d.attributes(),
		}
		if len(d.Embedding) > 0 {
			f.Embedding = d.Embedding
		}
		faces = append(faces, f)
	}
	return dedupe(faces), nil
}

// dedupe drops detections that overlap a more confident detection almost completely.
func dedupe(faces []Face) []Face {
	if len(faces) < 2 {
		return faces
	}
	order := make([]int, len(faces))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case faces[a].Confidence > faces[b].Confidence:
			return -1
		case faces[a].Confidence < faces[b].Confidence:
			return 1
		}
		return 0
	})

	drop := make([]bool, len(faces))
	for i, a := range order {
		if drop[a] {
			continue
		}
		for _, b := range order[i+1:] {
			if !drop[b] && ComputeIoU(faces[a].BBox, faces[b].BBox) >= duplicateIoU {
				drop[b] = true
			}
		}
	}

	out := faces[:0:0]
	for i, f := range faces {
		if !drop[i] {
			out = append(out, f)
		}
	}
	return out
}

// postMultipartImage posts the image as the "file" form field, with a Content-Type
// detected from its magic bytes. It returns the body and the HTTP status.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, int, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, 0, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, errors.New(strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38:
		return "image/gif"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	case data[0] == 'B' && data[1] == 'M':
		return "image/bmp"
	case string(data[0:4]) == "II*\x00" || string(data[0:4]) == "MM\x00*":
		return "image/tiff"
	}
	return "application/octet-stream"
}
