package database

import (
	"time"
)

// EmbeddingRecord is a face embedding stored in the embedding store.
type EmbeddingRecord struct {
	FaceID    string    `json:"face_id"`
	Vector    []float32 `json:"vector,omitempty"`
	Label     string    `json:"label,omitempty"`    // Person label assigned at enrollment (empty if not enrolled)
	ImageID   string    `json:"image_id,omitempty"` // Source image (empty for embeddings inserted without an image)
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// FaceMeta describes one detected face inside an image document.
type FaceMeta struct {
	FaceID       string     `json:"face_id"`
	BBox         [4]float64 `json:"bbox"` // [x, y, w, h] in raw pixel coordinates
	Confidence   float64    `json:"confidence"`
	CropRef      string     `json:"crop_ref,omitempty"`
	HasEmbedding bool       `json:"has_embedding"`

	Attributes *FaceAttributes `json:"attributes,omitempty"`
}

// FaceAttributes are optional per-face estimates passed through from the extractor.
// Absent values stay absent; nothing here is computed locally.
type FaceAttributes struct {
	Landmarks []float64 `json:"landmarks,omitempty"` // flattened x, y pairs in raw pixel coordinates
	Age       *float64  `json:"age,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Emotion   string    `json:"emotion,omitempty"`
	Quality   *float64  `json:"quality,omitempty"` // 0-1
}

// Empty reports whether no attribute is set.
func (a *FaceAttributes) Empty() bool {
	return a == nil || (len(a.Landmarks) == 0 && a.Age == nil && a.Gender == "" && a.Emotion == "" && a.Quality == nil)
}

// ImageRecord is the metadata document of an uploaded image. Raw bytes are not kept.
type ImageRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	FileName  string     `json:"file_name,omitempty"`
	Faces     []FaceMeta `json:"faces"`
	CreatedAt time.Time  `json:"created_at,omitzero"`
}

// Face returns the face with the given id, or nil.
func (r *ImageRecord) Face(faceID string) *FaceMeta {
	for i := range r.Faces {
		if r.Faces[i].FaceID == faceID {
			return &r.Faces[i]
		}
	}
	return nil
}

// PrimaryFace returns the highest-confidence face that has an embedding, or nil.
// Ties keep the earlier face.
func (r *ImageRecord) PrimaryFace() *FaceMeta {
	var best *FaceMeta
	for i := range r.Faces {
		f := &r.Faces[i]
		if !f.HasEmbedding {
			continue
		}
		if best == nil || f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}
