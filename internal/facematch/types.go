// Package facematch answers search, verification and enrollment requests on top of the
// face index, the embedding store and the extractor. It is shared between CLI and web handlers.
package facematch

import (
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/extractor"
	"github.com/kozaktomas/facesearch/internal/faceindex"
)

// MatchStatus is the outcome of a verification.
type MatchStatus string

const (
	StatusMatch    MatchStatus = "MATCH"
	StatusNotMatch MatchStatus = "NOT_MATCH"
)

// VectorIndex is the part of the face index the services need.
type VectorIndex interface {
	Search(query []float32, k int) ([]faceindex.Hit, error)
	Add(rec database.EmbeddingRecord) error
	Dim() int
}

// SearchHit is an enriched nearest-neighbour result.
type SearchHit struct {
	FaceID  string  `json:"face_id"`
	Score   float64 `json:"score"` // cosine similarity in [-1, 1]
	Label   string  `json:"label,omitempty"`
	ImageID string  `json:"image_id,omitempty"`
	CropRef string  `json:"crop_ref,omitempty"`
}

// VerificationResult is the decision for one pair of faces.
type VerificationResult struct {
	SimilarityScore     float64     `json:"similarity_score"` // 0 to 100
	ThresholdUsed       float64     `json:"threshold_used"`
	MatchStatus         MatchStatus `json:"match_status"`
	Distance            float64     `json:"distance"` // cosine distance, 0 to 2
	QueryConfidence     float64     `json:"query_confidence,omitempty"`
	CandidateConfidence float64     `json:"candidate_confidence,omitempty"`
}

// primaryFace returns the highest-confidence face with an embedding, or nil.
// Ties keep the earlier face.
func primaryFace(faces []extractor.Face) *extractor.Face {
	var best *extractor.Face
	for i := range faces {
		f := &faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if best == nil || f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}
