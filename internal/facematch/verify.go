package facematch

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/extractor"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/kozaktomas/facesearch/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// SimilarityScore maps a cosine distance to the 0 to 100 similarity scale.
// The mapping is linear: distance 0 scores 100, distance 1 and above score 0.
func SimilarityScore(distance float64) float64 {
	return max(0, min(100, (1-distance)*100))
}

// Verifier decides whether two faces belong to the same person.
type Verifier struct {
	dim        int
	thresholds *ThresholdPolicy
	extractor  extractor.Extractor
	embeddings database.EmbeddingReader
	images     database.ImageStore
	metrics    *metrics.Metrics
}

// NewVerifier creates a verifier for embeddings of dimension dim.
func NewVerifier(dim int, thresholds *ThresholdPolicy, ext extractor.Extractor, store *database.Store, m *metrics.Metrics) *Verifier {
	return &Verifier{
		dim:        dim,
		thresholds: thresholds,
		extractor:  ext,
		embeddings: store.Embeddings,
		images:     store.Images,
		metrics:    m,
	}
}

// Verify compares two embeddings against a threshold on the 0 to 100 scale.
func (v *Verifier) Verify(a, b []float32, threshold float64) (VerificationResult, error) {
	if len(a) == 0 || len(b) == 0 {
		return VerificationResult{}, fmt.Errorf("%w: both embeddings are required", faceerr.ErrInvalidArgument)
	}
	if len(a) != len(b) {
		return VerificationResult{}, fmt.Errorf("%w: embeddings of length %d and %d",
			faceerr.ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) != v.dim {
		return VerificationResult{}, faceerr.Dimension(len(a), v.dim)
	}
	if err := HardBounds.check(threshold); err != nil {
		return VerificationResult{}, err
	}
	for _, e := range [][]float32{a, b} {
		if !database.IsFinite(e) || database.Norm(e) == 0 {
			return VerificationResult{}, fmt.Errorf("%w: embedding is zero or not finite", faceerr.ErrInvalidArgument)
		}
	}

	d := database.CosineDistance(a, b)
	res := VerificationResult{
		SimilarityScore: SimilarityScore(d),
		ThresholdUsed:   threshold,
		MatchStatus:     StatusNotMatch,
		Distance:        d,
	}
	if res.SimilarityScore >= threshold {
		res.MatchStatus = StatusMatch
	}
	v.metrics.Verified(string(res.MatchStatus))
	return res, nil
}

// VerifyEmbeddings compares two embeddings, resolving the threshold for the user
// when threshold is nil.
func (v *Verifier) VerifyEmbeddings(ctx context.Context, userID string, a, b []float32, threshold *float64) (VerificationResult, error) {
	t, err := v.thresholds.Resolve(ctx, userID, threshold)
	if err != nil {
		return VerificationResult{}, err
	}
	return v.Verify(a, b, t)
}

// VerifyImages extracts the most confident face of each image and compares them.
func (v *Verifier) VerifyImages(ctx context.Context, userID string, query, candidate []byte, threshold *float64) (VerificationResult, error) {
	t, err := v.thresholds.Resolve(ctx, userID, threshold)
	if err != nil {
		return VerificationResult{}, err
	}
	for _, img := range [][]byte{query, candidate} {
		if _, err := extractor.ValidateImage(img); err != nil {
			return VerificationResult{}, err
		}
	}

	var faces [2]*extractor.Face
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range [][]byte{query, candidate} {
		g.Go(func() error {
			found, err := v.extractor.Extract(gctx, img)
			if err != nil {
				return err
			}
			faces[i] = primaryFace(found)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return VerificationResult{}, err
	}
	if faces[0] == nil || faces[1] == nil {
		return VerificationResult{}, faceerr.ErrNoEmbedding
	}

	res, err := v.Verify(faces[0].Embedding, faces[1].Embedding, t)
	if err != nil {
		return VerificationResult{}, err
	}
	res.QueryConfidence = faces[0].Confidence
	res.CandidateConfidence = faces[1].Confidence
	return res, nil
}

// VerifyImageIDs compares the primary faces of two stored images.
func (v *Verifier) VerifyImageIDs(ctx context.Context, userID, queryID, candidateID string, threshold *float64) (VerificationResult, error) {
	t, err := v.thresholds.Resolve(ctx, userID, threshold)
	if err != nil {
		return VerificationResult{}, err
	}
	query, queryConf, err := v.storedFace(ctx, queryID)
	if err != nil {
		return VerificationResult{}, err
	}
	candidate, candidateConf, err := v.storedFace(ctx, candidateID)
	if err != nil {
		return VerificationResult{}, err
	}

	res, err := v.Verify(query, candidate, t)
	if err != nil {
		return VerificationResult{}, err
	}
	res.QueryConfidence = queryConf
	res.CandidateConfidence = candidateConf
	return res, nil
}

// storedFace returns the embedding and confidence of an image's primary face.
func (v *Verifier) storedFace(ctx context.Context, imageID string) ([]float32, float64, error) {
	if imageID == "" {
		return nil, 0, fmt.Errorf("%w: image id is required", faceerr.ErrInvalidArgument)
	}
	img, err := v.images.Get(ctx, imageID)
	if err != nil {
		return nil, 0, fmt.Errorf("get image %s: %w", imageID, err)
	}
	if img == nil {
		return nil, 0, fmt.Errorf("image %s: %w", imageID, faceerr.ErrNotFound)
	}
	face := img.PrimaryFace()
	if face == nil {
		return nil, 0, fmt.Errorf("image %s: %w", imageID, faceerr.ErrNoEmbedding)
	}
	rec, err := v.embeddings.Get(ctx, face.FaceID)
	if err != nil {
		return nil, 0, fmt.Errorf("get embedding of face %s: %w", face.FaceID, err)
	}
	if rec == nil {
		return nil, 0, fmt.Errorf("face %s: %w", face.FaceID, faceerr.ErrNoEmbedding)
	}
	return rec.Vector, face.Confidence, nil
}
