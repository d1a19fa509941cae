package facematch

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facesearch/internal/config"
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/extractor"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// enrichConcurrency bounds the store lookups running for one search.
const enrichConcurrency = 8

// SearchService answers nearest-neighbour queries and enriches the hits from the stores.
type SearchService struct {
	index      VectorIndex
	embeddings database.EmbeddingReader
	images     database.ImageStore
	extractor  extractor.Extractor
	cfg        config.SearchConfig
}

// NewSearchService creates a search service.
func NewSearchService(index VectorIndex, store *database.Store, ext extractor.Extractor, cfg config.SearchConfig) *SearchService {
	return &SearchService{
		index:      index,
		embeddings: store.Embeddings,
		images:     store.Images,
		extractor:  ext,
		cfg:        cfg,
	}
}

// topK applies the default and the cap to a requested result count. Zero means default.
func (s *SearchService) topK(k int) (int, error) {
	if k < 0 {
		return 0, fmt.Errorf("%w: top_k must be positive, got %d", faceerr.ErrInvalidArgument, k)
	}
	if k == 0 {
		k = s.cfg.DefaultTopK
	}
	if s.cfg.MaxTopK > 0 {
		k = min(k, s.cfg.MaxTopK)
	}
	return k, nil
}

// Search returns up to topK enrolled faces most similar to the query embedding, best first.
// Hits whose embedding document is gone are dropped.
func (s *SearchService) Search(ctx context.Context, query []float32, topK int) ([]SearchHit, error) {
	k, err := s.topK(topK)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(query, k)
	if err != nil {
		return nil, err
	}

	enriched := make([]*SearchHit, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, h := range hits {
		g.Go(func() error {
			hit, err := s.enrich(gctx, h.FaceID, h.Score)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Str("face_id", h.FaceID).Msg("Search: skipping hit")
				return nil
			}
			enriched[i] = hit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]SearchHit, 0, len(hits))
	for _, h := range enriched {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out, nil
}

// enrich joins a hit with its embedding and image documents. A missing embedding
// document yields nil, a missing image leaves the crop reference empty.
func (s *SearchService) enrich(ctx context.Context, faceID string, score float64) (*SearchHit, error) {
	rec, err := s.embeddings.Get(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	hit := &SearchHit{
		FaceID:  faceID,
		Score:   score,
		Label:   rec.Label,
		ImageID: rec.ImageID,
	}
	if rec.ImageID == "" {
		return hit, nil
	}
	img, err := s.images.Get(ctx, rec.ImageID)
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", rec.ImageID, err)
	}
	if img != nil {
		if f := img.Face(faceID); f != nil {
			hit.CropRef = f.CropRef
		}
	}
	return hit, nil
}

// SearchImage extracts the most confident face of an image and searches with its embedding.
func (s *SearchService) SearchImage(ctx context.Context, image []byte, topK int) ([]SearchHit, error) {
	if _, err := extractor.ValidateImage(image); err != nil {
		return nil, err
	}
	faces, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return nil, err
	}
	query := primaryFace(faces)
	if query == nil {
		return nil, faceerr.ErrNoEmbedding
	}
	return s.Search(ctx, query.Embedding, topK)
}
