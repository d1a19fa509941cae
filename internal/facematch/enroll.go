package facematch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/extractor"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/rs/zerolog/log"
)

// Enroller ingests images and manages enrolled faces.
type Enroller struct {
	embeddings database.EmbeddingWriter
	images     database.ImageStore
	extractor  extractor.Extractor
	index      VectorIndex
}

// NewEnroller creates an enroller.
func NewEnroller(store *database.Store, ext extractor.Extractor, index VectorIndex) *Enroller {
	return &Enroller{
		embeddings: store.Embeddings,
		images:     store.Images,
		extractor:  ext,
		index:      index,
	}
}

// IngestResult summarizes one ingested image.
type IngestResult struct {
	Image   database.ImageRecord `json:"image"`
	Stored  int                  `json:"stored"`  // embeddings written to the store
	Indexed int                  `json:"indexed"` // embeddings visible to search right away
}

// Ingest validates an image, extracts its faces and stores the image document and
// one embedding per face that has one. A face that cannot be stored is logged and skipped.
func (e *Enroller) Ingest(ctx context.Context, userID, fileName string, image []byte) (*IngestResult, error) {
	if _, err := extractor.ValidateImage(image); err != nil {
		return nil, err
	}
	faces, err := e.extractor.Extract(ctx, image)
	if err != nil {
		return nil, err
	}

	img := database.ImageRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  fileName,
		Faces:     make([]database.FaceMeta, len(faces)),
		CreatedAt: time.Now().UTC(),
	}
	for i, f := range faces {
		if f.FaceID == "" {
			faces[i].FaceID = uuid.NewString()
		}
		img.Faces[i] = database.FaceMeta{
			FaceID:       faces[i].FaceID,
			BBox:         f.BBox,
			Confidence:   f.Confidence,
			CropRef:      f.CropRef,
			HasEmbedding: len(f.Embedding) > 0,
			Attributes:   f.Attributes,
		}
	}
	if err := e.images.Save(ctx, img); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}

	res := &IngestResult{Image: img}
	dropped := false
	for i, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		rec := database.EmbeddingRecord{
			FaceID:    f.FaceID,
			Vector:    f.Embedding,
			ImageID:   img.ID,
			CreatedAt: img.CreatedAt,
		}
		if err := e.embeddings.Insert(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("image_id", img.ID).Str("face_id", f.FaceID).Msg("Ingest: skipping face")
			res.Image.Faces[i].HasEmbedding = false
			dropped = true
			continue
		}
		res.Stored++
		if e.addToIndex(rec) {
			res.Indexed++
		}
	}
	if dropped {
		// Keep the document in line with what the store actually holds.
		if err := e.images.Save(ctx, res.Image); err != nil {
			return nil, fmt.Errorf("save image: %w", err)
		}
	}
	return res, nil
}

// AddEmbedding stores a single embedding and makes it searchable. A missing face id
// is generated.
func (e *Enroller) AddEmbedding(ctx context.Context, rec database.EmbeddingRecord) (*database.EmbeddingRecord, error) {
	if len(rec.Vector) == 0 {
		return nil, faceerr.ErrNoEmbedding
	}
	if len(rec.Vector) != e.index.Dim() {
		return nil, faceerr.Dimension(len(rec.Vector), e.index.Dim())
	}
	if _, ok := database.Normalize(rec.Vector); !ok {
		return nil, fmt.Errorf("%w: embedding is zero or not finite", faceerr.ErrInvalidArgument)
	}
	if rec.FaceID == "" {
		rec.FaceID = uuid.NewString()
	}
	rec.Label = strings.TrimSpace(rec.Label)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := e.embeddings.Insert(ctx, rec); err != nil {
		return nil, err
	}
	e.addToIndex(rec)
	return &rec, nil
}

// addToIndex reports whether the record became searchable. Records the index rejects
// are picked up by the next rebuild.
func (e *Enroller) addToIndex(rec database.EmbeddingRecord) bool {
	err := e.index.Add(rec)
	if err == nil {
		return true
	}
	if errors.Is(err, faceerr.ErrIndexUnavailable) {
		log.Debug().Str("face_id", rec.FaceID).Msg("Index not loaded yet, face will be indexed on rebuild")
	} else {
		log.Warn().Err(err).Str("face_id", rec.FaceID).Msg("Failed to add face to index")
	}
	return false
}

// Enroll assigns a person label to a stored face of an image.
func (e *Enroller) Enroll(ctx context.Context, imageID, faceID, label string) (*database.EmbeddingRecord, error) {
	label = strings.TrimSpace(label)
	if imageID == "" || faceID == "" || label == "" {
		return nil, fmt.Errorf("%w: image id, face id and label are required", faceerr.ErrInvalidArgument)
	}
	img, err := e.images.Get(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", imageID, err)
	}
	if img == nil {
		return nil, fmt.Errorf("image %s: %w", imageID, faceerr.ErrNotFound)
	}
	face := img.Face(faceID)
	if face == nil {
		return nil, fmt.Errorf("face %s in image %s: %w", faceID, imageID, faceerr.ErrNotFound)
	}
	if !face.HasEmbedding {
		return nil, fmt.Errorf("face %s: %w", faceID, faceerr.ErrNoEmbedding)
	}
	rec, err := e.embeddings.Get(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("get embedding of face %s: %w", faceID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("face %s: %w", faceID, faceerr.ErrNoEmbedding)
	}
	if err := e.embeddings.UpdateLabel(ctx, faceID, label); err != nil {
		return nil, err
	}
	rec.Label = label
	return rec, nil
}

// DeleteFace removes a face embedding from the store. The index drops it on the next rebuild.
func (e *Enroller) DeleteFace(ctx context.Context, faceID string) error {
	rec, err := e.embeddings.Get(ctx, faceID)
	if err != nil {
		return fmt.Errorf("get embedding of face %s: %w", faceID, err)
	}
	if rec == nil {
		return fmt.Errorf("face %s: %w", faceID, faceerr.ErrNotFound)
	}
	if err := e.embeddings.Delete(ctx, faceID); err != nil {
		return fmt.Errorf("delete face %s: %w", faceID, err)
	}
	return nil
}

// DeleteImage removes an image document and its embeddings and returns how many
// embeddings were removed.
func (e *Enroller) DeleteImage(ctx context.Context, imageID string) (int, error) {
	img, err := e.images.Get(ctx, imageID)
	if err != nil {
		return 0, fmt.Errorf("get image %s: %w", imageID, err)
	}
	if img == nil {
		return 0, fmt.Errorf("image %s: %w", imageID, faceerr.ErrNotFound)
	}
	n, err := e.embeddings.DeleteByImage(ctx, imageID)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings of image %s: %w", imageID, err)
	}
	if err := e.images.Delete(ctx, imageID); err != nil {
		return n, fmt.Errorf("delete image %s: %w", imageID, err)
	}
	return n, nil
}

// Image returns a stored image document.
func (e *Enroller) Image(ctx context.Context, imageID string) (*database.ImageRecord, error) {
	img, err := e.images.Get(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", imageID, err)
	}
	if img == nil {
		return nil, fmt.Errorf("image %s: %w", imageID, faceerr.ErrNotFound)
	}
	return img, nil
}

// ListByLabel returns the embeddings enrolled under a label. Labels compare without
// case, diacritics or dashes.
func (e *Enroller) ListByLabel(ctx context.Context, label string) ([]database.EmbeddingRecord, error) {
	if strings.TrimSpace(label) == "" {
		return nil, fmt.Errorf("%w: label is required", faceerr.ErrInvalidArgument)
	}
	recs, err := e.embeddings.ListByLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("list faces by label: %w", err)
	}
	return recs, nil
}
