package facematch

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/database/mock"
	"github.com/kozaktomas/facesearch/internal/extractor"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/kozaktomas/facesearch/internal/faceindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ingestFaces() []extractor.Face {
	return []extractor.Face{
		{FaceID: "given", BBox: [4]float64{1, 2, 30, 40}, Confidence: 0.93, Embedding: []float32{1, 0, 0, 0}, CropRef: "crops/given.jpg"},
		{BBox: [4]float64{100, 2, 30, 40}, Confidence: 0.81, Embedding: []float32{0, 1, 0, 0}},
		{BBox: [4]float64{200, 2, 10, 10}, Confidence: 0.42},
	}
}

func TestIngest(t *testing.T) {
	env := newEnv(t)
	img := testImage(t, 20)
	env.ext.faces[string(img)] = ingestFaces()
	ctx := context.Background()

	res, err := env.enroller().Ingest(ctx, "alice", "party.jpg", img)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 2, res.Indexed)

	doc, err := env.images.Get(ctx, res.Image.ID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "alice", doc.UserID)
	assert.Equal(t, "party.jpg", doc.FileName)
	require.Len(t, doc.Faces, 3)
	assert.Equal(t, "given", doc.Faces[0].FaceID)
	assert.Equal(t, "crops/given.jpg", doc.Faces[0].CropRef)
	assert.NotEmpty(t, doc.Faces[1].FaceID)
	assert.NotEmpty(t, doc.Faces[2].FaceID)
	assert.Equal(t, []bool{true, true, false},
		[]bool{doc.Faces[0].HasEmbedding, doc.Faces[1].HasEmbedding, doc.Faces[2].HasEmbedding})

	n, err := env.emb.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, env.index.Len())

	stored, err := env.emb.Get(ctx, doc.Faces[1].FaceID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Image.ID, stored.ImageID)

	hits, err := env.search(testSearchConfig).Search(ctx, []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, doc.Faces[1].FaceID, hits[0].FaceID)
}

func TestIngest_KeepsFaceAttributes(t *testing.T) {
	env := newEnv(t)
	img := testImage(t, 21)
	age, quality := 42.0, 0.8
	faces := ingestFaces()
	faces[0].Attributes = &database.FaceAttributes{Age: &age, Gender: "Man", Quality: &quality}
	env.ext.faces[string(img)] = faces
	ctx := context.Background()

	res, err := env.enroller().Ingest(ctx, "alice", "a.jpg", img)
	require.NoError(t, err)

	doc, err := env.images.Get(ctx, res.Image.ID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.NotNil(t, doc.Faces[0].Attributes)
	assert.Equal(t, 42.0, *doc.Faces[0].Attributes.Age)
	assert.Equal(t, "Man", doc.Faces[0].Attributes.Gender)
	assert.Equal(t, 0.8, *doc.Faces[0].Attributes.Quality)
	assert.Nil(t, doc.Faces[1].Attributes)
}

func TestIngest_StoreFailureSkipsFaces(t *testing.T) {
	env := newEnv(t)
	env.emb.InsertError = errors.New("disk full")
	img := testImage(t, 20)
	env.ext.faces[string(img)] = ingestFaces()

	res, err := env.enroller().Ingest(context.Background(), "alice", "party.jpg", img)
	require.NoError(t, err)
	assert.Zero(t, res.Stored)
	assert.Zero(t, env.index.Len())

	doc, err := env.images.Get(context.Background(), res.Image.ID)
	require.NoError(t, err)
	for _, f := range doc.Faces {
		assert.False(t, f.HasEmbedding, "face %s", f.FaceID)
	}
}

func TestIngest_UnloadedIndex(t *testing.T) {
	store, emb, _, _ := mock.NewStore()
	ix, err := faceindex.New(emb, faceindex.Options{Dim: testDim})
	require.NoError(t, err)
	ext := newFakeExtractor()
	img := testImage(t, 20)
	ext.faces[string(img)] = ingestFaces()

	res, err := NewEnroller(store, ext, ix).Ingest(context.Background(), "alice", "party.jpg", img)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.Zero(t, res.Indexed)

	_, err = ix.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())
}

func TestIngest_Errors(t *testing.T) {
	env := newEnv(t)
	_, err := env.enroller().Ingest(context.Background(), "alice", "x.txt", []byte("plain text"))
	require.ErrorIs(t, err, faceerr.ErrInvalidArgument)
	assert.Zero(t, env.ext.calls.Load())

	env.ext.err = &extractor.ExtractionError{StatusCode: 503, Err: errors.New("busy")}
	_, err = env.enroller().Ingest(context.Background(), "alice", "a.png", testImage(t, 20))
	var ee *extractor.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Zero(t, env.images.Count())
}

func TestIngest_NoFaces(t *testing.T) {
	env := newEnv(t)
	res, err := env.enroller().Ingest(context.Background(), "alice", "empty.png", testImage(t, 21))
	require.NoError(t, err)
	assert.Empty(t, res.Image.Faces)
	assert.Equal(t, 1, env.images.Count())
}

func TestAddEmbedding(t *testing.T) {
	env := newEnv(t)
	en := env.enroller()
	ctx := context.Background()

	got, err := en.AddEmbedding(ctx, database.EmbeddingRecord{Vector: []float32{0, 0, 3, 0}, Label: "  Carla "})
	require.NoError(t, err)
	assert.NotEmpty(t, got.FaceID)
	assert.Equal(t, "Carla", got.Label)
	assert.False(t, got.CreatedAt.IsZero())

	hits, err := env.search(testSearchConfig).Search(ctx, []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, got.FaceID, hits[0].FaceID)
	assert.Equal(t, "Carla", hits[0].Label)

	_, err = en.AddEmbedding(ctx, database.EmbeddingRecord{FaceID: got.FaceID, Vector: []float32{1, 0, 0, 0}})
	require.ErrorIs(t, err, faceerr.ErrAlreadyExists)
	assert.Equal(t, 1, env.index.Len())
}

func TestAddEmbedding_Errors(t *testing.T) {
	tests := []struct {
		name    string
		vector  []float32
		wantErr error
	}{
		{"empty", nil, faceerr.ErrNoEmbedding},
		{"wrong dimension", []float32{1, 0, 0}, faceerr.ErrDimensionMismatch},
		{"zero", []float32{0, 0, 0, 0}, faceerr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			_, err := env.enroller().AddEmbedding(context.Background(), database.EmbeddingRecord{FaceID: "f", Vector: tt.vector})
			require.ErrorIs(t, err, tt.wantErr)
			n, _ := env.emb.Count(context.Background())
			assert.Zero(t, n)
		})
	}
}

func enrollEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newEnv(t, database.EmbeddingRecord{FaceID: "f1", Vector: []float32{1, 0, 0, 0}, ImageID: "img"})
	seedImage(t, env, "img",
		database.FaceMeta{FaceID: "f1", Confidence: 0.9, HasEmbedding: true},
		database.FaceMeta{FaceID: "f2", Confidence: 0.5},
	)
	return env
}

func TestEnroll(t *testing.T) {
	env := enrollEnv(t)
	ctx := context.Background()

	got, err := env.enroller().Enroll(ctx, "img", "f1", " Žofie ")
	require.NoError(t, err)
	assert.Equal(t, "Žofie", got.Label)

	stored, err := env.emb.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "Žofie", stored.Label)

	recs, err := env.enroller().ListByLabel(ctx, "zofie")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "f1", recs[0].FaceID)
}

func TestEnroll_Errors(t *testing.T) {
	tests := []struct {
		name    string
		imageID string
		faceID  string
		label   string
		wantErr error
	}{
		{"missing image", "nope", "f1", "Anna", faceerr.ErrNotFound},
		{"missing face", "img", "f9", "Anna", faceerr.ErrNotFound},
		{"face without embedding", "img", "f2", "Anna", faceerr.ErrNoEmbedding},
		{"blank label", "img", "f1", "   ", faceerr.ErrInvalidArgument},
		{"blank image", "", "f1", "Anna", faceerr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := enrollEnv(t)
			_, err := env.enroller().Enroll(context.Background(), tt.imageID, tt.faceID, tt.label)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEnroll_EmbeddingRecordGone(t *testing.T) {
	env := enrollEnv(t)
	require.NoError(t, env.emb.Delete(context.Background(), "f1"))
	_, err := env.enroller().Enroll(context.Background(), "img", "f1", "Anna")
	require.ErrorIs(t, err, faceerr.ErrNoEmbedding)
}

func TestDeleteFace(t *testing.T) {
	env := enrollEnv(t)
	ctx := context.Background()
	en := env.enroller()

	require.NoError(t, en.DeleteFace(ctx, "f1"))
	require.ErrorIs(t, en.DeleteFace(ctx, "f1"), faceerr.ErrNotFound)

	// The stale row is still in the index until the next rebuild but no longer surfaces.
	assert.Equal(t, 1, env.index.Len())
	hits, err := env.search(testSearchConfig).Search(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = env.index.Rebuild(ctx)
	require.NoError(t, err)
	assert.Zero(t, env.index.Len())
}

func TestDeleteImage(t *testing.T) {
	env := enrollEnv(t)
	env.emb.AddRecord(database.EmbeddingRecord{FaceID: "other", Vector: []float32{0, 1, 0, 0}, ImageID: "img-2"})
	ctx := context.Background()
	en := env.enroller()

	n, err := en.DeleteImage(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = en.Image(ctx, "img")
	require.ErrorIs(t, err, faceerr.ErrNotFound)
	left, _ := env.emb.Count(ctx)
	assert.Equal(t, 1, left)

	_, err = en.DeleteImage(ctx, "img")
	require.ErrorIs(t, err, faceerr.ErrNotFound)
}

func TestListByLabel(t *testing.T) {
	env := newEnv(t,
		database.EmbeddingRecord{FaceID: "a", Vector: []float32{1, 0, 0, 0}, Label: "José-María"},
		database.EmbeddingRecord{FaceID: "b", Vector: []float32{0, 1, 0, 0}, Label: "jose maria"},
		database.EmbeddingRecord{FaceID: "c", Vector: []float32{0, 0, 1, 0}, Label: "Josefina"},
	)
	recs, err := env.enroller().ListByLabel(context.Background(), "JOSE_MARIA")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].FaceID)
	assert.Equal(t, "b", recs[1].FaceID)

	_, err = env.enroller().ListByLabel(context.Background(), " ")
	require.ErrorIs(t, err, faceerr.ErrInvalidArgument)
}
