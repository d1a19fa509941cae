package faceindex

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/database/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Graphs no larger than the candidate pool are searched exactly.
func TestHNSWSelfMatch(t *testing.T) {
	store, recs := seedStore(t, 100)
	ix := newTestIndex(t, store, Options{Kind: KindHNSW})
	_, err := ix.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, ix.Status().GraphRows)

	for _, rec := range recs {
		hits, err := ix.Search(rec.Vector, 3)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, rec.FaceID, hits[0].FaceID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	}
}

func TestHNSWTailRowsAreSearched(t *testing.T) {
	store, _ := seedStore(t, 20)
	ix := newTestIndex(t, store, Options{Kind: KindHNSW})
	_, err := ix.Rebuild(context.Background())
	require.NoError(t, err)

	query := randomVector(rand.New(rand.NewPCG(11, 11)), testDim)
	require.NoError(t, ix.Add(database.EmbeddingRecord{FaceID: "tail", Vector: query}))
	assert.Equal(t, 20, ix.Status().GraphRows)

	hits, err := ix.Search(query, 2)
	require.NoError(t, err)
	assert.Equal(t, "tail", hits[0].FaceID)
	assert.Equal(t, 20, hits[0].Row)
}

func TestHNSWPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, recs := seedStore(t, 40)
	ix := newTestIndex(t, store, Options{Kind: KindHNSW, Dir: dir})
	_, err := ix.Rebuild(context.Background())
	require.NoError(t, err)
	require.NoError(t, ix.Persist())

	loaded := newTestIndex(t, mock.NewMockEmbeddingStore(), Options{Kind: KindHNSW, Dir: dir})
	require.NoError(t, loaded.Load(context.Background()))
	assert.True(t, loaded.Status().FromDisk)
	assert.Equal(t, 40, loaded.Status().GraphRows)

	for _, rec := range recs[:10] {
		hits, err := loaded.Search(rec.Vector, 1)
		require.NoError(t, err)
		assert.Equal(t, rec.FaceID, hits[0].FaceID)
	}
}

func TestFlatArtifactLoadsIntoHNSW(t *testing.T) {
	dir := t.TempDir()
	store, recs := seedStore(t, 15)
	flat := newTestIndex(t, store, Options{Dir: dir})
	_, err := flat.Rebuild(context.Background())
	require.NoError(t, err)
	require.NoError(t, flat.Persist())

	ix := newTestIndex(t, mock.NewMockEmbeddingStore(), Options{Kind: KindHNSW, Dir: dir})
	require.NoError(t, ix.Load(context.Background()))
	assert.Equal(t, 15, ix.Status().GraphRows)

	hits, err := ix.Search(recs[2].Vector, 1)
	require.NoError(t, err)
	assert.Equal(t, recs[2].FaceID, hits[0].FaceID)
}

func TestHNSWPoolSize(t *testing.T) {
	gs := &graphSearcher{g: newGraph(), rows: 1000}
	tests := []struct {
		k     int
		pool  int
		graph bool
	}{
		{1, database.HNSWEfSearch, true},
		{50, 50 * searchMultiplier, true},
		{300, 900, true},
		{333, 0, false},
		{1000, 0, false},
		{1 << 62, 0, false},
	}
	for _, tt := range tests {
		pool, ok := gs.poolSize(tt.k)
		assert.Equal(t, tt.graph, ok, "k=%d", tt.k)
		assert.Equal(t, tt.pool, pool, "k=%d", tt.k)
	}

	small := &graphSearcher{g: newGraph(), rows: database.HNSWEfSearch}
	_, ok := small.poolSize(1)
	assert.False(t, ok)
}

func TestHNSWHugeK(t *testing.T) {
	for _, n := range []int{50, 400} {
		store, recs := seedStore(t, n)
		ix := newTestIndex(t, store, Options{Kind: KindHNSW})
		_, err := ix.Rebuild(context.Background())
		require.NoError(t, err)

		hits, err := ix.Search(recs[0].Vector, 1<<62)
		require.NoError(t, err)
		assert.Len(t, hits, n)
		assert.Equal(t, recs[0].FaceID, hits[0].FaceID)
	}
}

// Above the pool size the graph is approximate: hits are exactly scored, recall is not total.
func TestHNSWLargeIndexRecall(t *testing.T) {
	const n = 1000
	store, recs := seedStore(t, n)
	ix := newTestIndex(t, store, Options{Kind: KindHNSW})
	_, err := ix.Rebuild(context.Background())
	require.NoError(t, err)

	found := 0
	for _, rec := range recs[:200] {
		hits, err := ix.Search(rec.Vector, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		q, _ := database.Normalize(rec.Vector)
		v, _ := database.Normalize(recs[hits[0].Row].Vector)
		assert.InDelta(t, database.Dot(q, v), hits[0].Score, 1e-5)
		if hits[0].FaceID == rec.FaceID {
			found++
		}
	}
	assert.GreaterOrEqual(t, found, 120, "self recall %d/200", found)
}

func TestHNSWRebuildIsDeterministic(t *testing.T) {
	const n = 600
	store, recs := seedStore(t, n)
	a := newTestIndex(t, store, Options{Kind: KindHNSW})
	_, err := a.Rebuild(context.Background())
	require.NoError(t, err)
	b := newTestIndex(t, store, Options{Kind: KindHNSW})
	_, err = b.Rebuild(context.Background())
	require.NoError(t, err)

	for _, rec := range recs[:50] {
		ha, err := a.Search(rec.Vector, 5)
		require.NoError(t, err)
		hb, err := b.Search(rec.Vector, 5)
		require.NoError(t, err)
		assert.Equal(t, ha, hb)
	}
}
