// Package faceindex keeps an in-memory nearest-neighbour index over face embeddings.
//
// The index is an immutable snapshot behind an atomic pointer. Searches load the pointer
// and never block; rebuilds, loads and incremental inserts build a new snapshot under a
// single writer lock and publish it with one atomic store.
package faceindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/kozaktomas/facesearch/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Kind selects the searcher built over the snapshot rows.
type Kind string

const (
	// KindFlat scans every row exactly.
	KindFlat Kind = "flat"
	// KindHNSW walks an HNSW graph and re-scores the candidates exactly.
	KindHNSW Kind = "hnsw"
)

// Source lists the embeddings an index is built from.
type Source interface {
	List(ctx context.Context) ([]database.EmbeddingRecord, error)
}

// Options configures an Index.
type Options struct {
	Dim            int
	Kind           Kind
	Dir            string        // Directory for persisted artifacts, empty disables Persist and Load
	RebuildTimeout time.Duration // Upper bound on loading the store during Rebuild, 0 means no bound
	Metrics        *metrics.Metrics
}

// Hit is one search result.
type Hit struct {
	Row    int
	FaceID string
	Score  float64 // inner product of normalized vectors, in [-1, 1]
}

// Status describes the published snapshot and the last rebuild.
type Status struct {
	Loaded              bool          `json:"loaded"`
	Rows                int           `json:"rows"`
	Dim                 int           `json:"dim"`
	Kind                Kind          `json:"kind"`
	GraphRows           int           `json:"graph_rows"`
	Generation          string        `json:"generation,omitempty"`
	BuiltAt             time.Time     `json:"built_at,omitzero"`
	FromDisk            bool          `json:"from_disk"`
	Rebuilding          bool          `json:"rebuilding"`
	LastRebuildAt       time.Time     `json:"last_rebuild_at,omitzero"`
	LastRebuildDuration time.Duration `json:"last_rebuild_duration"`
	LastRebuildSkipped  int           `json:"last_rebuild_skipped"`
	LastRebuildError    string        `json:"last_rebuild_error,omitempty"`
}

type journalEntry struct {
	id  string
	vec []float32
}

// Index is a nearest-neighbour index over L2-normalized face embeddings.
type Index struct {
	opts   Options
	source Source
	cur    atomic.Pointer[snapshot]
	group  singleflight.Group

	// mu serialises writers: Add, the swap at the end of Rebuild, and Load.
	mu         sync.Mutex
	present    map[string]struct{} // ids in the current snapshot
	rebuilding bool
	journal    []journalEntry // adds made while a rebuild is in flight

	statusMu sync.RWMutex
	last     rebuildResult
}

type rebuildResult struct {
	at       time.Time
	duration time.Duration
	skipped  int
	err      error
}

// New creates an unloaded index. Search fails with faceerr.ErrIndexUnavailable
// until Rebuild or Load succeeds.
func New(source Source, opts Options) (*Index, error) {
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", faceerr.ErrInvalidArgument, opts.Dim)
	}
	switch opts.Kind {
	case "":
		opts.Kind = KindFlat
	case KindFlat, KindHNSW:
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q", faceerr.ErrInvalidArgument, opts.Kind)
	}
	return &Index{
		opts:    opts,
		source:  source,
		present: make(map[string]struct{}),
	}, nil
}

// Dim returns the configured embedding dimension.
func (ix *Index) Dim() int {
	return ix.opts.Dim
}

// Len returns the number of rows in the published snapshot.
func (ix *Index) Len() int {
	s := ix.cur.Load()
	if s == nil {
		return 0
	}
	return s.rows()
}

// Search returns up to k hits ordered by descending score. Ties keep row order.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	start := time.Now()
	hits, err := ix.search(query, k)
	ix.opts.Metrics.SearchFinished(time.Since(start), err)
	return hits, err
}

func (ix *Index) search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", faceerr.ErrInvalidArgument, k)
	}
	if len(query) != ix.opts.Dim {
		return nil, faceerr.Dimension(len(query), ix.opts.Dim)
	}
	q, ok := database.Normalize(query)
	if !ok {
		return nil, fmt.Errorf("%w: query vector has zero norm or non-finite values", faceerr.ErrInvalidArgument)
	}
	s := ix.cur.Load()
	if s == nil {
		return nil, faceerr.ErrIndexUnavailable
	}

	found := s.search(q, k)
	hits := make([]Hit, 0, len(found))
	for _, f := range found {
		if f.row < 0 || f.row >= len(s.ids) {
			continue
		}
		hits = append(hits, Hit{Row: f.row, FaceID: s.ids[f.row], Score: f.score})
	}
	return hits, nil
}

// Add inserts one embedding into the published snapshot; it is visible to the next search.
// Ids already in the snapshot are ignored. Adds made during a rebuild are replayed onto
// the rebuilt snapshot.
func (ix *Index) Add(rec database.EmbeddingRecord) error {
	if rec.FaceID == "" {
		return fmt.Errorf("%w: empty face id", faceerr.ErrInvalidArgument)
	}
	if len(rec.Vector) != ix.opts.Dim {
		return faceerr.Dimension(len(rec.Vector), ix.opts.Dim)
	}
	vec, ok := database.Normalize(rec.Vector)
	if !ok {
		return fmt.Errorf("%w: vector of face %s has zero norm or non-finite values", faceerr.ErrInvalidArgument, rec.FaceID)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.rebuilding {
		ix.journal = append(ix.journal, journalEntry{id: rec.FaceID, vec: vec})
	}
	cur := ix.cur.Load()
	if cur == nil {
		if ix.rebuilding {
			return nil
		}
		return faceerr.ErrIndexUnavailable
	}
	if _, ok := ix.present[rec.FaceID]; ok {
		return nil
	}
	next, err := cur.withRow(rec.FaceID, vec)
	if err != nil {
		return err
	}
	ix.present[rec.FaceID] = struct{}{}
	ix.cur.Store(next)
	ix.opts.Metrics.IndexAdded()
	ix.opts.Metrics.SetIndexRows(next.rows())
	return nil
}

// publish swaps in a freshly built or loaded snapshot, replaying journaled adds.
// Callers hold ix.mu.
func (ix *Index) publish(s *snapshot) error {
	present := make(map[string]struct{}, s.rows()+len(ix.journal))
	for _, id := range s.ids {
		present[id] = struct{}{}
	}
	for _, e := range ix.journal {
		if _, ok := present[e.id]; ok {
			continue
		}
		next, err := s.withRow(e.id, e.vec)
		if err != nil {
			return err
		}
		s = next
		present[e.id] = struct{}{}
	}
	ix.present = present
	ix.cur.Store(s)
	ix.opts.Metrics.SetIndexRows(s.rows())
	return nil
}

// Status reports the published snapshot and the last rebuild outcome.
func (ix *Index) Status() Status {
	st := Status{Dim: ix.opts.Dim, Kind: ix.opts.Kind}
	if s := ix.cur.Load(); s != nil {
		st.Loaded = true
		st.Rows = s.rows()
		st.Generation = s.generation
		st.BuiltAt = s.builtAt
		st.FromDisk = s.fromDisk
		if s.graph != nil {
			st.GraphRows = s.graph.rows
		}
	}

	ix.mu.Lock()
	st.Rebuilding = ix.rebuilding
	ix.mu.Unlock()

	ix.statusMu.RLock()
	defer ix.statusMu.RUnlock()
	st.LastRebuildAt = ix.last.at
	st.LastRebuildDuration = ix.last.duration
	st.LastRebuildSkipped = ix.last.skipped
	if ix.last.err != nil {
		st.LastRebuildError = ix.last.err.Error()
	}
	return st
}
