package faceindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facesearch/internal/database"
)

// snapshot is an immutable view of the index. Row i of data belongs to ids[i].
// Add publishes a new snapshot whose slices may share backing arrays with the previous
// one; readers never look past their own length, so the shared prefix is never written.
type snapshot struct {
	dim        int
	ids        []string
	data       []float32 // row-major, L2-normalized, len(ids)*dim values
	graph      *graphSearcher
	generation string
	builtAt    time.Time
	fromDisk   bool
}

func (s *snapshot) rows() int {
	return len(s.ids)
}

func (s *snapshot) row(i int) []float32 {
	return s.data[i*s.dim : (i+1)*s.dim : (i+1)*s.dim]
}

// check enforces the positional invariant between ids and data.
func (s *snapshot) check() error {
	if s.dim <= 0 {
		return fmt.Errorf("invalid dimension %d", s.dim)
	}
	if len(s.data) != len(s.ids)*s.dim {
		return fmt.Errorf("index corrupted: %d values for %d ids of dimension %d", len(s.data), len(s.ids), s.dim)
	}
	if s.graph != nil && s.graph.rows > len(s.ids) {
		return fmt.Errorf("index corrupted: graph covers %d rows, index has %d", s.graph.rows, len(s.ids))
	}
	return nil
}

// withRow returns a new snapshot with one normalized row appended.
func (s *snapshot) withRow(id string, vec []float32) (*snapshot, error) {
	ns := *s
	ns.ids = append(s.ids, id)
	ns.data = append(s.data, vec...)
	ns.generation = uuid.NewString()
	ns.fromDisk = false
	if err := ns.check(); err != nil {
		return nil, err
	}
	return &ns, nil
}

// buildSnapshot stacks every record of the expected dimension and normalizes it.
// Records with a wrong dimension, duplicate ids or non-finite/zero vectors are skipped.
func buildSnapshot(ctx context.Context, recs []database.EmbeddingRecord, dim int, kind Kind) (*snapshot, int, error) {
	s := &snapshot{
		dim:        dim,
		ids:        make([]string, 0, len(recs)),
		data:       make([]float32, 0, len(recs)*dim),
		generation: uuid.NewString(),
		builtAt:    time.Now(),
	}
	seen := make(map[string]struct{}, len(recs))
	skipped := 0
	for i := range recs {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		rec := &recs[i]
		if len(rec.Vector) != dim {
			skipped++
			continue
		}
		if _, dup := seen[rec.FaceID]; dup {
			skipped++
			continue
		}
		vec, ok := database.Normalize(rec.Vector)
		if !ok {
			skipped++
			continue
		}
		seen[rec.FaceID] = struct{}{}
		s.ids = append(s.ids, rec.FaceID)
		s.data = append(s.data, vec...)
	}

	if kind == KindHNSW && s.rows() > 0 {
		g, err := buildGraph(ctx, s)
		if err != nil {
			return nil, 0, err
		}
		s.graph = g
	}
	if err := s.check(); err != nil {
		return nil, 0, err
	}
	return s, skipped, nil
}

type scored struct {
	row   int
	score float64
}

// topK keeps the k best scores seen so far, ordered by descending score.
// Among equal scores the first pushed wins, so pushing rows in ascending order
// yields a stable ordering by row.
type topK struct {
	k    int
	hits []scored
}

func newTopK(k int) *topK {
	return &topK{k: k, hits: make([]scored, 0, min(k, 64))}
}

func (t *topK) push(row int, score float64) {
	n := len(t.hits)
	if n == t.k && score <= t.hits[n-1].score {
		return
	}
	i := sort.Search(n, func(i int) bool { return t.hits[i].score < score })
	if n < t.k {
		t.hits = append(t.hits, scored{})
	}
	copy(t.hits[i+1:], t.hits[i:len(t.hits)-1])
	t.hits[i] = scored{row: row, score: score}
}

// searchRows scores rows [from, to) exactly.
func (s *snapshot) searchRows(q []float32, from, to int, top *topK) {
	for r := from; r < to; r++ {
		top.push(r, database.Dot(q, s.row(r)))
	}
}

// search returns up to k rows by descending inner product with the normalized query.
// Flat snapshots and graphs no larger than the candidate pool are scanned exactly;
// larger graphs return the exact ranking of an approximate candidate pool.
func (s *snapshot) search(q []float32, k int) []scored {
	n := s.rows()
	if n == 0 {
		return nil
	}
	top := newTopK(min(k, n))
	if s.graph == nil {
		s.searchRows(q, 0, n, top)
		return top.hits
	}

	pool, ok := s.graph.poolSize(min(k, n))
	if !ok {
		s.searchRows(q, 0, n, top)
		return top.hits
	}
	candidates := s.graph.search(q, pool)
	sort.Ints(candidates)
	for _, r := range candidates {
		if r < 0 || r >= s.graph.rows {
			continue
		}
		top.push(r, database.Dot(q, s.row(r)))
	}
	// Rows appended after the graph was built are scanned exactly.
	s.searchRows(q, s.graph.rows, n, top)
	return top.hits
}
