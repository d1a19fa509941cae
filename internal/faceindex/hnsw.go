package faceindex

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/facesearch/internal/database"
)

const searchMultiplier = database.HNSWSearchMultiplier

// graphSeed fixes level assignment so rebuilds of the same snapshot produce the same graph.
const graphSeed = 0x5eed

// graphSearcher is an HNSW graph over the first rows of a snapshot, keyed by row number.
// The graph is never mutated after construction, so concurrent searches are safe.
type graphSearcher struct {
	g    *hnsw.Graph[int]
	rows int
}

func newGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = database.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(database.HNSWMaxNeighbors)
	g.EfSearch = database.HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(graphSeed))
	return g
}

func buildGraph(ctx context.Context, s *snapshot) (*graphSearcher, error) {
	g := newGraph()
	n := s.rows()
	for r := range n {
		if r%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("building HNSW graph: %w", err)
			}
		}
		g.Add(hnsw.MakeNode(r, s.row(r)))
	}
	return &graphSearcher{g: g, rows: n}, nil
}

// poolSize returns how many candidates to request from the graph for k results.
// The pool is at least EfSearch and k*searchMultiplier. ok is false when the pool
// would cover every graph row, in which case an exact scan is cheaper and exact.
func (gs *graphSearcher) poolSize(k int) (pool int, ok bool) {
	if k >= gs.rows/searchMultiplier {
		return 0, false
	}
	pool = max(k*searchMultiplier, gs.g.EfSearch)
	if pool >= gs.rows {
		return 0, false
	}
	return pool, true
}

// search returns candidate row numbers; callers re-score them exactly.
func (gs *graphSearcher) search(q []float32, k int) []int {
	nodes := gs.g.Search(q, k)
	rows := make([]int, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, n.Key)
	}
	return rows
}

func (gs *graphSearcher) export() ([]byte, error) {
	var buf bytes.Buffer
	if err := gs.g.Export(&buf); err != nil {
		return nil, fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return buf.Bytes(), nil
}

func importGraph(data []byte, rows int) (*graphSearcher, error) {
	g := newGraph()
	if err := g.Import(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("importing HNSW graph: %w", err)
	}
	if g.Len() != rows {
		return nil, fmt.Errorf("HNSW graph has %d nodes, expected %d", g.Len(), rows)
	}
	return &graphSearcher{g: g, rows: rows}, nil
}
