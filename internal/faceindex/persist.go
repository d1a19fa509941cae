package faceindex

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/rs/zerolog/log"
)

// Artifact file names inside Options.Dir.
const (
	VectorsFile = "face_index.vec"
	IDsFile     = "face_index.ids.json"
)

const artifactVersion = 1

// vectorsArtifact is the gob-encoded matrix file.
type vectorsArtifact struct {
	Version    int
	Generation string
	Dim        int
	Rows       int
	Data       []float32
	BuiltAt    time.Time
	GraphRows  int
	Graph      []byte // exported HNSW graph, empty for flat indexes
}

// idsArtifact is the JSON id map file.
type idsArtifact struct {
	Version    int      `json:"version"`
	Generation string   `json:"generation"`
	Count      int      `json:"count"`
	IDs        []string `json:"ids"`
}

// Persist writes the published snapshot as two artifacts stamped with the same
// generation. Each file is replaced atomically; a crash between the two writes leaves
// mismatched stamps, which Load treats as missing.
func (ix *Index) Persist() error {
	if ix.opts.Dir == "" {
		return nil
	}
	s := ix.cur.Load()
	if s == nil {
		return faceerr.ErrIndexUnavailable
	}
	if err := os.MkdirAll(ix.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	va := vectorsArtifact{
		Version:    artifactVersion,
		Generation: s.generation,
		Dim:        s.dim,
		Rows:       s.rows(),
		Data:       s.data,
		BuiltAt:    s.builtAt,
	}
	if s.graph != nil {
		graph, err := s.graph.export()
		if err != nil {
			return err
		}
		va.Graph = graph
		va.GraphRows = s.graph.rows
	}
	var vbuf bytes.Buffer
	if err := gob.NewEncoder(&vbuf).Encode(&va); err != nil {
		return fmt.Errorf("encoding vectors artifact: %w", err)
	}

	ia := idsArtifact{Version: artifactVersion, Generation: s.generation, Count: s.rows(), IDs: s.ids}
	ibuf, err := json.Marshal(&ia)
	if err != nil {
		return fmt.Errorf("encoding id artifact: %w", err)
	}

	if err := renameio.WriteFile(filepath.Join(ix.opts.Dir, VectorsFile), vbuf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing vectors artifact: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(ix.opts.Dir, IDsFile), ibuf, 0o644); err != nil {
		return fmt.Errorf("writing id artifact: %w", err)
	}
	log.Info().Msgf("Face index: persisted %d vectors to %s (generation %s)", s.rows(), ix.opts.Dir, s.generation)
	return nil
}

// Load publishes the persisted snapshot if both artifacts exist and agree; otherwise it
// falls back to Rebuild. When that fails too and nothing was published before, the
// error wraps faceerr.ErrIndexUnavailable.
func (ix *Index) Load(ctx context.Context) error {
	s, err := ix.readArtifacts()
	if err == nil {
		ix.mu.Lock()
		err = ix.publish(s)
		ix.mu.Unlock()
		if err == nil {
			log.Info().Msgf("Face index: loaded %d vectors from %s", s.rows(), ix.opts.Dir)
			return nil
		}
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Face index: persisted artifacts unusable, rebuilding from store")
	}

	if _, rerr := ix.Rebuild(ctx); rerr != nil {
		if ix.cur.Load() == nil {
			return fmt.Errorf("%w: %w", faceerr.ErrIndexUnavailable, rerr)
		}
		return rerr
	}
	return nil
}

func (ix *Index) readArtifacts() (*snapshot, error) {
	if ix.opts.Dir == "" {
		return nil, fmt.Errorf("no index directory configured: %w", os.ErrNotExist)
	}
	vf, err := os.Open(filepath.Join(ix.opts.Dir, VectorsFile))
	if err != nil {
		return nil, fmt.Errorf("opening vectors artifact: %w", err)
	}
	defer vf.Close()
	ib, err := os.ReadFile(filepath.Join(ix.opts.Dir, IDsFile))
	if err != nil {
		return nil, fmt.Errorf("reading id artifact: %w", err)
	}

	var va vectorsArtifact
	if err := gob.NewDecoder(vf).Decode(&va); err != nil {
		return nil, fmt.Errorf("decoding vectors artifact: %w", err)
	}
	var ia idsArtifact
	if err := json.Unmarshal(ib, &ia); err != nil {
		return nil, fmt.Errorf("decoding id artifact: %w", err)
	}

	switch {
	case va.Version != artifactVersion || ia.Version != artifactVersion:
		return nil, fmt.Errorf("unsupported artifact version %d/%d", va.Version, ia.Version)
	case va.Generation == "" || va.Generation != ia.Generation:
		return nil, fmt.Errorf("artifact generations differ: %q vs %q", va.Generation, ia.Generation)
	case va.Dim != ix.opts.Dim:
		return nil, fmt.Errorf("persisted dimension %d, configured %d", va.Dim, ix.opts.Dim)
	case va.Rows != ia.Count || len(ia.IDs) != ia.Count:
		return nil, fmt.Errorf("row counts differ: %d vectors, %d ids", va.Rows, len(ia.IDs))
	}

	s := &snapshot{
		dim:        va.Dim,
		ids:        ia.IDs,
		data:       va.Data,
		generation: va.Generation,
		builtAt:    va.BuiltAt,
		fromDisk:   true,
	}
	if s.ids == nil {
		s.ids = []string{}
	}
	if err := s.check(); err != nil {
		return nil, err
	}

	if ix.opts.Kind == KindHNSW && s.rows() > 0 {
		g, err := ix.loadGraph(s, &va)
		if err != nil {
			return nil, err
		}
		s.graph = g
	}
	return s, nil
}

// loadGraph imports the persisted graph, or builds one over the loaded rows when the
// artifact came from a flat index or the graph does not import cleanly.
func (ix *Index) loadGraph(s *snapshot, va *vectorsArtifact) (*graphSearcher, error) {
	if len(va.Graph) > 0 && va.GraphRows <= s.rows() {
		g, err := importGraph(va.Graph, va.GraphRows)
		if err == nil {
			return g, nil
		}
		log.Warn().Err(err).Msg("Face index: rebuilding HNSW graph from persisted vectors")
	}
	return buildGraph(context.Background(), s)
}
