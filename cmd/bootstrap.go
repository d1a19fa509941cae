package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/facesearch/internal/config"
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/database/mariadb"
	"github.com/kozaktomas/facesearch/internal/database/postgres"
	"github.com/kozaktomas/facesearch/internal/database/sqlite"
	"github.com/kozaktomas/facesearch/internal/extractor"
	"github.com/kozaktomas/facesearch/internal/facematch"
	"github.com/kozaktomas/facesearch/internal/faceindex"
	"github.com/kozaktomas/facesearch/internal/metrics"
	"github.com/rs/zerolog/log"
)

// app holds the services shared by the commands.
type app struct {
	cfg        *config.Config
	store      *database.Store
	metrics    *metrics.Metrics
	index      *faceindex.Index
	extractor  *extractor.Client
	thresholds *facematch.ThresholdPolicy
	search     *facematch.SearchService
	verifier   *facematch.Verifier
	enroller   *facematch.Enroller
}

// openStore opens the configured database backend.
func openStore(ctx context.Context, cfg *config.Config) (*database.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		log.Info().Msg("Connecting to PostgreSQL database...")
		return postgres.Open(ctx, &cfg.Database)
	case "mariadb":
		log.Info().Msg("Connecting to MariaDB database...")
		return mariadb.Open(ctx, &cfg.Database)
	case "sqlite":
		log.Info().Msgf("Opening SQLite database %s", cfg.Database.SQLitePath)
		return sqlite.Open(ctx, cfg.Database.SQLitePath)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

// newApp loads the configuration and wires the services. With loadIndex the index is
// loaded from disk or rebuilt from the store before returning.
func newApp(ctx context.Context, loadIndex bool) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m := metrics.New()
	ix, err := faceindex.New(store.Embeddings, faceindex.Options{
		Dim:            cfg.Index.Dim,
		Kind:           faceindex.Kind(cfg.Index.Kind),
		Dir:            cfg.Index.Dir,
		RebuildTimeout: cfg.Index.RebuildTimeout,
		Metrics:        m,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if loadIndex {
		if err := ix.Load(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to load face index: %w", err)
		}
	}

	ext := extractor.NewClient(cfg.Extractor.URL, cfg.Extractor.Timeout, m)
	thresholds := facematch.NewThresholdPolicy(store.Settings, cfg.Threshold)
	return &app{
		cfg:        cfg,
		store:      store,
		metrics:    m,
		index:      ix,
		extractor:  ext,
		thresholds: thresholds,
		search:     facematch.NewSearchService(ix, store, ext, cfg.Search),
		verifier:   facematch.NewVerifier(cfg.Index.Dim, thresholds, ext, store, m),
		enroller:   facematch.NewEnroller(store, ext, ix),
	}, nil
}

// Close releases the database.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing database failed")
	}
}

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
