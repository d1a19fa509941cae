// Package sqlite provides an embedded SQLite implementation of the database repositories.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS face_embeddings (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	face_id    TEXT NOT NULL UNIQUE,
	image_id   TEXT NOT NULL DEFAULT '',
	label      TEXT NOT NULL DEFAULT '',
	label_norm TEXT NOT NULL DEFAULT '',
	embedding  BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_face_embeddings_image_id ON face_embeddings (image_id);
CREATE INDEX IF NOT EXISTS idx_face_embeddings_label_norm ON face_embeddings (label_norm);

CREATE TABLE IF NOT EXISTS images (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	file_name  TEXT NOT NULL DEFAULT '',
	faces      TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id    TEXT PRIMARY KEY,
	threshold  REAL NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// DB wraps a SQLite database file.
type DB struct {
	db   *sql.DB
	path string
}

// OpenDB opens (creating if needed) the database file and applies the schema.
func OpenDB(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Open opens the SQLite database at path and returns the repositories.
func Open(ctx context.Context, path string) (*database.Store, error) {
	d, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("Using SQLite backend at %s", path)
	return &database.Store{
		Embeddings: NewEmbeddingRepository(d),
		Images:     NewImageRepository(d),
		Settings:   NewSettingsRepository(d),
		Close:      d.Close,
	}, nil
}

func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(4 * len(v))
	binary.Write(buf, binary.LittleEndian, v) //nolint:errcheck // bytes.Buffer writes cannot fail
	return buf.Bytes()
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return v, nil
}

func nowOr(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixNano()
	}
	return t.UnixNano()
}
