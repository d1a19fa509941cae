package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/faceerr"
)

const embeddingColumns = `face_id, image_id, label, embedding, created_at`

// EmbeddingRepository provides SQLite-backed face embedding storage.
type EmbeddingRepository struct {
	d *DB
}

// NewEmbeddingRepository creates a new SQLite embedding repository.
func NewEmbeddingRepository(d *DB) *EmbeddingRepository {
	return &EmbeddingRepository{d: d}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmbedding(row rowScanner) (database.EmbeddingRecord, error) {
	var rec database.EmbeddingRecord
	var blob []byte
	var created int64
	if err := row.Scan(&rec.FaceID, &rec.ImageID, &rec.Label, &blob, &created); err != nil {
		return rec, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return rec, fmt.Errorf("face %s: %w", rec.FaceID, err)
	}
	rec.Vector = vec
	rec.CreatedAt = time.Unix(0, created)
	return rec, nil
}

func (r *EmbeddingRepository) query(ctx context.Context, query string, args ...any) ([]database.EmbeddingRecord, error) {
	rows, err := r.d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	var out []database.EmbeddingRecord
	for rows.Next() {
		rec, err := scanEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// Get retrieves an embedding by face id, returns nil if not found.
func (r *EmbeddingRepository) Get(ctx context.Context, faceID string) (*database.EmbeddingRecord, error) {
	row := r.d.db.QueryRowContext(ctx, `SELECT `+embeddingColumns+` FROM face_embeddings WHERE face_id = ?`, faceID)
	rec, err := scanEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	return &rec, nil
}

// List returns every stored embedding in insertion order.
func (r *EmbeddingRepository) List(ctx context.Context) ([]database.EmbeddingRecord, error) {
	out, err := r.query(ctx, `SELECT `+embeddingColumns+` FROM face_embeddings ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	return out, nil
}

// ListByLabel returns embeddings whose normalized label matches.
func (r *EmbeddingRepository) ListByLabel(ctx context.Context, label string) ([]database.EmbeddingRecord, error) {
	norm := database.NormalizeLabel(label)
	if norm == "" {
		return nil, nil
	}
	out, err := r.query(ctx,
		`SELECT `+embeddingColumns+` FROM face_embeddings WHERE label_norm = ? ORDER BY seq`, norm)
	if err != nil {
		return nil, fmt.Errorf("list embeddings by label: %w", err)
	}
	return out, nil
}

// Count returns the total number of embeddings stored.
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// Insert stores a new embedding.
func (r *EmbeddingRepository) Insert(ctx context.Context, rec database.EmbeddingRecord) error {
	if rec.FaceID == "" {
		return fmt.Errorf("insert embedding: %w: empty face id", faceerr.ErrInvalidArgument)
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("insert embedding %s: %w", rec.FaceID, faceerr.ErrNoEmbedding)
	}
	res, err := r.d.db.ExecContext(ctx, `
		INSERT INTO face_embeddings (face_id, image_id, label, label_norm, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (face_id) DO NOTHING`,
		rec.FaceID, rec.ImageID, rec.Label, database.NormalizeLabel(rec.Label),
		encodeVector(rec.Vector), nowOr(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert embedding rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert embedding %s: %w", rec.FaceID, faceerr.ErrAlreadyExists)
	}
	return nil
}

// UpdateLabel sets the label of an existing embedding.
func (r *EmbeddingRepository) UpdateLabel(ctx context.Context, faceID, label string) error {
	res, err := r.d.db.ExecContext(ctx,
		`UPDATE face_embeddings SET label = ?, label_norm = ? WHERE face_id = ?`,
		label, database.NormalizeLabel(label), faceID)
	if err != nil {
		return fmt.Errorf("update label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update label rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update label of face %s: %w", faceID, faceerr.ErrNotFound)
	}
	return nil
}

// Delete removes an embedding.
func (r *EmbeddingRepository) Delete(ctx context.Context, faceID string) error {
	if _, err := r.d.db.ExecContext(ctx, `DELETE FROM face_embeddings WHERE face_id = ?`, faceID); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}

// DeleteByImage removes all embeddings of an image.
func (r *EmbeddingRepository) DeleteByImage(ctx context.Context, imageID string) (int, error) {
	res, err := r.d.db.ExecContext(ctx, `DELETE FROM face_embeddings WHERE image_id = ?`, imageID)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings by image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete embeddings rows affected: %w", err)
	}
	return int(n), nil
}

var _ database.EmbeddingWriter = (*EmbeddingRepository)(nil)
