package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/faceerr"
)

const embeddingColumns = `face_id, image_id, label, embedding, created_at`

// EmbeddingRepository provides MariaDB-backed face embedding storage.
// Vectors are stored as JSON arrays.
type EmbeddingRepository struct {
	p *Pool
}

// NewEmbeddingRepository creates a new MariaDB embedding repository.
func NewEmbeddingRepository(p *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{p: p}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmbedding(row rowScanner) (database.EmbeddingRecord, error) {
	var rec database.EmbeddingRecord
	var data []byte
	if err := row.Scan(&rec.FaceID, &rec.ImageID, &rec.Label, &data, &rec.CreatedAt); err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec.Vector); err != nil {
		return rec, fmt.Errorf("face %s: decode embedding: %w", rec.FaceID, err)
	}
	return rec, nil
}

func (r *EmbeddingRepository) query(ctx context.Context, query string, args ...any) ([]database.EmbeddingRecord, error) {
	rows, err := r.p.db.QueryContext(ctx, query, args...)
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
	row := r.p.db.QueryRowContext(ctx, `SELECT `+embeddingColumns+` FROM face_embeddings WHERE face_id = ?`, faceID)
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
	if err := r.p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_embeddings").Scan(&count); err != nil {
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
	data, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	_, err = r.p.db.ExecContext(ctx, `
		INSERT INTO face_embeddings (face_id, image_id, label, label_norm, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.FaceID, rec.ImageID, rec.Label, database.NormalizeLabel(rec.Label), data, nowOr(rec.CreatedAt))
	if isDuplicate(err) {
		return fmt.Errorf("insert embedding %s: %w", rec.FaceID, faceerr.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// UpdateLabel sets the label of an existing embedding.
func (r *EmbeddingRepository) UpdateLabel(ctx context.Context, faceID, label string) error {
	// RowsAffected is 0 when the label is unchanged, so check existence first
	var exists bool
	err := r.p.db.QueryRowContext(ctx, `SELECT 1 FROM face_embeddings WHERE face_id = ?`, faceID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update label of face %s: %w", faceID, faceerr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update label: %w", err)
	}

	if _, err := r.p.db.ExecContext(ctx,
		`UPDATE face_embeddings SET label = ?, label_norm = ? WHERE face_id = ?`,
		label, database.NormalizeLabel(label), faceID); err != nil {
		return fmt.Errorf("update label: %w", err)
	}
	return nil
}

// Delete removes an embedding.
func (r *EmbeddingRepository) Delete(ctx context.Context, faceID string) error {
	if _, err := r.p.db.ExecContext(ctx, `DELETE FROM face_embeddings WHERE face_id = ?`, faceID); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}

// DeleteByImage removes all embeddings of an image.
func (r *EmbeddingRepository) DeleteByImage(ctx context.Context, imageID string) (int, error) {
	res, err := r.p.db.ExecContext(ctx, `DELETE FROM face_embeddings WHERE image_id = ?`, imageID)
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
