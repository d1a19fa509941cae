package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/pgvector/pgvector-go"
)

const embeddingColumns = `face_id, image_id, label, embedding, created_at`

// EmbeddingRepository provides PostgreSQL-backed face embedding storage.
type EmbeddingRepository struct {
	pool *Pool
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository.
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmbedding(row rowScanner) (database.EmbeddingRecord, error) {
	var rec database.EmbeddingRecord
	var vec pgvector.Vector
	if err := row.Scan(&rec.FaceID, &rec.ImageID, &rec.Label, &vec, &rec.CreatedAt); err != nil {
		return rec, err
	}
	rec.Vector = vec.Slice()
	return rec, nil
}

func scanEmbeddings(rows *sql.Rows) ([]database.EmbeddingRecord, error) {
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
	row := r.pool.QueryRow(ctx, `SELECT `+embeddingColumns+` FROM face_embeddings WHERE face_id = $1`, faceID)
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
	rows, err := r.pool.Query(ctx, `SELECT `+embeddingColumns+` FROM face_embeddings ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()
	return scanEmbeddings(rows)
}

// ListByLabel returns embeddings whose normalized label matches.
// Normalization happens in Go and the result is stored in label_norm on write.
func (r *EmbeddingRepository) ListByLabel(ctx context.Context, label string) ([]database.EmbeddingRecord, error) {
	norm := database.NormalizeLabel(label)
	if norm == "" {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+embeddingColumns+` FROM face_embeddings WHERE label_norm = $1 ORDER BY seq`, norm)
	if err != nil {
		return nil, fmt.Errorf("list embeddings by label: %w", err)
	}
	defer rows.Close()
	return scanEmbeddings(rows)
}

// Count returns the total number of embeddings stored.
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_embeddings").Scan(&count); err != nil {
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
	query := `
		INSERT INTO face_embeddings (face_id, image_id, label, label_norm, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, NOW()))
	`
	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}
	_, err := r.pool.Exec(ctx, query,
		rec.FaceID, rec.ImageID, rec.Label, database.NormalizeLabel(rec.Label),
		pgvector.NewVector(rec.Vector), createdAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert embedding %s: %w", rec.FaceID, faceerr.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// UpdateLabel sets the label of an existing embedding.
func (r *EmbeddingRepository) UpdateLabel(ctx context.Context, faceID, label string) error {
	res, err := r.pool.Exec(ctx,
		`UPDATE face_embeddings SET label = $2, label_norm = $3 WHERE face_id = $1`,
		faceID, label, database.NormalizeLabel(label))
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
	if _, err := r.pool.Exec(ctx, `DELETE FROM face_embeddings WHERE face_id = $1`, faceID); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}

// DeleteByImage removes all embeddings of an image.
func (r *EmbeddingRepository) DeleteByImage(ctx context.Context, imageID string) (int, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM face_embeddings WHERE image_id = $1`, imageID)
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
