package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/facesearch/internal/database"
)

// ImageRepository provides PostgreSQL-backed image document storage.
type ImageRepository struct {
	pool *Pool
}

// NewImageRepository creates a new PostgreSQL image repository.
func NewImageRepository(pool *Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// Get retrieves an image by id, returns nil if not found.
func (r *ImageRepository) Get(ctx context.Context, imageID string) (*database.ImageRecord, error) {
	var img database.ImageRecord
	var faces []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, file_name, faces, created_at FROM images WHERE id = $1`, imageID,
	).Scan(&img.ID, &img.UserID, &img.FileName, &faces, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	if err := json.Unmarshal(faces, &img.Faces); err != nil {
		return nil, fmt.Errorf("decode faces of image %s: %w", imageID, err)
	}
	return &img, nil
}

// Save inserts or replaces an image document.
func (r *ImageRepository) Save(ctx context.Context, img database.ImageRecord) error {
	faces := img.Faces
	if faces == nil {
		faces = []database.FaceMeta{}
	}
	data, err := json.Marshal(faces)
	if err != nil {
		return fmt.Errorf("encode faces: %w", err)
	}
	var createdAt any
	if !img.CreatedAt.IsZero() {
		createdAt = img.CreatedAt
	}
	query := `
		INSERT INTO images (id, user_id, file_name, faces, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			file_name = EXCLUDED.file_name,
			faces = EXCLUDED.faces
	`
	if _, err := r.pool.Exec(ctx, query, img.ID, img.UserID, img.FileName, data, createdAt); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// Delete removes an image document.
func (r *ImageRepository) Delete(ctx context.Context, imageID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, imageID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

var _ database.ImageStore = (*ImageRepository)(nil)
