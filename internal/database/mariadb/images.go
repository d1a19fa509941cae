package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/facesearch/internal/database"
)

// ImageRepository provides MariaDB-backed image document storage.
type ImageRepository struct {
	p *Pool
}

// NewImageRepository creates a new MariaDB image repository.
func NewImageRepository(p *Pool) *ImageRepository {
	return &ImageRepository{p: p}
}

// Get retrieves an image by id, returns nil if not found.
func (r *ImageRepository) Get(ctx context.Context, imageID string) (*database.ImageRecord, error) {
	var img database.ImageRecord
	var faces string
	err := r.p.db.QueryRowContext(ctx,
		`SELECT id, user_id, file_name, faces, created_at FROM images WHERE id = ?`, imageID,
	).Scan(&img.ID, &img.UserID, &img.FileName, &faces, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	if err := json.Unmarshal([]byte(faces), &img.Faces); err != nil {
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
	_, err = r.p.db.ExecContext(ctx, `
		INSERT INTO images (id, user_id, file_name, faces, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			user_id = VALUES(user_id),
			file_name = VALUES(file_name),
			faces = VALUES(faces)`,
		img.ID, img.UserID, img.FileName, string(data), nowOr(img.CreatedAt))
	if err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// Delete removes an image document.
func (r *ImageRepository) Delete(ctx context.Context, imageID string) error {
	if _, err := r.p.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, imageID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

var _ database.ImageStore = (*ImageRepository)(nil)
