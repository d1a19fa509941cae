package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facesearch/internal/database"
)

// SettingsRepository provides PostgreSQL-backed per-user settings
type SettingsRepository struct {
	pool *Pool
}

// NewSettingsRepository creates a new PostgreSQL settings repository
func NewSettingsRepository(pool *Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetThreshold returns the stored threshold for a user and whether one exists
func (r *SettingsRepository) GetThreshold(ctx context.Context, userID string) (float64, bool, error) {
	var v float64
	err := r.pool.QueryRow(ctx, `SELECT threshold FROM user_settings WHERE user_id = $1`, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get threshold: %w", err)
	}
	return v, true, nil
}

// SetThreshold stores the threshold for a user
func (r *SettingsRepository) SetThreshold(ctx context.Context, userID string, value float64) error {
	query := `
		INSERT INTO user_settings (user_id, threshold, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			threshold = EXCLUDED.threshold,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, userID, value); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}
	return nil
}

var _ database.SettingsStore = (*SettingsRepository)(nil)
