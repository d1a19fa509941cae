package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facesearch/internal/database"
)

// SettingsRepository provides SQLite-backed per-user settings
type SettingsRepository struct {
	d *DB
}

// NewSettingsRepository creates a new SQLite settings repository
func NewSettingsRepository(d *DB) *SettingsRepository {
	return &SettingsRepository{d: d}
}

// GetThreshold returns the stored threshold for a user and whether one exists
func (r *SettingsRepository) GetThreshold(ctx context.Context, userID string) (float64, bool, error) {
	var v float64
	err := r.d.db.QueryRowContext(ctx, `SELECT threshold FROM user_settings WHERE user_id = ?`, userID).Scan(&v)
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
	_, err := r.d.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, threshold, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			threshold = excluded.threshold,
			updated_at = excluded.updated_at`,
		userID, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}
	return nil
}

var _ database.SettingsStore = (*SettingsRepository)(nil)
