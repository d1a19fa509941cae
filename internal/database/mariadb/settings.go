package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facesearch/internal/database"
)

// SettingsRepository provides MariaDB-backed per-user settings
type SettingsRepository struct {
	p *Pool
}

// NewSettingsRepository creates a new MariaDB settings repository
func NewSettingsRepository(p *Pool) *SettingsRepository {
	return &SettingsRepository{p: p}
}

// GetThreshold returns the stored threshold for a user and whether one exists
func (r *SettingsRepository) GetThreshold(ctx context.Context, userID string) (float64, bool, error) {
	var v float64
	err := r.p.db.QueryRowContext(ctx, `SELECT threshold FROM user_settings WHERE user_id = ?`, userID).Scan(&v)
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
	_, err := r.p.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, threshold, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			threshold = VALUES(threshold),
			updated_at = VALUES(updated_at)`,
		userID, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}
	return nil
}

var _ database.SettingsStore = (*SettingsRepository)(nil)
