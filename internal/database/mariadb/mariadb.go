// Package mariadb provides a MariaDB/MySQL implementation of the database repositories.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/facesearch/internal/config"
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/rs/zerolog/log"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS face_embeddings (
		seq        BIGINT AUTO_INCREMENT PRIMARY KEY,
		face_id    VARCHAR(64) NOT NULL UNIQUE,
		image_id   VARCHAR(64) NOT NULL DEFAULT '',
		label      VARCHAR(255) NOT NULL DEFAULT '',
		label_norm VARCHAR(255) NOT NULL DEFAULT '',
		embedding  MEDIUMBLOB NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_face_embeddings_image_id (image_id),
		INDEX idx_face_embeddings_label_norm (label_norm)
	) DEFAULT CHARSET = utf8mb4`,
	`CREATE TABLE IF NOT EXISTS images (
		id         VARCHAR(64) PRIMARY KEY,
		user_id    VARCHAR(128) NOT NULL DEFAULT '',
		file_name  VARCHAR(512) NOT NULL DEFAULT '',
		faces      MEDIUMTEXT NOT NULL,
		created_at DATETIME(6) NOT NULL
	) DEFAULT CHARSET = utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		user_id    VARCHAR(128) PRIMARY KEY,
		threshold  DOUBLE NOT NULL,
		updated_at DATETIME(6) NOT NULL
	) DEFAULT CHARSET = utf8mb4`,
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool and applies the schema.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := mysql.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Open connects to MariaDB and returns the repositories.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*database.Store, error) {
	p, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Using MariaDB backend")
	return &database.Store{
		Embeddings: NewEmbeddingRepository(p),
		Images:     NewImageRepository(p),
		Settings:   NewSettingsRepository(p),
		Close:      p.Close,
	}, nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// isDuplicate reports a unique key violation (ER_DUP_ENTRY).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
