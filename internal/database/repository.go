package database

import (
	"context"
)

// EmbeddingReader provides read-only access to face embeddings
type EmbeddingReader interface {
	// Get retrieves an embedding by face id, returns nil if not found
	Get(ctx context.Context, faceID string) (*EmbeddingRecord, error)
	// List returns every stored embedding in insertion order
	List(ctx context.Context) ([]EmbeddingRecord, error)
	// ListByLabel returns embeddings whose normalized label equals the normalized argument
	ListByLabel(ctx context.Context, label string) ([]EmbeddingRecord, error)
	// Count returns the total number of embeddings stored
	Count(ctx context.Context) (int, error)
}

// EmbeddingWriter provides write access to face embeddings
type EmbeddingWriter interface {
	EmbeddingReader

	// Insert stores a new embedding. A duplicate face id yields faceerr.ErrAlreadyExists.
	Insert(ctx context.Context, rec EmbeddingRecord) error
	// UpdateLabel sets the label of an existing embedding. A missing face id yields faceerr.ErrNotFound.
	UpdateLabel(ctx context.Context, faceID, label string) error
	// Delete removes an embedding. Deleting a missing face id is not an error.
	Delete(ctx context.Context, faceID string) error
	// DeleteByImage removes all embeddings of an image and returns how many were removed
	DeleteByImage(ctx context.Context, imageID string) (int, error)
}

// ImageStore persists image metadata documents
type ImageStore interface {
	// Get retrieves an image by id, returns nil if not found
	Get(ctx context.Context, imageID string) (*ImageRecord, error)
	// Save inserts or replaces an image document
	Save(ctx context.Context, img ImageRecord) error
	// Delete removes an image document. Deleting a missing image is not an error.
	Delete(ctx context.Context, imageID string) error
}

// SettingsStore persists per-user settings
type SettingsStore interface {
	// GetThreshold returns the stored threshold and whether one was set
	GetThreshold(ctx context.Context, userID string) (float64, bool, error)
	// SetThreshold stores the threshold for a user
	SetThreshold(ctx context.Context, userID string, value float64) error
}

// Store bundles the repositories a backend provides.
type Store struct {
	Embeddings EmbeddingWriter
	Images     ImageStore
	Settings   SettingsStore
	Close      func() error
}
