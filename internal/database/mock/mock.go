// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/faceerr"
)

// MockEmbeddingStore is an in-memory implementation of database.EmbeddingWriter
type MockEmbeddingStore struct {
	mu      sync.RWMutex
	records map[string]*database.EmbeddingRecord
	order   []string // face ids in insertion order

	// Error injection
	GetError    error
	ListError   error
	InsertError error
	UpdateError error
	DeleteError error
	CountError  error

	// ListHook runs before List returns, used to simulate slow stores.
	ListHook func(ctx context.Context) error
}

// NewMockEmbeddingStore creates a new mock embedding store
func NewMockEmbeddingStore() *MockEmbeddingStore {
	return &MockEmbeddingStore{
		records: make(map[string]*database.EmbeddingRecord),
	}
}

// AddRecord adds a record bypassing validation and error injection
func (m *MockEmbeddingStore) AddRecord(rec database.EmbeddingRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.FaceID]; !ok {
		m.order = append(m.order, rec.FaceID)
	}
	m.records[rec.FaceID] = &rec
}

// Get retrieves an embedding by face id
func (m *MockEmbeddingStore) Get(ctx context.Context, faceID string) (*database.EmbeddingRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[faceID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// List returns all embeddings in insertion order
func (m *MockEmbeddingStore) List(ctx context.Context) ([]database.EmbeddingRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	if m.ListHook != nil {
		if err := m.ListHook(ctx); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.EmbeddingRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.records[id])
	}
	return out, nil
}

// ListByLabel returns embeddings with a matching normalized label
func (m *MockEmbeddingStore) ListByLabel(ctx context.Context, label string) ([]database.EmbeddingRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	want := database.NormalizeLabel(label)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.EmbeddingRecord
	for _, id := range m.order {
		rec := m.records[id]
		if rec.Label != "" && database.NormalizeLabel(rec.Label) == want {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// Count returns the number of stored embeddings
func (m *MockEmbeddingStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Insert stores a new embedding
func (m *MockEmbeddingStore) Insert(ctx context.Context, rec database.EmbeddingRecord) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.FaceID]; ok {
		return fmt.Errorf("insert face %s: %w", rec.FaceID, faceerr.ErrAlreadyExists)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Vector = slices.Clone(rec.Vector)
	m.records[rec.FaceID] = &rec
	m.order = append(m.order, rec.FaceID)
	return nil
}

// UpdateLabel sets the label of an existing embedding
func (m *MockEmbeddingStore) UpdateLabel(ctx context.Context, faceID, label string) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[faceID]
	if !ok {
		return fmt.Errorf("update label of face %s: %w", faceID, faceerr.ErrNotFound)
	}
	rec.Label = label
	return nil
}

// Delete removes an embedding
func (m *MockEmbeddingStore) Delete(ctx context.Context, faceID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(faceID)
	return nil
}

// DeleteByImage removes all embeddings of an image
func (m *MockEmbeddingStore) DeleteByImage(ctx context.Context, imageID string) (int, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.order {
		if m.records[id].ImageID == imageID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		m.deleteLocked(id)
	}
	return len(ids), nil
}

func (m *MockEmbeddingStore) deleteLocked(faceID string) {
	if _, ok := m.records[faceID]; !ok {
		return
	}
	delete(m.records, faceID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == faceID })
}

// MockImageStore is an in-memory implementation of database.ImageStore
type MockImageStore struct {
	mu     sync.RWMutex
	images map[string]*database.ImageRecord

	// Error injection
	GetError    error
	SaveError   error
	DeleteError error
}

// NewMockImageStore creates a new mock image store
func NewMockImageStore() *MockImageStore {
	return &MockImageStore{
		images: make(map[string]*database.ImageRecord),
	}
}

// Get retrieves an image document
func (m *MockImageStore) Get(ctx context.Context, imageID string) (*database.ImageRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[imageID]
	if !ok {
		return nil, nil
	}
	cp := *img
	cp.Faces = slices.Clone(img.Faces)
	return &cp, nil
}

// Save inserts or replaces an image document
func (m *MockImageStore) Save(ctx context.Context, img database.ImageRecord) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now()
	}
	img.Faces = slices.Clone(img.Faces)
	m.images[img.ID] = &img
	return nil
}

// Delete removes an image document
func (m *MockImageStore) Delete(ctx context.Context, imageID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, imageID)
	return nil
}

// Count returns the number of stored images
func (m *MockImageStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images)
}

// MockSettingsStore is an in-memory implementation of database.SettingsStore
type MockSettingsStore struct {
	mu         sync.RWMutex
	thresholds map[string]float64

	// Error injection
	GetError error
	SetError error
}

// NewMockSettingsStore creates a new mock settings store
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{
		thresholds: make(map[string]float64),
	}
}

// GetThreshold returns the stored threshold for a user
func (m *MockSettingsStore) GetThreshold(ctx context.Context, userID string) (float64, bool, error) {
	if m.GetError != nil {
		return 0, false, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.thresholds[userID]
	return v, ok, nil
}

// SetThreshold stores the threshold for a user
func (m *MockSettingsStore) SetThreshold(ctx context.Context, userID string, value float64) error {
	if m.SetError != nil {
		return m.SetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[userID] = value
	return nil
}

// NewStore returns a database.Store backed by fresh mocks.
func NewStore() (*database.Store, *MockEmbeddingStore, *MockImageStore, *MockSettingsStore) {
	emb := NewMockEmbeddingStore()
	img := NewMockImageStore()
	set := NewMockSettingsStore()
	return &database.Store{
		Embeddings: emb,
		Images:     img,
		Settings:   set,
		Close:      func() error { return nil },
	}, emb, img, set
}

var (
	_ database.EmbeddingWriter = (*MockEmbeddingStore)(nil)
	_ database.ImageStore      = (*MockImageStore)(nil)
	_ database.SettingsStore   = (*MockSettingsStore)(nil)
)
