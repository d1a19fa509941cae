//go:build integration

package mariadb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/facesearch/internal/config"
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mariadb:11",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MARIADB_USER":          "test",
			"MARIADB_PASSWORD":      "test",
			"MARIADB_DATABASE":      "testdb",
			"MARIADB_ROOT_PASSWORD": "root",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("test:test@tcp(%s:%s)/testdb", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	// The port opens before the server accepts logins, so retry for a while.
	var pool *Pool
	for range 30 {
		pool, err = NewPool(ctx, cfg)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func testVector(seed float32) []float32 {
	v := make([]float32, 8)
	for i := range v {
		v[i] = seed + float32(i)/8
	}
	return v
}

func TestEmbeddingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewEmbeddingRepository(pool)

	t.Run("InsertAndGet", func(t *testing.T) {
		err := repo.Insert(ctx, database.EmbeddingRecord{FaceID: "f1", ImageID: "img1", Vector: testVector(1)})
		if err != nil {
			t.Fatalf("Failed to insert embedding: %v", err)
		}

		got, err := repo.Get(ctx, "f1")
		if err != nil {
			t.Fatalf("Failed to get embedding: %v", err)
		}
		if got == nil {
			t.Fatal("Expected embedding, got nil")
		}
		if len(got.Vector) != 8 || got.Vector[1] != 1.125 {
			t.Errorf("Unexpected vector %v", got.Vector)
		}
		if got.CreatedAt.IsZero() {
			t.Error("Expected CreatedAt to be set")
		}
	})

	t.Run("DuplicateInsert", func(t *testing.T) {
		err := repo.Insert(ctx, database.EmbeddingRecord{FaceID: "f1", Vector: testVector(2)})
		if !errors.Is(err, faceerr.ErrAlreadyExists) {
			t.Errorf("Expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("ListKeepsInsertionOrder", func(t *testing.T) {
		for _, id := range []string{"f3", "f2"} {
			if err := repo.Insert(ctx, database.EmbeddingRecord{FaceID: id, ImageID: "img2", Vector: testVector(3)}); err != nil {
				t.Fatalf("Failed to insert %s: %v", id, err)
			}
		}
		list, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		var ids []string
		for _, r := range list {
			ids = append(ids, r.FaceID)
		}
		if fmt.Sprint(ids) != "[f1 f3 f2]" {
			t.Errorf("Expected [f1 f3 f2], got %v", ids)
		}
	})

	t.Run("UpdateLabel", func(t *testing.T) {
		if err := repo.UpdateLabel(ctx, "f3", "Jan Novák"); err != nil {
			t.Fatalf("Failed to update label: %v", err)
		}
		// same value again must not report a missing face
		if err := repo.UpdateLabel(ctx, "f3", "Jan Novák"); err != nil {
			t.Fatalf("Failed to repeat label update: %v", err)
		}
		got, err := repo.ListByLabel(ctx, "jan-novak")
		if err != nil {
			t.Fatalf("Failed to list by label: %v", err)
		}
		if len(got) != 1 || got[0].FaceID != "f3" {
			t.Errorf("Unexpected result: %+v", got)
		}

		err = repo.UpdateLabel(ctx, "missing", "x")
		if !errors.Is(err, faceerr.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteByImage", func(t *testing.T) {
		n, err := repo.DeleteByImage(ctx, "img2")
		if err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 deleted, got %d", n)
		}
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 remaining, got %d", count)
		}
	})
}

func TestImageRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewImageRepository(pool)

	img := database.ImageRecord{
		ID:       "img1",
		UserID:   "alice",
		FileName: "a.jpg",
		Faces:    []database.FaceMeta{{FaceID: "f1", Confidence: 0.9, HasEmbedding: true}},
	}
	if err := repo.Save(ctx, img); err != nil {
		t.Fatalf("Failed to save image: %v", err)
	}
	img.FileName = "b.jpg"
	if err := repo.Save(ctx, img); err != nil {
		t.Fatalf("Failed to replace image: %v", err)
	}

	got, err := repo.Get(ctx, "img1")
	if err != nil {
		t.Fatalf("Failed to get image: %v", err)
	}
	if got == nil || got.FileName != "b.jpg" || len(got.Faces) != 1 || got.Faces[0].FaceID != "f1" {
		t.Errorf("Unexpected image: %+v", got)
	}

	if err := repo.Delete(ctx, "img1"); err != nil {
		t.Fatalf("Failed to delete image: %v", err)
	}
	got, err = repo.Get(ctx, "img1")
	if err != nil || got != nil {
		t.Errorf("Expected missing image, got %+v, %v", got, err)
	}
}

func TestSettingsRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSettingsRepository(pool)

	if _, ok, err := repo.GetThreshold(ctx, "alice"); err != nil || ok {
		t.Fatalf("Expected no threshold, got ok=%v err=%v", ok, err)
	}
	for _, v := range []float64{80, 82.5} {
		if err := repo.SetThreshold(ctx, "alice", v); err != nil {
			t.Fatalf("Failed to set threshold: %v", err)
		}
	}
	v, ok, err := repo.GetThreshold(ctx, "alice")
	if err != nil || !ok || v != 82.5 {
		t.Errorf("Expected 82.5, got %v ok=%v err=%v", v, ok, err)
	}
}
