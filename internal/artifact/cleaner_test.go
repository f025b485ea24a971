package artifact

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/docforge/internal/document"
)

func TestCleaner_Cleanup(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()

	records, err := document.NewStorage(db)
	if err != nil {
		t.Fatalf("document.NewStorage() error = %v", err)
	}
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}

	ctx := context.Background()
	docs := []*document.Document{
		{ID: "old", ArtifactKey: DocumentKey("old", "pdf"), CreatedAt: time.Now().Add(-72 * time.Hour)},
		{ID: "fresh", ArtifactKey: DocumentKey("fresh", "pdf")},
	}
	for _, d := range docs {
		if err := store.Put(ctx, d.ArtifactKey, []byte("data"), "application/pdf"); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := records.Save(ctx, d); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cleaner := NewCleaner(records, store, CleanerConfig{MaxAge: 24 * time.Hour, Interval: time.Hour}, logger)

	deleted, err := cleaner.Cleanup(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup() deleted = %d, want 1", deleted)
	}

	if d, _ := records.Get(ctx, "old"); d != nil {
		t.Error("expired record should be deleted")
	}
	if _, err := store.Get(ctx, DocumentKey("old", "pdf")); err != ErrNotFound {
		t.Errorf("expired artifact Get() error = %v, want ErrNotFound", err)
	}
	if d, _ := records.Get(ctx, "fresh"); d == nil {
		t.Error("fresh record should be kept")
	}
}

func TestCleaner_StartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cleaner := NewCleaner(nil, nil, CleanerConfig{}, logger)

	// Disabled retention starts nothing and Stop returns immediately
	cleaner.Start(context.Background())
	cleaner.Stop()
}
