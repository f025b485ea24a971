package document

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "documents.db"), 0600, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage, err := NewStorage(db)
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}
	return storage
}

func TestStorage_SaveGetUpdate(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	doc := &Document{
		ID:            "batch1-1",
		BatchID:       "batch1",
		RowIndex:      1,
		TemplateID:    "tmpl",
		RecipientName: "Alice",
		FileType:      "pdf",
		Status:        StatusGenerated,
	}
	if err := storage.Save(ctx, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := storage.Save(ctx, doc); err == nil {
		t.Error("Save() should reject a duplicate id")
	}

	got, err := storage.Get(ctx, "batch1-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.RecipientName != "Alice" {
		t.Fatalf("Get() = %+v", got)
	}

	now := time.Now()
	got.Status = StatusSent
	got.EmailSent = true
	got.EmailSentAt = &now
	got.EmailMessageID = "<abc@example.com>"
	if err := storage.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	updated, _ := storage.Get(ctx, "batch1-1")
	if updated.Status != StatusSent || !updated.EmailSent || updated.EmailMessageID == "" {
		t.Errorf("Update() did not persist: %+v", updated)
	}
	if !updated.CreatedAt.Equal(doc.CreatedAt) {
		t.Error("Update() should keep CreatedAt")
	}

	if err := storage.Update(ctx, &Document{ID: "missing"}); err == nil {
		t.Error("Update() should fail for unknown document")
	}

	missing, err := storage.Get(ctx, "missing")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v", missing, err)
	}
}

func TestStorage_List(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 1; i <= 12; i++ {
		doc := &Document{
			ID:         fmt.Sprintf("b-%d", i),
			BatchID:    "b",
			RowIndex:   i,
			TemplateID: "t1",
			Status:     StatusGenerated,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if i%3 == 0 {
			doc.TemplateID = "t2"
			doc.Status = StatusFailed
		}
		if err := storage.Save(ctx, doc); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	docs, total, err := storage.List(ctx, ListFilter{Limit: 5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 12 || len(docs) != 5 {
		t.Errorf("List() = %d docs, total %d; want 5, 12", len(docs), total)
	}
	if docs[0].ID != "b-12" {
		t.Errorf("List() first = %s, want newest b-12", docs[0].ID)
	}

	docs, total, _ = storage.List(ctx, ListFilter{TemplateID: "t2", Offset: 1})
	if total != 4 || len(docs) != 3 {
		t.Errorf("List(t2, offset 1) = %d docs, total %d; want 3, 4", len(docs), total)
	}

	docs, _, _ = storage.List(ctx, ListFilter{Status: StatusFailed})
	if len(docs) != 4 {
		t.Errorf("List(failed) = %d, want 4", len(docs))
	}

	batch, err := storage.ListBatch(ctx, "b")
	if err != nil {
		t.Fatalf("ListBatch() error = %v", err)
	}
	for i, d := range batch {
		if d.RowIndex != i+1 {
			t.Fatalf("ListBatch()[%d].RowIndex = %d", i, d.RowIndex)
		}
	}
}

func TestStorage_ListOlderThanAndDelete(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	old := &Document{ID: "old", CreatedAt: time.Now().Add(-48 * time.Hour), Status: StatusGenerated}
	fresh := &Document{ID: "fresh", Status: StatusGenerated}
	for _, d := range []*Document{old, fresh} {
		if err := storage.Save(ctx, d); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	expired, err := storage.ListOlderThan(ctx, time.Now().Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatalf("ListOlderThan() error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("ListOlderThan() = %v", expired)
	}

	if err := storage.Delete(ctx, "old"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := storage.Delete(ctx, "old"); err != nil {
		t.Errorf("Delete() twice error = %v", err)
	}

	_, total, _ := storage.List(ctx, ListFilter{})
	if total != 1 {
		t.Errorf("List() total after delete = %d, want 1", total)
	}
}

func TestStorage_Stats(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	_ = storage.Save(ctx, &Document{ID: "a", Status: StatusGenerated, Size: 10})
	_ = storage.Save(ctx, &Document{ID: "b", Status: StatusSent, EmailSent: true, Size: 5})

	stats, err := storage.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 2 || stats.EmailsSent != 1 || stats.TotalSize != 15 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.ByStatus["sent"] != 1 {
		t.Errorf("ByStatus = %v", stats.ByStatus)
	}
}
