package template

import (
	"context"
	"errors"
	"os"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) (*bolt.DB, func()) {
	tmpfile, err := os.CreateTemp("", "template_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	db, err := bolt.Open(tmpfile.Name(), 0600, nil)
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("failed to open db: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(tmpfile.Name())
	}

	return db, cleanup
}

func newTestStorage(t *testing.T) (*Storage, func()) {
	db, cleanup := setupTestDB(t)
	storage, err := NewStorage(db)
	if err != nil {
		cleanup()
		t.Fatalf("NewStorage() error = %v", err)
	}
	return storage, cleanup
}

func TestStorage_Create(t *testing.T) {
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	tmpl := &Template{
		Name:     "offer",
		Category: CategoryOfferLetter,
		Body:     "Dear {{name}}, welcome aboard.",
		Active:   true,
	}

	if err := storage.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if tmpl.ID == "" {
		t.Error("Create() did not set ID")
	}
	if tmpl.Version != 1 {
		t.Errorf("Create() version = %d, want 1", tmpl.Version)
	}
	if tmpl.CreatedAt.IsZero() {
		t.Error("Create() did not set CreatedAt")
	}
}

func TestStorage_CreateDuplicateName(t *testing.T) {
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	if err := storage.Create(ctx, &Template{Name: "dup", Body: "a"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := storage.Create(ctx, &Template{Name: "dup", Body: "b"}); !errors.Is(err, ErrNameTaken) {
		t.Errorf("Create() duplicate error = %v, want ErrNameTaken", err)
	}

	other := &Template{Name: "other", Body: "c"}
	if err := storage.Create(ctx, other); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	other.Name = "dup"
	if err := storage.Update(ctx, other); !errors.Is(err, ErrNameTaken) {
		t.Errorf("Update() rename onto taken name error = %v, want ErrNameTaken", err)
	}
}

func TestStorage_GetAndResolve(t *testing.T) {
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	tmpl := &Template{Name: "certificate", Category: CategoryCertificate, Body: "Awarded to {{name}}"}
	if err := storage.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := storage.Get(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Body != tmpl.Body {
		t.Fatalf("Get() = %+v, want body %q", got, tmpl.Body)
	}

	byName, err := storage.Resolve(ctx, "certificate")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if byName == nil || byName.ID != tmpl.ID {
		t.Errorf("Resolve(name) = %+v, want id %s", byName, tmpl.ID)
	}

	missing, err := storage.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if missing != nil {
		t.Error("Get() should return nil for unknown id")
	}
}

func TestStorage_List(t *testing.T) {
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	fixtures := []*Template{
		{Name: "offer-a", Category: CategoryOfferLetter, Body: "x", Active: true},
		{Name: "offer-b", Category: CategoryOfferLetter, Body: "x", Active: false},
		{Name: "cert", Category: CategoryCertificate, Body: "x", Active: true, Description: "Course completion"},
	}
	for _, f := range fixtures {
		if err := storage.Create(ctx, f); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	active := true
	tests := []struct {
		name   string
		filter ListFilter
		want   int
	}{
		{"all", ListFilter{}, 3},
		{"category", ListFilter{Category: string(CategoryOfferLetter)}, 2},
		{"active", ListFilter{Active: &active}, 2},
		{"search description", ListFilter{Search: "completion"}, 1},
		{"limit", ListFilter{Limit: 2}, 2},
		{"offset", ListFilter{Offset: 2}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List() returned %d templates, want %d", len(got), tt.want)
			}
		})
	}
}

func TestStorage_Update(t *testing.T) {
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	tmpl := &Template{Name: "original", Body: "v1"}
	if err := storage.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tmpl.Name = "renamed"
	tmpl.Body = "v2"
	if err := storage.Update(ctx, tmpl); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if tmpl.Version != 2 {
		t.Errorf("Update() version = %d, want 2", tmpl.Version)
	}

	old, _ := storage.GetByName(ctx, "original")
	if old != nil {
		t.Error("old name should no longer resolve")
	}
	renamed, _ := storage.GetByName(ctx, "renamed")
	if renamed == nil || renamed.Body != "v2" {
		t.Errorf("GetByName(renamed) = %+v", renamed)
	}

	err := storage.Update(ctx, &Template{ID: "missing", Name: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStorage_FileLifecycle(t *testing.T) {
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	tmpl := &Template{Name: "merge"}
	if err := storage.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	content := []byte("PK\x03\x04 fake docx")
	updated, err := storage.SetFile(ctx, tmpl.ID, "letter.docx", content)
	if err != nil {
		t.Fatalf("SetFile() error = %v", err)
	}
	if !updated.HasMergeDocument() {
		t.Error("SetFile() should attach merge document")
	}
	if updated.FileSize != int64(len(content)) {
		t.Errorf("FileSize = %d, want %d", updated.FileSize, len(content))
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}

	got, err := storage.GetFile(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("GetFile() = %q, want %q", got, content)
	}

	if err := storage.Delete(ctx, tmpl.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = storage.GetFile(ctx, tmpl.ID)
	if got != nil {
		t.Error("Delete() should remove the merge document")
	}

	if _, err := storage.SetFile(ctx, "missing", "a.docx", content); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetFile(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStorage_Stats(t *testing.T) {
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	_ = storage.Create(ctx, &Template{Name: "a", Body: "x", Active: true})
	_ = storage.Create(ctx, &Template{Name: "b", Body: "x"})

	stats, err := storage.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 2 || stats.Active != 1 {
		t.Errorf("Stats() = %+v, want total 2 active 1", stats)
	}
}
