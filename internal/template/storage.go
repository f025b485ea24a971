package template

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTemplates     = []byte("templates")
	bucketTemplateNames = []byte("template_names")
	bucketTemplateFiles = []byte("template_files")
)

// Storage keeps template definitions, a unique name index and attached
// merge documents in bbolt
type Storage struct {
	db *bolt.DB
}

// NewStorage creates the template buckets if needed
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTemplates, bucketTemplateNames, bucketTemplateFiles} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template buckets: %w", err)
	}
	return &Storage{db: db}, nil
}

// load decodes the template stored under id, or returns nil
func load(tx *bolt.Tx, id []byte) (*Template, error) {
	data := tx.Bucket(bucketTemplates).Get(id)
	if data == nil {
		return nil, nil
	}
	var tmpl Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", id, err)
	}
	return &tmpl, nil
}

func save(tx *bolt.Tx, tmpl *Template) error {
	data, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	return tx.Bucket(bucketTemplates).Put([]byte(tmpl.ID), data)
}

// claimName points name at id, failing if another template holds it
func claimName(tx *bolt.Tx, name, id string) error {
	names := tx.Bucket(bucketTemplateNames)
	if owner := names.Get([]byte(name)); owner != nil && string(owner) != id {
		return fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	return names.Put([]byte(name), []byte(id))
}

// Create assigns an ID and version 1, then stores tmpl
func (s *Storage) Create(ctx context.Context, tmpl *Template) error {
	if tmpl.Name == "" {
		return fmt.Errorf("template name is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		id := uuid.New().String()
		if err := claimName(tx, tmpl.Name, id); err != nil {
			return err
		}

		tmpl.ID = id
		tmpl.Version = 1
		tmpl.CreatedAt = time.Now()
		tmpl.UpdatedAt = tmpl.CreatedAt
		return save(tx, tmpl)
	})
}

// Get returns the template with id, or nil if there is none
func (s *Storage) Get(ctx context.Context, id string) (*Template, error) {
	var tmpl *Template
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		tmpl, err = load(tx, []byte(id))
		return err
	})
	return tmpl, err
}

// GetByName returns the template registered under name, or nil
func (s *Storage) GetByName(ctx context.Context, name string) (*Template, error) {
	var tmpl *Template
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		id := tx.Bucket(bucketTemplateNames).Get([]byte(name))
		if id == nil {
			return nil
		}
		tmpl, err = load(tx, id)
		return err
	})
	return tmpl, err
}

// Resolve looks a template up by ID, then by name
func (s *Storage) Resolve(ctx context.Context, idOrName string) (*Template, error) {
	tmpl, err := s.Get(ctx, idOrName)
	if err != nil || tmpl != nil {
		return tmpl, err
	}
	return s.GetByName(ctx, idOrName)
}

func (f ListFilter) matches(tmpl *Template) bool {
	if f.Category != "" && string(tmpl.Category) != f.Category {
		return false
	}
	if f.Active != nil && tmpl.Active != *f.Active {
		return false
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(tmpl.Name), needle) ||
		strings.Contains(strings.ToLower(tmpl.Description), needle)
}

// List walks templates in key order applying filter, offset and limit.
// Undecodable records are skipped.
func (s *Storage) List(ctx context.Context, filter ListFilter) ([]*Template, error) {
	var out []*Template

	err := s.db.View(func(tx *bolt.Tx) error {
		matched := 0
		return tx.Bucket(bucketTemplates).ForEach(func(k, v []byte) error {
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return nil
			}
			tmpl := new(Template)
			if json.Unmarshal(v, tmpl) != nil || !filter.matches(tmpl) {
				return nil
			}
			matched++
			if matched <= filter.Offset {
				return nil
			}
			out = append(out, tmpl)
			return nil
		})
	})

	return out, err
}

// Update replaces a stored template, moving its name index entry on rename
// and bumping the version
func (s *Storage) Update(ctx context.Context, tmpl *Template) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := load(tx, []byte(tmpl.ID))
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}

		if existing.Name != tmpl.Name {
			if err := claimName(tx, tmpl.Name, tmpl.ID); err != nil {
				return err
			}
			if err := tx.Bucket(bucketTemplateNames).Delete([]byte(existing.Name)); err != nil {
				return err
			}
		}

		tmpl.Version = existing.Version + 1
		tmpl.CreatedAt = existing.CreatedAt
		tmpl.UpdatedAt = time.Now()
		return save(tx, tmpl)
	})
}

// Delete removes a template with its name entry and merge document.
// Deleting an unknown ID is not an error.
func (s *Storage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tmpl, err := load(tx, []byte(id))
		if err != nil || tmpl == nil {
			return err
		}

		if err := tx.Bucket(bucketTemplateNames).Delete([]byte(tmpl.Name)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTemplateFiles).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketTemplates).Delete([]byte(id))
	})
}

// SetFile attaches a DOCX merge document and records its name and size
func (s *Storage) SetFile(ctx context.Context, id, fileName string, data []byte) (*Template, error) {
	var tmpl *Template

	err := s.db.Update(func(tx *bolt.Tx) (err error) {
		tmpl, err = load(tx, []byte(id))
		if err != nil {
			return err
		}
		if tmpl == nil {
			return ErrNotFound
		}

		if err := tx.Bucket(bucketTemplateFiles).Put([]byte(id), data); err != nil {
			return fmt.Errorf("failed to store template file: %w", err)
		}

		tmpl.FileName = fileName
		tmpl.FileSize = int64(len(data))
		tmpl.Version++
		tmpl.UpdatedAt = time.Now()
		return save(tx, tmpl)
	})
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// GetFile returns the merge document attached to a template, or nil
func (s *Storage) GetFile(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketTemplateFiles).Get([]byte(id)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

// Stats counts stored and active templates
func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(_, v []byte) error {
			var tmpl Template
			stats.Total++
			if json.Unmarshal(v, &tmpl) == nil && tmpl.Active {
				stats.Active++
			}
			return nil
		})
	})
	return stats, err
}
