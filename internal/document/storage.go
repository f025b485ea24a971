// Package document stores generated document records.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")
	bucketByTime    = []byte("documents_by_time")
)

// Status is the lifecycle state of a document
type Status string

const (
	StatusGenerated Status = "generated"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// Document is a generated document record
type Document struct {
	ID             string            `json:"id"`
	BatchID        string            `json:"batch_id,omitempty"`
	RowIndex       int               `json:"row_index,omitempty"`
	TemplateID     string            `json:"template_id"`
	TemplateName   string            `json:"template_name"`
	RecipientName  string            `json:"recipient_name"`
	RecipientEmail string            `json:"recipient_email,omitempty"`
	Values         map[string]string `json:"values,omitempty"`
	Content        string            `json:"generated_content,omitempty"`
	FileName       string            `json:"file_name"`
	FileType       string            `json:"file_type"`
	ArtifactKey    string            `json:"artifact_key"`
	Size           int64             `json:"size"`
	Status         Status            `json:"status"`
	EmailSent      bool              `json:"email_sent"`
	EmailSentAt    *time.Time        `json:"email_sent_at,omitempty"`
	EmailMessageID string            `json:"email_message_id,omitempty"`
	EmailError     string            `json:"email_error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ListFilter contains filters for listing documents
type ListFilter struct {
	TemplateID     string
	BatchID        string
	RecipientEmail string
	Status         Status
	Limit          int
	Offset         int
}

func (f ListFilter) match(d *Document) bool {
	if f.TemplateID != "" && d.TemplateID != f.TemplateID {
		return false
	}
	if f.BatchID != "" && d.BatchID != f.BatchID {
		return false
	}
	if f.RecipientEmail != "" && d.RecipientEmail != f.RecipientEmail {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

// Stats contains document statistics
type Stats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	EmailsSent int64            `json:"emails_sent"`
	TotalSize  int64            `json:"total_size"`
}

// Storage provides document record storage
type Storage struct {
	db *bolt.DB
}

// NewStorage creates a new document storage using the provided BoltDB instance
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketByTime)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create document buckets: %w", err)
	}

	return &Storage{db: db}, nil
}

// Save stores a new document record
func (s *Storage) Save(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = doc.CreatedAt

	return s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		if docs.Get([]byte(doc.ID)) != nil {
			return fmt.Errorf("document %s already exists", doc.ID)
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		if err := docs.Put([]byte(doc.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketByTime).Put(makeIndexKey(doc.CreatedAt, doc.ID), []byte(doc.ID))
	})
}

// Get retrieves a document by ID. Returns nil, nil if not found.
func (s *Storage) Get(ctx context.Context, id string) (*Document, error) {
	var doc *Document

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return nil
		}
		doc = &Document{}
		return json.Unmarshal(data, doc)
	})

	return doc, err
}

// Update replaces an existing document record
func (s *Storage) Update(ctx context.Context, doc *Document) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)

		existing := docs.Get([]byte(doc.ID))
		if existing == nil {
			return fmt.Errorf("document %s not found", doc.ID)
		}

		var prev Document
		if err := json.Unmarshal(existing, &prev); err != nil {
			return err
		}
		doc.CreatedAt = prev.CreatedAt
		doc.UpdatedAt = time.Now()

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		return docs.Put([]byte(doc.ID), data)
	})
}

// List returns documents matching the filter, newest first, along with
// the total number of matches ignoring limit and offset
func (s *Storage) List(ctx context.Context, filter ListFilter) ([]*Document, int, error) {
	var documents []*Document
	total := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		c := tx.Bucket(bucketByTime).Cursor()

		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			data := docs.Get(id)
			if data == nil {
				continue
			}
			var doc Document
			if err := json.Unmarshal(data, &doc); err != nil {
				continue
			}
			if !filter.match(&doc) {
				continue
			}

			total++
			if total <= filter.Offset {
				continue
			}
			if filter.Limit > 0 && len(documents) >= filter.Limit {
				continue
			}
			documents = append(documents, &doc)
		}

		return nil
	})

	return documents, total, err
}

// ListBatch returns the documents of one batch in row order
func (s *Storage) ListBatch(ctx context.Context, batchID string) ([]*Document, error) {
	docs, _, err := s.List(ctx, ListFilter{BatchID: batchID})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].RowIndex < docs[j].RowIndex
	})
	return docs, nil
}

// Delete removes a document record by ID
func (s *Storage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)

		data := docs.Get([]byte(id))
		if data == nil {
			return nil // Already deleted
		}

		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}

		if err := tx.Bucket(bucketByTime).Delete(makeIndexKey(doc.CreatedAt, doc.ID)); err != nil {
			return err
		}
		return docs.Delete([]byte(id))
	})
}

// ListOlderThan returns up to limit documents created before cutoff, oldest first
func (s *Storage) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Document, error) {
	var documents []*Document
	cutoffKey := makeIndexKey(cutoff, "")

	err := s.db.View(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		c := tx.Bucket(bucketByTime).Cursor()

		for k, id := c.First(); k != nil && string(k) < string(cutoffKey); k, id = c.Next() {
			data := docs.Get(id)
			if data == nil {
				continue
			}
			var doc Document
			if err := json.Unmarshal(data, &doc); err != nil {
				continue
			}
			documents = append(documents, &doc)
			if limit > 0 && len(documents) >= limit {
				break
			}
		}

		return nil
	})

	return documents, err
}

// Stats returns document statistics
func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int64)}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return nil
			}
			stats.Total++
			stats.ByStatus[string(doc.Status)]++
			stats.TotalSize += doc.Size
			if doc.EmailSent {
				stats.EmailsSent++
			}
			return nil
		})
	})

	return stats, err
}

// makeIndexKey builds a time-ordered key. The timestamp is fixed width so
// byte order matches chronological order.
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
