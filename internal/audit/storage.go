// Package audit records an append-only trail of document and template actions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketAudit = []byte("audit")

// Action is the kind of audited event
type Action string

const (
	ActionDocumentGenerated  Action = "document_generated"
	ActionDocumentSent       Action = "document_sent"
	ActionBulkGeneration     Action = "bulk_generation"
	ActionTemplateCreated    Action = "template_created"
	ActionTemplateUpdated    Action = "template_updated"
	ActionTemplateDeleted    Action = "template_deleted"
	ActionDocumentDownloaded Action = "document_downloaded"
	ActionDocumentDeleted    Action = "document_deleted"
)

// Entry is one audited event
type Entry struct {
	ID             string         `json:"id"`
	Action         Action         `json:"action"`
	TargetType     string         `json:"target_type"`
	TargetID       string         `json:"target_id,omitempty"`
	BatchID        string         `json:"batch_id,omitempty"`
	RecipientEmail string         `json:"recipient_email,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Success        bool           `json:"success"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	RemoteAddr     string         `json:"remote_addr,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ListFilter contains filters for listing entries
type ListFilter struct {
	Action  Action
	BatchID string
	Success *bool
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

func (f ListFilter) match(e *Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.BatchID != "" && e.BatchID != f.BatchID {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	return true
}

// Stats summarises entries within a period
type Stats struct {
	Since      time.Time        `json:"since"`
	Total      int64            `json:"total"`
	Successful int64            `json:"successful"`
	Failed     int64            `json:"failed"`
	ByAction   map[string]int64 `json:"by_action"`
}

// Storage provides audit trail storage
type Storage struct {
	db *bolt.DB
}

// NewStorage creates a new audit storage using the provided BoltDB instance
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAudit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit bucket: %w", err)
	}

	return &Storage{db: db}, nil
}

// Record appends an entry
func (s *Storage) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
		return tx.Bucket(bucketAudit).Put(makeIndexKey(entry.CreatedAt, entry.ID), data)
	})
}

// Get retrieves an entry by ID
func (s *Storage) Get(ctx context.Context, id string) (*Entry, error) {
	var entry *Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if e.ID == id {
				entry = &e
				return nil
			}
		}
		return nil
	})

	return entry, err
}

// List returns entries matching the filter, newest first, and the total
// number of matches
func (s *Storage) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	var entries []*Entry
	total := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()

		k, v := c.Last()
		if !filter.Until.IsZero() {
			// Position on the last key at or before Until
			k, v = c.Seek(makeIndexKey(filter.Until, "\xff"))
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		}

		var sinceKey string
		if !filter.Since.IsZero() {
			sinceKey = string(makeIndexKey(filter.Since, ""))
		}

		for ; k != nil; k, v = c.Prev() {
			if sinceKey != "" && string(k) < sinceKey {
				break
			}

			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if !filter.match(&e) {
				continue
			}

			total++
			if total <= filter.Offset {
				continue
			}
			if filter.Limit > 0 && len(entries) >= filter.Limit {
				continue
			}
			entries = append(entries, &e)
		}

		return nil
	})

	return entries, total, err
}

// Stats summarises entries created at or after since
func (s *Storage) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{Since: since, ByAction: make(map[string]int64)}
	sinceKey := makeIndexKey(since, "")

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()

		for k, v := c.Seek(sinceKey); k != nil; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			stats.Total++
			if e.Success {
				stats.Successful++
			} else {
				stats.Failed++
			}
			stats.ByAction[string(e.Action)]++
		}

		return nil
	})

	return stats, err
}

// PeriodStart returns the start of a stats period ending at now
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "day":
		return now.AddDate(0, 0, -1), nil
	case "", "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	case "year":
		return now.AddDate(-1, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unknown period %q", period)
}

func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
