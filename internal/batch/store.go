package batch

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketBatches = []byte("batches")

// ResultStore keeps finished batch results so reports can be produced later
type ResultStore struct {
	db *bolt.DB
}

// NewResultStore creates the batches bucket
func NewResultStore(db *bolt.DB) (*ResultStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBatches)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batches bucket: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// Save stores a result under its batch ID
func (s *ResultStore) Save(ctx context.Context, r *Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal batch result: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBatches).Put([]byte(r.BatchID), data)
	})
}

// Get retrieves a result. Returns nil, nil if not found.
func (s *ResultStore) Get(ctx context.Context, batchID string) (*Result, error) {
	var r *Result

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBatches).Get([]byte(batchID))
		if data == nil {
			return nil
		}
		r = &Result{}
		return json.Unmarshal(data, r)
	})

	return r, err
}

// Delete removes a stored result
func (s *ResultStore) Delete(ctx context.Context, batchID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBatches).Delete([]byte(batchID))
	})
}
