package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketOutbox = []byte("outbox")

// CapturedMessage is a message held in the outbox instead of being sent
type CapturedMessage struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	FileName   string    `json:"file_name"`
	Size       int       `json:"size"`
	Data       []byte    `json:"data,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// OutboxFilter contains filters for listing captured messages
type OutboxFilter struct {
	To     string
	Limit  int
	Offset int
}

// Outbox stores captured messages
type Outbox struct {
	db *bolt.DB
}

// NewOutbox creates the outbox bucket
func NewOutbox(db *bolt.DB) (*Outbox, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOutbox)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox bucket: %w", err)
	}

	return &Outbox{db: db}, nil
}

// Save stores a captured message
func (o *Outbox) Save(ctx context.Context, msg *CapturedMessage) error {
	return o.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return tx.Bucket(bucketOutbox).Put(makeIndexKey(msg.CapturedAt, msg.ID), data)
	})
}

// Get retrieves a captured message with its raw data
func (o *Outbox) Get(ctx context.Context, id string) (*CapturedMessage, error) {
	var msg *CapturedMessage

	err := o.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOutbox).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var m CapturedMessage
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			if m.ID == id {
				msg = &m
				return nil
			}
		}
		return nil
	})

	return msg, err
}

// List returns captured messages newest first, without raw data
func (o *Outbox) List(ctx context.Context, filter OutboxFilter) ([]*CapturedMessage, error) {
	var messages []*CapturedMessage

	err := o.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOutbox).Cursor()

		skipped := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var msg CapturedMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if filter.To != "" && msg.To != filter.To {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}

			msg.Data = nil
			messages = append(messages, &msg)
			if filter.Limit > 0 && len(messages) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return messages, err
}

// Clear removes messages older than the given age, or all when olderThan is zero
func (o *Outbox) Clear(ctx context.Context, olderThan time.Duration) (int, error) {
	var count int
	cutoff := time.Now().Add(-olderThan)

	err := o.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		c := bucket.Cursor()

		var keys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg CapturedMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if olderThan > 0 && msg.CapturedAt.After(cutoff) {
				continue
			}
			keys = append(keys, append([]byte(nil), k...))
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})

	return count, err
}

// SandboxDispatcher captures messages into the outbox instead of sending them
type SandboxDispatcher struct {
	outbox *Outbox
	from   Sender
	logger *slog.Logger
	now    func() time.Time
}

// NewSandboxDispatcher creates a capturing dispatcher
func NewSandboxDispatcher(outbox *Outbox, from Sender, logger *slog.Logger) *SandboxDispatcher {
	return &SandboxDispatcher{outbox: outbox, from: from, logger: logger, now: time.Now}
}

// Send builds the message and stores it
func (d *SandboxDispatcher) Send(ctx context.Context, n Notification) (*Receipt, error) {
	now := d.now()
	msg, err := BuildMessage(d.from, n, now)
	if err != nil {
		return nil, err
	}

	captured := &CapturedMessage{
		ID:         msg.ID,
		From:       msg.From,
		To:         msg.To,
		Subject:    msg.Subject,
		FileName:   n.Document.FileName,
		Size:       len(msg.Data),
		Data:       msg.Data,
		CapturedAt: now,
	}
	if err := d.outbox.Save(ctx, captured); err != nil {
		return nil, &DispatchError{Temporary: true, Message: fmt.Sprintf("failed to capture message: %v", err)}
	}

	d.logger.Info("message captured in sandbox",
		"to", msg.To,
		"message_id", msg.ID,
	)

	return &Receipt{MessageID: msg.ID}, nil
}

func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
