package artifact

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/docforge/internal/document"
)

const cleanupBatchSize = 500

// Records is the subset of document storage the cleaner needs
type Records interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*document.Document, error)
	Delete(ctx context.Context, id string) error
}

// CleanerConfig contains retention settings
type CleanerConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// Cleaner removes expired documents and their artifacts
type Cleaner struct {
	records Records
	store   Store
	cfg     CleanerConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// NewCleaner creates a new cleaner service
func NewCleaner(records Records, store Store, cfg CleanerConfig, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		records: records,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start starts the cleanup loop. It does nothing when retention is disabled.
func (c *Cleaner) Start(ctx context.Context) {
	if c.cfg.MaxAge <= 0 || c.cfg.Interval <= 0 {
		c.logger.Info("artifact cleanup disabled")
		return
	}

	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("cleaner started",
		"max_age", c.cfg.MaxAge,
		"interval", c.cfg.Interval,
	)
}

// Stop stops the cleaner and waits for the loop to finish
func (c *Cleaner) Stop() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
	c.logger.Info("cleaner stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	c.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

func (c *Cleaner) run(ctx context.Context) {
	deleted, err := c.Cleanup(ctx, time.Now().Add(-c.cfg.MaxAge))
	if err != nil {
		c.logger.Error("failed to cleanup documents", "error", err)
		return
	}

	if deleted > 0 {
		c.logger.Info("cleaned up expired documents", "deleted", deleted)
	}
}

// Cleanup deletes every document created before cutoff along with its artifact
func (c *Cleaner) Cleanup(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0

	for {
		docs, err := c.records.ListOlderThan(ctx, cutoff, cleanupBatchSize)
		if err != nil {
			return deleted, err
		}
		if len(docs) == 0 {
			return deleted, nil
		}

		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return deleted, err
			}
			if doc.ArtifactKey != "" {
				if err := c.store.Delete(ctx, doc.ArtifactKey); err != nil && !errors.Is(err, ErrNotFound) {
					c.logger.Warn("failed to delete artifact",
						"document_id", doc.ID,
						"key", doc.ArtifactKey,
						"error", err,
					)
				}
			}
			if err := c.records.Delete(ctx, doc.ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
}
