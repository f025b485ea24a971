package metrics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// StoreStats is a snapshot of stored records
type StoreStats struct {
	Documents       int64
	ActiveTemplates int64
}

// StatsProvider reports store sizes for gauges
type StatsProvider interface {
	StoreStats(ctx context.Context) (*StoreStats, error)
}

// Collector periodically refreshes gauges
type Collector struct {
	metrics     *Metrics
	stats       StatsProvider
	storagePath string
	interval    time.Duration
	startTime   time.Time
	logger      *slog.Logger

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewCollector creates a gauge collector. stats may be nil.
func NewCollector(m *Metrics, stats StatsProvider, storagePath string, interval time.Duration, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:     m,
		stats:       stats,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start begins refreshing gauges in the background
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the background loop
func (c *Collector) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect refreshes every gauge once
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.stats != nil {
		stats, err := c.stats.StoreStats(ctx)
		if err != nil {
			c.logger.Warn("failed to collect store stats", "error", err)
			return
		}
		c.metrics.DocumentsStored.Set(float64(stats.Documents))
		c.metrics.TemplatesActive.Set(float64(stats.ActiveTemplates))
	}
}
