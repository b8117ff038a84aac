package metrics

import (
	"context"
	"sync"
	"time"

	"clipper/internal/logging"
)

// StatsProvider reports record counts for the library gauges.
type StatsProvider interface {
	LibraryStats(ctx context.Context) (Stats, error)
}

// DepthProvider reports how many job descriptors are waiting.
type DepthProvider interface {
	Len(ctx context.Context) (int, error)
}

// Stats holds record counts keyed by status.
type Stats struct {
	Assets map[string]int
	Clips  map[string]int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	depth         DepthProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector. depth may be nil.
func NewCollector(provider StatsProvider, depth DepthProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		statsProvider: provider,
		depth:         depth,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.depth != nil {
		if n, err := c.depth.Len(ctx); err == nil {
			QueueDepth.Set(float64(n))
		} else {
			logging.Debug("queue depth unavailable: %v", err)
		}
	}

	if c.statsProvider == nil {
		return
	}

	stats, err := c.statsProvider.LibraryStats(ctx)
	if err != nil {
		logging.Warn("metrics collection failed: %v", err)
		return
	}

	for status, n := range stats.Assets {
		AssetsByStatus.WithLabelValues(status).Set(float64(n))
	}
	for status, n := range stats.Clips {
		ClipsByStatus.WithLabelValues(status).Set(float64(n))
	}

	logging.Debug("Metrics collected: assets=%v, clips=%v", stats.Assets, stats.Clips)
}
