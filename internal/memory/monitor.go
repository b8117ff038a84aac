package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"clipper/internal/logging"
	"clipper/internal/metrics"
)

// MonitorConfig holds the backpressure thresholds.
type MonitorConfig struct {
	// LimitBytes is the budget usage is measured against; 0 uses GOMEMLIMIT.
	LimitBytes int64
	// HighWaterMark is the usage ratio below which a paused monitor resumes.
	HighWaterMark float64
	// CriticalWaterMark is the usage ratio at which the monitor pauses.
	CriticalWaterMark float64
	CheckInterval     time.Duration
}

// DefaultMonitorConfig returns 70% / 85% water marks sampled every 5s.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor tracks heap usage and pauses callers of Wait while it is critical.
type Monitor struct {
	config    MonitorConfig
	limit     int64
	readAlloc func() uint64

	mu        sync.RWMutex
	current   uint64
	paused    bool
	resumed   chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
}

// NewMonitor creates a Monitor. Without a limit, from the config or from
// GOMEMLIMIT, the monitor never pauses.
func NewMonitor(config MonitorConfig) *Monitor {
	defaults := DefaultMonitorConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	if config.CriticalWaterMark <= 0 || config.CriticalWaterMark > 1 {
		config.CriticalWaterMark = defaults.CriticalWaterMark
	}
	if config.HighWaterMark <= 0 || config.HighWaterMark >= config.CriticalWaterMark {
		config.HighWaterMark = config.CriticalWaterMark * 0.8
	}

	limit := config.LimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
		}
	}
	if limit > 0 {
		logging.Info("Memory monitor budget: %s (pause at %.0f%%, resume below %.0f%%)",
			FormatBytes(limit), config.CriticalWaterMark*100, config.HighWaterMark*100)
	} else {
		logging.Debug("Memory monitor: no memory limit configured, backpressure disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		readAlloc: heapAlloc,
		resumed:   make(chan struct{}),
		stopChan:  make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start begins sampling. It does nothing when no limit is configured.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	m.startOnce.Do(func() { go m.monitorLoop() })
}

// Stop ends sampling and releases any waiters.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) check() {
	alloc := m.readAlloc()
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = alloc

	switch {
	case !m.paused && usage >= m.config.CriticalWaterMark:
		logging.Warn("Memory critical (%.1f%% of limit), pausing job intake", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.HighWaterMark:
		logging.Info("Memory recovered (%.1f%% of limit), resuming job intake", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumed)
		m.resumed = make(chan struct{})
	}
}

// Wait blocks while the monitor is paused. It returns ctx.Err() if ctx ends
// first and nil once it is safe to proceed or the monitor is stopped.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return nil
	}
	resumed := m.resumed
	m.mu.RUnlock()

	select {
	case <-resumed:
		return nil
	case <-m.stopChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsPaused reports whether the monitor is holding back callers of Wait.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled usage as a fraction of the limit, or 0
// without a limit.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.current) / float64(m.limit)
}

// Limit returns the budget in bytes, 0 when unlimited.
func (m *Monitor) Limit() int64 {
	return m.limit
}
