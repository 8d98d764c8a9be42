package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/log"
)

// Monitor pings the store periodically and logs when it becomes unreachable
// or recovers. The last result backs the health endpoint between checks.
type Monitor struct {
	storage  Storage
	interval time.Duration
	timeout  time.Duration

	mu        sync.RWMutex
	lastErr   error
	lastCheck time.Time
}

// NewMonitor creates a monitor for s
func NewMonitor(s Storage, interval time.Duration) *Monitor {
	return &Monitor{
		storage:  s,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Run checks the store until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	log.LogInfoWithFields("storage", "Starting storage health monitor", map[string]any{
		"interval": m.interval.String(),
	})

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			log.Logf("Storage health monitor stopped")
			return nil
		}
	}
}

// Check pings the store once and records the result.
func (m *Monitor) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.storage.Ping(pingCtx)

	m.mu.Lock()
	prev := m.lastErr
	first := m.lastCheck.IsZero()
	m.lastErr = err
	m.lastCheck = time.Now()
	m.mu.Unlock()

	switch {
	case err != nil && (prev == nil || first):
		log.LogErrorWithFields("storage", "Storage unreachable", map[string]any{
			"error": err.Error(),
		})
	case err == nil && prev != nil:
		log.LogInfoWithFields("storage", "Storage reachable again", nil)
	}
	return err
}

// Status returns the last check result and when it ran. A zero time means
// no check has run yet.
func (m *Monitor) Status() (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCheck, m.lastErr
}
