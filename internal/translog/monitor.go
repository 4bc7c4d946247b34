package translog

import (
	"context"
	"log/slog"
	"time"
)

// Monitor enforces the storage cap on the transactions directory. It
// polls the directory size and, while over the cap, evicts the oldest day
// files; the amount freed per pass is capped by the cleanup fraction so a
// single sweep cannot empty the log.
type Monitor struct {
	store    *Store
	maxBytes int64
	fraction float64
	interval time.Duration
	logger   *slog.Logger
}

func NewMonitor(store *Store, maxBytes int64, fraction float64, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Monitor{
		store:    store,
		maxBytes: maxBytes,
		fraction: fraction,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.sweep()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) sweep() {
	for {
		total := m.store.DirSize()
		if total <= m.maxBytes {
			return
		}
		target := total - m.maxBytes
		if capped := int64(float64(m.maxBytes) * m.fraction); target > capped {
			target = capped
		}
		m.logger.Warn("transaction storage over cap",
			"total_bytes", total, "cap_bytes", m.maxBytes, "free_target", target)
		if m.store.Evict(target) == 0 {
			// nothing deletable (only today's file left); try again next tick
			return
		}
	}
}
