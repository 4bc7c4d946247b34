package access

import (
	"sync"
	"time"
)

// RateLimiter drops repeat scans of the same card inside the configured
// window. The window is runtime-tunable through the config store.
type RateLimiter struct {
	mu    sync.Mutex
	delay time.Duration
	last  map[string]time.Time
}

func NewRateLimiter(delay time.Duration) *RateLimiter {
	return &RateLimiter{
		delay: delay,
		last:  make(map[string]time.Time),
	}
}

func (l *RateLimiter) SetDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = delay
}

// ShouldProcess reports whether the scan at now is outside the window,
// recording it as the new last-accepted scan when it is. Stale entries
// are pruned opportunistically to keep the table TTL-bounded.
func (l *RateLimiter) ShouldProcess(card string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.last[card]; ok && now.Sub(t) < l.delay {
		return false
	}
	l.last[card] = now

	if len(l.last) > 4096 {
		for c, t := range l.last {
			if now.Sub(t) >= l.delay {
				delete(l.last, c)
			}
		}
	}
	return true
}
