package access

import (
	"sync"
	"time"
)

// EntryExitTracker suppresses transactions for scans closer together than
// the configured gap, so a site tracking entries and exits records one
// event per passage instead of one per badge wave. The first-ever scan of
// a card only primes the tracker.
type EntryExitTracker struct {
	mu      sync.Mutex
	enabled bool
	minGap  time.Duration
	last    map[string]time.Time
}

func NewEntryExitTracker() *EntryExitTracker {
	return &EntryExitTracker{last: make(map[string]time.Time)}
}

func (t *EntryExitTracker) Configure(enabled bool, minGap time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	t.minGap = minGap
}

// ShouldRecord reports whether a transaction should be created for a scan
// at now, updating the tracker when it should.
func (t *EntryExitTracker) ShouldRecord(card string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return true
	}

	lastSeen, seen := t.last[card]
	if !seen {
		t.last[card] = now
		return false
	}
	if now.Sub(lastSeen) < t.minGap {
		return false
	}
	t.last[card] = now
	return true
}
