// Package analytics serves the dashboard's reporting surface: per-day
// counters, recent transactions, period analytics, per-user reports and
// the CSV export.
package analytics

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/maxpark/access-controller/internal/atomicfile"
	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
)

type dayCounters struct {
	Date           string `json:"date"`
	ValidEntries   int    `json:"valid_entries"`
	InvalidEntries int    `json:"invalid_entries"`
	BlockedEntries int    `json:"blocked_entries"`
}

// TodayStats is the shape behind /get_today_stats.
type TodayStats struct {
	Total   int `json:"total"`
	Granted int `json:"granted"`
	Denied  int `json:"denied"`
	Blocked int `json:"blocked"`
}

// DailyStats persists per-day counters in daily_stats.json, keyed by
// local date. The file survives restarts so the day's counts do not
// reset with the process.
type DailyStats struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	now    func() time.Time
}

func NewDailyStats(path string, logger *slog.Logger) *DailyStats {
	return &DailyStats{path: path, logger: logger, now: time.Now}
}

func (d *DailyStats) load() map[string]dayCounters {
	stats := make(map[string]dayCounters)
	if err := atomicfile.ReadJSON(d.path, &stats); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Error("daily stats unreadable", "error", err)
	}
	return stats
}

// Record bumps today's counter for the given status. Failures are logged
// and swallowed; stats must never affect the scan path.
func (d *DailyStats) Record(status transaction.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	today := d.now().Format("2006-01-02")
	stats := d.load()
	row, ok := stats[today]
	if !ok {
		row = dayCounters{Date: today}
	}
	switch status {
	case transaction.StatusGranted:
		row.ValidEntries++
	case transaction.StatusDenied:
		row.InvalidEntries++
	case transaction.StatusBlocked:
		row.BlockedEntries++
	}
	stats[today] = row

	if err := atomicfile.WriteJSON(d.path, stats); err != nil {
		d.logger.Error("daily stats write failed", "error", err)
	}
}

// Today returns the current day's counters, zero when nothing has been
// recorded yet.
func (d *DailyStats) Today() TodayStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.load()[d.now().Format("2006-01-02")]
	out := TodayStats{
		Granted: row.ValidEntries,
		Denied:  row.InvalidEntries,
		Blocked: row.BlockedEntries,
	}
	out.Total = out.Granted + out.Denied + out.Blocked
	return out
}
