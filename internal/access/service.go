// Package access is the policy engine between the Wiegand decoders and
// everything downstream: relays, the local log, daily stats and the
// upload pipeline.
package access

import (
	"log/slog"
	"sync"
	"time"

	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
	"github.com/maxpark/access-controller/internal/metrics"
	"github.com/maxpark/access-controller/internal/user"
)

// UserDirectory is the hot-path view of the user store.
type UserDirectory interface {
	Get(card string) (user.User, bool)
	IsBlocked(card string) bool
}

// RelayActuator fires the automatic pulse for a granted scan. It must not
// block and must honor manual holds internally.
type RelayActuator interface {
	AutoPulse(relay int) error
}

// TransactionLog is the append-only local log.
type TransactionLog interface {
	Append(tx transaction.Transaction) error
}

// StatsRecorder feeds the per-day counters behind /get_today_stats.
type StatsRecorder interface {
	Record(status transaction.Status)
}

// Enqueuer hands the transaction to the upload pipeline without blocking.
type Enqueuer interface {
	Enqueue(tx transaction.Transaction)
}

const recentBufferSize = 200

// Engine applies the decision algorithm in strict order: dedup, resolve,
// decide (+relay), entry/exit gate, privacy gate, record. Relay actuation
// never depends on any write succeeding, and nothing here touches the
// network.
type Engine struct {
	users    UserDirectory
	relays   RelayActuator
	log      TransactionLog
	stats    StatsRecorder
	uploader Enqueuer
	limiter  *RateLimiter
	tracker  *EntryExitTracker
	logger   *slog.Logger

	now func() time.Time

	recentMu sync.Mutex
	recent   []transaction.Transaction
}

func NewEngine(users UserDirectory, relays RelayActuator, log TransactionLog, stats StatsRecorder, uploader Enqueuer, limiter *RateLimiter, tracker *EntryExitTracker, logger *slog.Logger) *Engine {
	return &Engine{
		users:    users,
		relays:   relays,
		log:      log,
		stats:    stats,
		uploader: uploader,
		limiter:  limiter,
		tracker:  tracker,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleScan is the ScanFunc wired into the Wiegand decoders.
func (e *Engine) HandleScan(card string, reader int) {
	now := e.now()

	if !e.limiter.ShouldProcess(card, now) {
		metrics.ScansDropped.WithLabelValues("dedup").Inc()
		e.logger.Info("duplicate scan ignored", "card", card, "reader", reader)
		return
	}

	var (
		status  transaction.Status
		name    string
		privacy bool
	)

	// Blocked strictly precedes everything: a blocked card never opens
	// the door, even when it is also a provisioned user.
	switch {
	case e.users.IsBlocked(card):
		status, name = transaction.StatusBlocked, "Blocked"
	default:
		if u, ok := e.users.Get(card); ok {
			status, name, privacy = transaction.StatusGranted, u.Name, u.PrivacyProtected
			if err := e.relays.AutoPulse(reader); err != nil {
				e.logger.Error("relay actuation failed", "reader", reader, "error", err)
			}
		} else {
			status, name = transaction.StatusDenied, "Unknown"
		}
	}

	metrics.ScansTotal.WithLabelValues(string(status)).Inc()

	if !e.tracker.ShouldRecord(card, now) {
		metrics.ScansDropped.WithLabelValues("entry_exit").Inc()
		e.logger.Info("entry/exit gap not satisfied, transaction skipped", "card", card)
		return
	}

	if privacy {
		// Access already granted; nothing may be persisted anywhere.
		metrics.ScansDropped.WithLabelValues("privacy").Inc()
		e.logger.Info("privacy protected, transaction suppressed", "card", card)
		return
	}

	tx := transaction.Transaction{
		Name:      name,
		Card:      card,
		Reader:    reader,
		Status:    status,
		Timestamp: now.Unix(),
	}

	if err := e.log.Append(tx); err != nil {
		e.logger.Error("local transaction append failed", "error", err)
	}
	e.stats.Record(status)
	e.uploader.Enqueue(tx)
	e.remember(tx)
}

func (e *Engine) remember(tx transaction.Transaction) {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	e.recent = append(e.recent, tx)
	if len(e.recent) > recentBufferSize {
		e.recent = e.recent[len(e.recent)-recentBufferSize:]
	}
}

// Recent returns up to limit of the most recent transactions, newest
// first, from the in-memory buffer. It may return fewer than limit; the
// caller falls back to the log files.
func (e *Engine) Recent(limit int) []transaction.Transaction {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()

	n := len(e.recent)
	if n > limit {
		n = limit
	}
	out := make([]transaction.Transaction, 0, n)
	for i := len(e.recent) - 1; i >= len(e.recent)-n; i-- {
		out = append(out, e.recent[i])
	}
	return out
}

// BufferedCount reports how many transactions the recent buffer holds.
func (e *Engine) BufferedCount() int {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	return len(e.recent)
}

// SetScanDelay applies a runtime change to the dedup window.
func (e *Engine) SetScanDelay(d time.Duration) {
	e.limiter.SetDelay(d)
}

// ConfigureTracking applies a runtime change to the entry/exit gate.
func (e *Engine) ConfigureTracking(enabled bool, minGap time.Duration) {
	e.tracker.Configure(enabled, minGap)
}
