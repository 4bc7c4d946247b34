package upload

import (
	"context"
	"log/slog"
	"time"

	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
	"github.com/maxpark/access-controller/internal/metrics"
)

// Drainer retries the failed-upload cache whenever the remote is
// reachable. It never shares the uploader's channel: its only input is
// the cache file, so work survives restarts and a stuck remote leaves the
// hot path untouched.
type Drainer struct {
	cache  *Cache
	remote RemoteStore
	online func() bool
	logger *slog.Logger

	// Schedule: first pass after InitialDelay, then OnlineInterval while
	// passes find the remote reachable and OfflineInterval while they
	// don't. BetweenUploads spaces requests inside one pass.
	InitialDelay    time.Duration
	OnlineInterval  time.Duration
	OfflineInterval time.Duration
	BetweenUploads  time.Duration
	PutTimeout      time.Duration
}

func NewDrainer(cache *Cache, remote RemoteStore, online func() bool, logger *slog.Logger) *Drainer {
	return &Drainer{
		cache:           cache,
		remote:          remote,
		online:          online,
		logger:          logger,
		InitialDelay:    time.Minute,
		OnlineInterval:  5 * time.Minute,
		OfflineInterval: 10 * time.Minute,
		BetweenUploads:  500 * time.Millisecond,
		PutTimeout:      5 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) error {
	if !sleepCtx(ctx, d.InitialDelay) {
		return ctx.Err()
	}

	for {
		wait := d.OfflineInterval
		if d.remote != nil && d.online() {
			d.Pass(ctx)
			wait = d.OnlineInterval
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

// Pass loads the cache, attempts each entry once, and rewrites the cache
// with whatever still fails. Exported for tests and for a manual kick.
func (d *Drainer) Pass(ctx context.Context) {
	entries := d.cache.Load()
	if len(entries) == 0 {
		return
	}
	d.logger.Info("draining failed-upload cache", "entries", len(entries))

	var stillFailing []transaction.Transaction
	uploaded := 0
	for i, tx := range entries {
		putCtx, cancel := context.WithTimeout(ctx, d.PutTimeout)
		err := d.remote.Put(putCtx, tx)
		cancel()
		if err != nil {
			metrics.UploadsTotal.WithLabelValues("failed").Inc()
			d.logger.Warn("cached transaction still failing", "card", tx.Card, "error", err)
			stillFailing = append(stillFailing, tx)
		} else {
			metrics.UploadsTotal.WithLabelValues("ok").Inc()
			uploaded++
		}

		if ctx.Err() != nil {
			// keep everything not yet attempted
			stillFailing = append(stillFailing, entries[i+1:]...)
			break
		}
		if i < len(entries)-1 {
			if !sleepCtx(ctx, d.BetweenUploads) {
				stillFailing = append(stillFailing, entries[i+1:]...)
				break
			}
		}
	}

	if err := d.cache.Rewrite(stillFailing, len(entries)); err != nil {
		d.logger.Error("cache rewrite failed", "error", err)
		return
	}
	d.logger.Info("drain pass complete", "uploaded", uploaded, "remaining", len(stillFailing))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
