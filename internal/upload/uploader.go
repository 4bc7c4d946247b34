// Package upload owns the path from an access decision to the remote
// document store: a bounded hot-path channel, a crash-safe failed-upload
// cache, and a background drainer. A blocked remote can never back-
// pressure the access decision: the worst case on the hot path is an
// append to the local cache file.
package upload

import (
	"context"
	"log/slog"
	"time"

	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
	"github.com/maxpark/access-controller/internal/metrics"
)

// RemoteStore is the remote document-store contract. Implementations
// attach entity_id and the remote creation timestamp; the caller only
// supplies the local transaction.
type RemoteStore interface {
	Put(ctx context.Context, tx transaction.Transaction) error
}

const queueDepth = 256

// Uploader is the single hot-path consumer. remote may be nil (remote
// disabled); online is the cached reachability probe.
type Uploader struct {
	queue   chan transaction.Transaction
	remote  RemoteStore
	online  func() bool
	cache   *Cache
	timeout time.Duration
	logger  *slog.Logger
}

func NewUploader(remote RemoteStore, online func() bool, cache *Cache, timeout time.Duration, logger *slog.Logger) *Uploader {
	return &Uploader{
		queue:   make(chan transaction.Transaction, queueDepth),
		remote:  remote,
		online:  online,
		cache:   cache,
		timeout: timeout,
		logger:  logger,
	}
}

// Enqueue hands a transaction to the uploader without blocking. If the
// queue is full the record goes straight to the cache; it is already in
// the local log either way.
func (u *Uploader) Enqueue(tx transaction.Transaction) {
	select {
	case u.queue <- tx:
	default:
		u.logger.Warn("upload queue full, caching directly", "card", tx.Card)
		if err := u.cache.Append(tx); err != nil {
			u.logger.Error("cache append failed", "error", err)
		}
	}
}

// Run consumes the queue until ctx is cancelled.
func (u *Uploader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx := <-u.queue:
			u.process(ctx, tx)
		}
	}
}

func (u *Uploader) process(ctx context.Context, tx transaction.Transaction) {
	if u.remote == nil || !u.online() {
		metrics.UploadsTotal.WithLabelValues("offline").Inc()
		if err := u.cache.Append(tx); err != nil {
			u.logger.Error("cache append failed", "error", err)
		}
		return
	}

	putCtx, cancel := context.WithTimeout(ctx, u.timeout)
	err := u.remote.Put(putCtx, tx)
	cancel()
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		u.logger.Warn("remote upload failed, caching", "card", tx.Card, "error", err)
		if cerr := u.cache.Append(tx); cerr != nil {
			u.logger.Error("cache append failed", "error", cerr)
		}
		return
	}
	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	u.logger.Info("transaction uploaded", "card", tx.Card, "status", string(tx.Status))
}
