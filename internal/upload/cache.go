package upload

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/maxpark/access-controller/internal/atomicfile"
	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
	"github.com/maxpark/access-controller/internal/metrics"
)

// Cache is the crash-safe store of transactions the remote has not
// confirmed. Appends go straight to disk; rewrites (after a drainer pass)
// replace the whole file atomically. An entry here always also exists in
// the local transaction log.
type Cache struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewCache(path string, logger *slog.Logger) *Cache {
	c := &Cache{path: path, logger: logger}
	metrics.FailedCacheDepth.Set(float64(len(c.Load())))
	return c
}

// Append adds one transaction to the end of the cache file.
func (c *Cache) Append(tx transaction.Transaction) error {
	line, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	metrics.FailedCacheDepth.Inc()
	c.logger.Info("transaction cached for retry", "card", tx.Card, "status", string(tx.Status))
	return nil
}

// Load returns every parseable entry. Corrupt lines are logged and
// skipped so one torn write cannot wedge the drainer.
func (c *Cache) Load() []transaction.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked()
}

func (c *Cache) loadLocked() []transaction.Transaction {
	f, err := os.Open(c.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []transaction.Transaction
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var tx transaction.Transaction
		if err := json.Unmarshal([]byte(line), &tx); err != nil {
			c.logger.Error("invalid line in failed-upload cache", "error", err)
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Rewrite replaces the first loaded entries of the cache with the
// still-failing set. Entries appended after the Load that started the
// drain pass sit past the loaded mark and are kept; an empty result
// deletes the file.
func (c *Cache) Rewrite(remaining []transaction.Transaction, loaded int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.loadLocked()
	if loaded > len(current) {
		loaded = len(current)
	}
	keep := make([]transaction.Transaction, 0, len(remaining)+len(current)-loaded)
	keep = append(keep, remaining...)
	keep = append(keep, current[loaded:]...)

	if len(keep) == 0 {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		metrics.FailedCacheDepth.Set(0)
		return nil
	}

	var buf bytes.Buffer
	for _, tx := range keep {
		line, err := json.Marshal(tx)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := atomicfile.WriteBytes(c.path, buf.Bytes()); err != nil {
		return err
	}
	metrics.FailedCacheDepth.Set(float64(len(keep)))
	return nil
}

// Exists reports whether the cache file is present on disk.
func (c *Cache) Exists() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := os.Stat(c.path)
	return err == nil
}
