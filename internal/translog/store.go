// Package translog is the append-only local transaction log: one JSON
// Lines file per UTC day under the transactions directory.
package translog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
)

const filePrefix = "transactions_"
const fileSuffix = ".jsonl"

// Store serializes all writes, rotation and eviction under one mutex.
// Append never touches the network; the upload pipeline reads its own
// copy of the record from memory.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transactions dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) fileForDay(day string) string {
	return filepath.Join(s.dir, filePrefix+day+fileSuffix)
}

// TodayFile returns the path the next append would go to.
func (s *Store) TodayFile() string {
	return s.fileForDay(time.Now().UTC().Format("20060102"))
}

// Append writes the transaction as one compact JSON line to the day file
// derived from the transaction's own timestamp, and returns once the line
// has been handed to the OS.
func (s *Store) Append(tx transaction.Transaction) error {
	line, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.fileForDay(tx.Day()), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

func (s *Store) dayFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names) // date-named files sort chronologically
	return names, nil
}

// Tail returns up to limit transactions, newest first. Files are visited
// newest-first and each file is read back to front. Unparseable lines
// (torn tail writes) are skipped.
func (s *Store) Tail(limit int) []transaction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil
	}

	names, err := s.dayFiles()
	if err != nil {
		s.logger.Error("transaction dir unreadable", "error", err)
		return nil
	}

	var out []transaction.Transaction
	for i := len(names) - 1; i >= 0 && len(out) < limit; i-- {
		lines, err := readLines(filepath.Join(s.dir, names[i]))
		if err != nil {
			s.logger.Error("transaction file unreadable", "file", names[i], "error", err)
			continue
		}
		for j := len(lines) - 1; j >= 0 && len(out) < limit; j-- {
			var tx transaction.Transaction
			if err := json.Unmarshal([]byte(lines[j]), &tx); err != nil {
				continue
			}
			out = append(out, tx)
		}
	}
	return out
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// DirSize returns the total bytes of all day files.
func (s *Store) DirSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirSizeLocked()
}

func (s *Store) dirSizeLocked() int64 {
	var total int64
	names, err := s.dayFiles()
	if err != nil {
		return 0
	}
	for _, name := range names {
		if info, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Evict deletes day files oldest-first until at least freeTarget bytes are
// gone, preserving the current day's file when any other file can be
// deleted instead. Returns the bytes actually freed.
func (s *Store) Evict(freeTarget int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.dayFiles()
	if err != nil {
		s.logger.Error("eviction scan failed", "error", err)
		return 0
	}
	today := filepath.Base(s.TodayFile())

	var freed int64
	for _, name := range names {
		if freed >= freeTarget {
			break
		}
		if name == today {
			continue
		}
		path := filepath.Join(s.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Error("eviction remove failed", "file", name, "error", err)
			continue
		}
		freed += info.Size()
		s.logger.Info("evicted transaction file", "file", name, "bytes", info.Size())
	}
	return freed
}
