package wiegand

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maxpark/access-controller/internal/hw"
)

// ReaderPins is the D0/D1 line pair for one reader.
type ReaderPins struct {
	D0 int
	D1 int
}

// Manager owns the full set of decoders and supports the safe restart the
// config hot-reload path requires: stop every decoder, pause briefly so
// the lines settle, start fresh decoders with the new widths. In-flight
// partial frames are lost by design.
type Manager struct {
	chip   hw.Chip
	pins   []ReaderPins
	onScan ScanFunc
	logger *slog.Logger

	mu       sync.Mutex
	decoders []*Decoder
}

func NewManager(chip hw.Chip, pins []ReaderPins, onScan ScanFunc, logger *slog.Logger) *Manager {
	return &Manager{
		chip:   chip,
		pins:   pins,
		onScan: onScan,
		logger: logger,
	}
}

// Start creates one decoder per configured reader. bitsPerReader must have
// one entry per reader pin pair.
func (m *Manager) Start(bitsPerReader []int, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(bitsPerReader, timeout)
}

func (m *Manager) startLocked(bitsPerReader []int, timeout time.Duration) error {
	if len(bitsPerReader) != len(m.pins) {
		return fmt.Errorf("expected %d reader widths, got %d", len(m.pins), len(bitsPerReader))
	}
	if len(m.decoders) > 0 {
		return fmt.Errorf("decoders already running")
	}

	for i, p := range m.pins {
		d, err := NewDecoder(m.chip, i+1, p.D0, p.D1, bitsPerReader[i], timeout, m.onScan, m.logger)
		if err != nil {
			m.stopLocked()
			return err
		}
		m.decoders = append(m.decoders, d)
	}
	m.logger.Info("wiegand readers initialized", "readers", len(m.decoders), "bits", bitsPerReader, "timeout", timeout)
	return nil
}

// Stop tears down all decoders. Safe to call when not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	for _, d := range m.decoders {
		if err := d.Close(); err != nil {
			m.logger.Error("wiegand decoder close", "error", err)
		}
	}
	m.decoders = nil
}

// Restart is the hot-reload entry point. The caller (config store) holds
// its own lock across validate + persist + restart, so concurrent
// restarts cannot interleave.
func (m *Manager) Restart(bitsPerReader []int, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	time.Sleep(100 * time.Millisecond)
	return m.startLocked(bitsPerReader, timeout)
}

// Running reports whether the decoder set is currently active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.decoders) > 0
}
