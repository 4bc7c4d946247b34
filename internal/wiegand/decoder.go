package wiegand

import (
	"fmt"
	"log/slog"
	"math/bits"
	"strconv"
	"sync"
	"time"

	"github.com/maxpark/access-controller/internal/hw"
	"github.com/maxpark/access-controller/internal/metrics"
)

// ScanFunc receives the decoded card number for a completed, parity-valid
// frame. It runs synchronously on the edge-delivery goroutine, so a slow
// handler delays edge processing for that reader; the kernel event buffer
// absorbs the bits of a frame arriving meanwhile.
type ScanFunc func(card string, reader int)

// Decoder assembles one reader's D0/D1 falling edges into frames. A pulse
// on D0 is a 0 bit, on D1 a 1 bit. A frame completes when the configured
// bit count has arrived; an inter-bit gap longer than the timeout discards
// the partial frame.
type Decoder struct {
	reader  int
	bits    int
	timeout time.Duration
	onScan  ScanFunc
	logger  *slog.Logger

	mu    sync.Mutex
	value uint64
	count int
	last  time.Time

	d0 hw.InputLine
	d1 hw.InputLine
}

func NewDecoder(chip hw.Chip, reader, d0Pin, d1Pin, frameBits int, timeout time.Duration, onScan ScanFunc, logger *slog.Logger) (*Decoder, error) {
	if frameBits != 26 && frameBits != 34 {
		return nil, fmt.Errorf("reader %d: unsupported frame width %d", reader, frameBits)
	}

	d := &Decoder{
		reader:  reader,
		bits:    frameBits,
		timeout: timeout,
		onScan:  onScan,
		logger:  logger,
	}

	var err error
	d.d0, err = chip.WatchFallingEdges(d0Pin, func(at time.Time) { d.edge(0, at) })
	if err != nil {
		return nil, fmt.Errorf("reader %d: watch d0: %w", reader, err)
	}
	d.d1, err = chip.WatchFallingEdges(d1Pin, func(at time.Time) { d.edge(1, at) })
	if err != nil {
		d.d0.Close()
		return nil, fmt.Errorf("reader %d: watch d1: %w", reader, err)
	}
	return d, nil
}

// Close releases both GPIO lines. Any in-flight partial frame is dropped.
func (d *Decoder) Close() error {
	err0 := d.d0.Close()
	err1 := d.d1.Close()
	if err0 != nil {
		return err0
	}
	return err1
}

func (d *Decoder) edge(bit uint64, at time.Time) {
	d.mu.Lock()

	if !d.last.IsZero() && at.Sub(d.last) > d.timeout {
		d.value, d.count = 0, 0
	}
	d.value = d.value<<1 | bit
	d.count++
	d.last = at

	if d.count < d.bits {
		d.mu.Unlock()
		return
	}

	frame := d.value
	width := d.bits
	d.value, d.count = 0, 0
	d.mu.Unlock()

	card, err := ExtractCard(width, frame)
	if err != nil {
		metrics.FramesInvalid.Inc()
		d.logger.Warn("wiegand frame discarded", "reader", d.reader, "bits", width, "error", err)
		return
	}
	d.onScan(card, d.reader)
}

// ExtractCard validates the frame's parity bits and returns the decimal
// card number from the data bits between them.
//
// 26-bit: leading bit is even parity over data bits 1..12, trailing bit is
// odd parity over data bits 13..24. 34-bit: even over 1..16, odd over
// 17..32.
func ExtractCard(width int, frame uint64) (string, error) {
	if width != 26 && width != 34 {
		return "", fmt.Errorf("unsupported frame width %d", width)
	}

	half := (width - 2) / 2

	// bit positions counted from the most significant (first received).
	bitAt := func(pos int) uint64 {
		return (frame >> (width - 1 - pos)) & 1
	}

	leading := bitAt(0)
	trailing := bitAt(width - 1)

	firstHalf := (frame >> (width - 1 - half)) & ((1 << half) - 1)
	secondHalf := (frame >> 1) & ((1 << half) - 1)

	if uint64(bits.OnesCount64(firstHalf))%2 != leading {
		return "", fmt.Errorf("even parity mismatch")
	}
	if (uint64(bits.OnesCount64(secondHalf))+trailing)%2 != 1 {
		return "", fmt.Errorf("odd parity mismatch")
	}

	data := (frame >> 1) & ((1 << (width - 2)) - 1)
	return strconv.FormatUint(data, 10), nil
}
