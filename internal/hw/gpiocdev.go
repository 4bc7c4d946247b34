package hw

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// cdevChip drives lines through the Linux GPIO character device. Relay
// boards on this hardware are active-low: driving the line low energizes
// the relay.
type cdevChip struct {
	name string

	// one process-wide lock around line requests and output writes; the
	// kernel serializes per line but relay pulses and admin commands can
	// race on the same line.
	mu sync.Mutex
}

func OpenChip(name string) (Chip, error) {
	c, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	// The chip handle is only needed to prove the device exists; lines are
	// requested by name below.
	if err := c.Close(); err != nil {
		return nil, fmt.Errorf("close gpio chip %s: %w", name, err)
	}
	return &cdevChip{name: name}, nil
}

func (c *cdevChip) WatchFallingEdges(offset int, fn EdgeFunc) (InputLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := gpiocdev.RequestLine(c.name, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			fn(time.Now())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("request input line %d: %w", offset, err)
	}
	return &cdevInput{line: l}, nil
}

func (c *cdevChip) RequestOutput(offset int) (OutputLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Relays idle released: active-low means initial value 1.
	l, err := gpiocdev.RequestLine(c.name, offset, gpiocdev.AsOutput(1))
	if err != nil {
		return nil, fmt.Errorf("request output line %d: %w", offset, err)
	}
	return &cdevOutput{chip: c, line: l}, nil
}

func (c *cdevChip) Close() error { return nil }

type cdevInput struct {
	line *gpiocdev.Line
}

func (i *cdevInput) Close() error { return i.line.Close() }

type cdevOutput struct {
	chip *cdevChip
	line *gpiocdev.Line
}

func (o *cdevOutput) SetActive(active bool) error {
	o.chip.mu.Lock()
	defer o.chip.mu.Unlock()
	v := 1
	if active {
		v = 0
	}
	return o.line.SetValue(v)
}

func (o *cdevOutput) Close() error { return o.line.Close() }
