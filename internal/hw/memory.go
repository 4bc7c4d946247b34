package hw

import (
	"fmt"
	"sync"
	"time"
)

// MemoryChip is the in-process Chip used by tests and by deployments that
// run without hardware (GPIO_ENABLED=false). Edges are injected with Fire;
// output levels are observable with Active.
type MemoryChip struct {
	mu      sync.Mutex
	inputs  map[int]EdgeFunc
	outputs map[int]bool
}

func NewMemoryChip() *MemoryChip {
	return &MemoryChip{
		inputs:  make(map[int]EdgeFunc),
		outputs: make(map[int]bool),
	}
}

func (c *MemoryChip) WatchFallingEdges(offset int, fn EdgeFunc) (InputLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inputs[offset]; busy {
		return nil, fmt.Errorf("line %d already requested", offset)
	}
	c.inputs[offset] = fn
	return &memoryInput{chip: c, offset: offset}, nil
}

func (c *MemoryChip) RequestOutput(offset int) (OutputLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[offset] = false
	return &memoryOutput{chip: c, offset: offset}, nil
}

func (c *MemoryChip) Close() error { return nil }

// Fire injects a falling edge on the given line.
func (c *MemoryChip) Fire(offset int, at time.Time) {
	c.mu.Lock()
	fn := c.inputs[offset]
	c.mu.Unlock()
	if fn != nil {
		fn(at)
	}
}

// Active reports whether the output at offset is currently energized.
func (c *MemoryChip) Active(offset int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputs[offset]
}

type memoryInput struct {
	chip   *MemoryChip
	offset int
}

func (i *memoryInput) Close() error {
	i.chip.mu.Lock()
	defer i.chip.mu.Unlock()
	delete(i.chip.inputs, i.offset)
	return nil
}

type memoryOutput struct {
	chip   *MemoryChip
	offset int
}

func (o *memoryOutput) SetActive(active bool) error {
	o.chip.mu.Lock()
	defer o.chip.mu.Unlock()
	o.chip.outputs[o.offset] = active
	return nil
}

func (o *memoryOutput) Close() error { return nil }
