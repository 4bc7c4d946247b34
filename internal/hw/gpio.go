// Package hw isolates GPIO access behind small interfaces so the decoder
// and relay logic can run against an in-memory chip in tests and against
// the character-device chip on the appliance.
package hw

import "time"

// EdgeFunc is invoked for every falling edge on a watched line. It runs on
// the event-delivery goroutine and must return quickly.
type EdgeFunc func(at time.Time)

// InputLine is a claimed edge-watched input. Closing it stops delivery.
type InputLine interface {
	Close() error
}

// OutputLine is a claimed digital output. SetActive(true) drives the
// relay's energized state regardless of the underlying polarity.
type OutputLine interface {
	SetActive(active bool) error
	Close() error
}

// Chip hands out lines by offset. All physical access is serialized by the
// implementation.
type Chip interface {
	WatchFallingEdges(offset int, fn EdgeFunc) (InputLine, error)
	RequestOutput(offset int) (OutputLine, error)
	Close() error
}
