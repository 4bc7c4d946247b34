package relay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maxpark/access-controller/internal/hw"
)

// State is the per-relay override state. Idle permits automatic pulses
// from the access pipeline; the held states suppress them until an admin
// command returns the relay to Idle.
type State string

const (
	StateIdle       State = "Idle"
	StateHeldOpen   State = "HeldOpen"
	StateHeldClosed State = "HeldClosed"
)

// DefaultPulse is how long an access-granted pulse keeps the relay
// energized.
const DefaultPulse = time.Second

type relayLine struct {
	mu    sync.Mutex
	out   hw.OutputLine
	state State
	seq   uint64 // invalidates the release of a superseded pulse
}

// Driver owns the relay outputs. All transitions go through here; nothing
// else touches the output lines.
type Driver struct {
	relays []*relayLine
	logger *slog.Logger
}

func NewDriver(chip hw.Chip, pins []int, logger *slog.Logger) (*Driver, error) {
	d := &Driver{logger: logger}
	for _, pin := range pins {
		out, err := chip.RequestOutput(pin)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("relay on line %d: %w", pin, err)
		}
		d.relays = append(d.relays, &relayLine{out: out, state: StateIdle})
	}
	return d, nil
}

func (d *Driver) Close() {
	for _, r := range d.relays {
		r.mu.Lock()
		_ = r.out.SetActive(false)
		_ = r.out.Close()
		r.mu.Unlock()
	}
}

// Count returns the number of relays under control.
func (d *Driver) Count() int { return len(d.relays) }

func (d *Driver) line(relay int) (*relayLine, error) {
	if relay < 1 || relay > len(d.relays) {
		return nil, fmt.Errorf("relay %d out of range", relay)
	}
	return d.relays[relay-1], nil
}

// State reports the override state of a relay (1-based).
func (d *Driver) State(relay int) (State, error) {
	r, err := d.line(relay)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

// AutoPulse is the access pipeline's actuation. It is ignored while the
// relay is held, and the caller never blocks: the pulse runs on its own
// short-lived goroutine.
func (d *Driver) AutoPulse(relay int) error {
	r, err := d.line(relay)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.state != StateIdle {
		st := r.state
		r.mu.Unlock()
		d.logger.Info("automatic pulse suppressed by hold", "relay", relay, "state", string(st))
		return nil
	}
	r.mu.Unlock()
	d.startPulse(r, relay, DefaultPulse)
	return nil
}

// Pulse is the admin pulse: it clears any hold, returns the relay to Idle
// and fires a pulse.
func (d *Driver) Pulse(relay int, duration time.Duration) error {
	r, err := d.line(relay)
	if err != nil {
		return err
	}
	if duration <= 0 {
		duration = DefaultPulse
	}
	r.mu.Lock()
	r.state = StateIdle
	r.mu.Unlock()
	d.startPulse(r, relay, duration)
	return nil
}

func (d *Driver) startPulse(r *relayLine, relay int, duration time.Duration) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	if err := r.out.SetActive(true); err != nil {
		d.logger.Error("relay drive failed", "relay", relay, "error", err)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	go func() {
		time.Sleep(duration)
		r.mu.Lock()
		defer r.mu.Unlock()
		// A hold or a newer pulse issued meanwhile owns the line now.
		if r.seq != seq || r.state != StateIdle {
			return
		}
		if err := r.out.SetActive(false); err != nil {
			d.logger.Error("relay release failed", "relay", relay, "error", err)
		}
	}()
}

// HoldOpen latches the relay energized until Normalize or an admin pulse.
func (d *Driver) HoldOpen(relay int) error {
	r, err := d.line(relay)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.state = StateHeldOpen
	return r.out.SetActive(true)
}

// HoldClosed latches the relay released.
func (d *Driver) HoldClosed(relay int) error {
	r, err := d.line(relay)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.state = StateHeldClosed
	return r.out.SetActive(false)
}

// Normalize releases the relay and returns it to Idle.
func (d *Driver) Normalize(relay int) error {
	r, err := d.line(relay)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.state = StateIdle
	return r.out.SetActive(false)
}
