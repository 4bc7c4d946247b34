// Package runtimeconf manages config.json: the runtime-tunable settings
// the dashboard can change without redeploying, including the Wiegand
// widths whose change forces a decoder restart.
package runtimeconf

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/maxpark/access-controller/internal"
	"github.com/maxpark/access-controller/internal/atomicfile"
)

// EntryExit configures the entry/exit transaction gate.
type EntryExit struct {
	Enabled       bool `json:"enabled"`
	MinGapSeconds int  `json:"min_gap_seconds"`
}

// Runtime is the persisted shape of config.json. Unknown keys in the file
// are ignored on load for forward compatibility.
type Runtime struct {
	WiegandBits      map[string]int `json:"wiegand_bits"`
	WiegandTimeoutMS int            `json:"wiegand_timeout_ms"`
	ScanDelaySeconds int            `json:"scan_delay_seconds"`
	EntryExit        EntryExit      `json:"entry_exit_tracking"`
	EntityID         string         `json:"entity_id"`
	BasicAuthEnabled bool           `json:"basic_auth_enabled"`
}

var readerKeys = []string{"reader_1", "reader_2", "reader_3"}

// BitsList returns the per-reader widths in reader order.
func (r Runtime) BitsList() []int {
	out := make([]int, 0, len(readerKeys))
	for _, k := range readerKeys {
		out = append(out, r.WiegandBits[k])
	}
	return out
}

func (r Runtime) Timeout() time.Duration {
	return time.Duration(r.WiegandTimeoutMS) * time.Millisecond
}

func (r Runtime) clone() Runtime {
	out := r
	out.WiegandBits = make(map[string]int, len(r.WiegandBits))
	for k, v := range r.WiegandBits {
		out.WiegandBits[k] = v
	}
	return out
}

func (r Runtime) validate() error {
	for _, k := range readerKeys {
		if bits := r.WiegandBits[k]; bits != 26 && bits != 34 {
			return internal.NewValidationError(fmt.Sprintf("Invalid bits for %s. Must be 26 or 34.", k))
		}
	}
	if r.WiegandTimeoutMS < 10 || r.WiegandTimeoutMS > 100 {
		return internal.NewValidationError("wiegand_timeout_ms must be between 10 and 100")
	}
	if r.ScanDelaySeconds < 1 || r.ScanDelaySeconds > 300 {
		return internal.NewValidationError("scan_delay_seconds must be between 1 and 300")
	}
	if r.EntryExit.MinGapSeconds < 1 || r.EntryExit.MinGapSeconds > 300 {
		return internal.NewValidationError("entry_exit_tracking.min_gap_seconds must be between 1 and 300")
	}
	if r.EntityID == "" {
		return internal.NewValidationError("entity_id is required")
	}
	return nil
}

// DecoderRestarter is the wiegand manager's restart hook.
type DecoderRestarter interface {
	Restart(bitsPerReader []int, timeout time.Duration) error
}

// EngineTuner receives live updates that do not need a decoder restart.
type EngineTuner interface {
	SetScanDelay(d time.Duration)
	ConfigureTracking(enabled bool, minGap time.Duration)
}

// Store holds the current runtime config. The mutex is held across
// validate + persist + decoder restart so concurrent updates cannot
// interleave a half-applied state.
type Store struct {
	mu      sync.Mutex
	path    string
	current Runtime
	logger  *slog.Logger

	restarter DecoderRestarter
	tuner     EngineTuner
}

// Defaults builds the boot config from the environment-level settings.
func Defaults(bits [3]int, timeoutMS, scanDelay int, entityID string) Runtime {
	return Runtime{
		WiegandBits: map[string]int{
			"reader_1": bits[0],
			"reader_2": bits[1],
			"reader_3": bits[2],
		},
		WiegandTimeoutMS: timeoutMS,
		ScanDelaySeconds: scanDelay,
		EntryExit:        EntryExit{Enabled: false, MinGapSeconds: 300},
		EntityID:         entityID,
	}
}

// NewStore loads config.json, filling any missing keys from defaults. A
// missing or unreadable file leaves the defaults in force.
func NewStore(path string, defaults Runtime, logger *slog.Logger) *Store {
	current := defaults.clone()
	if err := atomicfile.ReadJSON(path, &current); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("config.json unreadable, using defaults", "error", err)
		current = defaults.clone()
	}
	for _, k := range readerKeys {
		if _, ok := current.WiegandBits[k]; !ok {
			current.WiegandBits[k] = defaults.WiegandBits[k]
		}
	}
	return &Store{path: path, current: current, logger: logger}
}

// Bind attaches the restart and tuning hooks; done after construction
// because the decoders are built with the scan handler that itself needs
// the engine.
func (s *Store) Bind(restarter DecoderRestarter, tuner EngineTuner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarter = restarter
	s.tuner = tuner
}

// Get returns a defensive snapshot.
func (s *Store) Get() Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// EntityID is the supplier the upload pipeline reads per document.
func (s *Store) EntityID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.EntityID
}

// BasicAuthEnabled is the supplier the auth middleware consults.
func (s *Store) BasicAuthEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.BasicAuthEnabled
}

// Update merges raw JSON over the current config, validates, persists
// atomically and applies the change. When only the decoder restart fails
// the new config stays persisted and the returned warning is non-empty.
func (s *Store) Update(raw json.RawMessage) (warning string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	if err := json.Unmarshal(raw, &next); err != nil {
		return "", internal.NewValidationError("invalid config payload")
	}
	if err := next.validate(); err != nil {
		return "", err
	}

	wiegandChanged := next.WiegandTimeoutMS != s.current.WiegandTimeoutMS
	for _, k := range readerKeys {
		if next.WiegandBits[k] != s.current.WiegandBits[k] {
			wiegandChanged = true
		}
	}

	if err := atomicfile.WriteJSON(s.path, next); err != nil {
		return "", internal.NewInternalError("failed to persist config", err)
	}
	s.current = next

	if s.tuner != nil {
		s.tuner.SetScanDelay(time.Duration(next.ScanDelaySeconds) * time.Second)
		s.tuner.ConfigureTracking(next.EntryExit.Enabled, time.Duration(next.EntryExit.MinGapSeconds)*time.Second)
	}

	if wiegandChanged && s.restarter != nil {
		s.logger.Info("wiegand settings changed, restarting decoders", "bits", next.BitsList(), "timeout_ms", next.WiegandTimeoutMS)
		if rerr := s.restarter.Restart(next.BitsList(), next.Timeout()); rerr != nil {
			s.logger.Error("decoder restart failed", "error", rerr)
			return fmt.Sprintf("Config saved but reader reinit failed: %v", rerr), nil
		}
	}
	return "", nil
}
