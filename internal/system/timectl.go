package system

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/maxpark/access-controller/internal"
)

const execTimeout = 5 * time.Second

// TimeControl adjusts the system clock through timedatectl, falling back
// to date -s on hosts without systemd. Hosts with neither tool report
// the feature as unavailable.
type TimeControl struct {
	logger *slog.Logger

	// overridable in tests
	lookPath func(string) (string, error)
	runner   func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewTimeControl(logger *slog.Logger) *TimeControl {
	return &TimeControl{
		logger:   logger,
		lookPath: exec.LookPath,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

func (t *TimeControl) run(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	out, err := t.runner(ctx, name, args...)
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("%s: %s", name, detail)
	}
	return nil
}

// SetSystemTime sets the clock to the given Unix timestamp and returns
// the formatted time that was applied.
func (t *TimeControl) SetSystemTime(unix int64) (string, error) {
	timeStr := time.Unix(unix, 0).Format("2006-01-02 15:04:05")

	if _, err := t.lookPath("timedatectl"); err == nil {
		if err := t.run("timedatectl", "set-time", timeStr); err == nil {
			return timeStr, nil
		} else {
			t.logger.Warn("timedatectl set-time failed, trying date", "error", err)
		}
	}
	if _, err := t.lookPath("date"); err != nil {
		return "", internal.NewNotImplementedError("Time control is not available on this system")
	}
	if err := t.run("date", "-s", timeStr); err != nil {
		return "", internal.NewInternalError(fmt.Sprintf("Failed to set system time: %v. Ensure permissions are configured.", err), err)
	}
	return timeStr, nil
}

// EnableNTP toggles NTP synchronization via timedatectl.
func (t *TimeControl) EnableNTP(enable bool) error {
	if _, err := t.lookPath("timedatectl"); err != nil {
		return internal.NewNotImplementedError("NTP control is not available on this system")
	}
	arg := "false"
	if enable {
		arg = "true"
	}
	if err := t.run("timedatectl", "set-ntp", arg); err != nil {
		return internal.NewInternalError(fmt.Sprintf("Failed to configure NTP: %v", err), err)
	}
	return nil
}
