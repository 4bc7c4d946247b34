// Package system covers the appliance-level surface: connectivity and
// health probes, CPU temperature and system clock control.
package system

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	probeURL     = "http://clients3.google.com/generate_204"
	probeTimeout = 3 * time.Second
	probeCache   = 30 * time.Second

	thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"
)

// cachedProbe rate-limits an expensive boolean check. Callers on the
// upload path ask every few seconds; the probe itself runs at most once
// per cache window.
type cachedProbe struct {
	mu    sync.Mutex
	ttl   time.Duration
	last  time.Time
	value bool
	probe func() bool
}

func (c *cachedProbe) get() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.last) < c.ttl {
		return c.value
	}
	c.value = c.probe()
	c.last = time.Now()
	return c.value
}

// Monitor answers "are we online" and "is the remote store reachable"
// from cached probes.
type Monitor struct {
	internet cachedProbe
	remote   cachedProbe
	logger   *slog.Logger
}

// NewMonitor builds a monitor. remoteCheck may be nil when no remote
// store is configured; RemoteOK then always reports false.
func NewMonitor(remoteCheck func(ctx context.Context) error, logger *slog.Logger) *Monitor {
	m := &Monitor{logger: logger}
	m.internet.ttl = probeCache
	m.internet.probe = m.probeInternet
	m.remote.ttl = probeCache
	m.remote.probe = func() bool { return false }
	if remoteCheck != nil {
		m.remote.probe = func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
			defer cancel()
			return remoteCheck(ctx) == nil
		}
	}
	return m
}

func (m *Monitor) probeInternet() bool {
	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Get(probeURL)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Online reports internet reachability, at most one probe per cache
// window.
func (m *Monitor) Online() bool { return m.internet.get() }

// RemoteOK reports whether the remote store answered its health check.
func (m *Monitor) RemoteOK() bool { return m.remote.get() }

// CPUTemperature reads the SoC temperature from the thermal zone,
// rounded to one decimal. Returns nil on hosts without the sysfs file.
func CPUTemperature() *float64 {
	raw, err := os.ReadFile(thermalZonePath)
	if err != nil {
		return nil
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return nil
	}
	celsius := math.Round(milli/1000*10) / 10
	return &celsius
}
