package system

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/maxpark/access-controller/internal"
	"github.com/maxpark/access-controller/internal/transport"
)

// Handler serves the status, health and clock endpoints. The component
// and file probes are injected as closures so this package stays free of
// hardware and store dependencies.
type Handler struct {
	*transport.BaseHandler
	Monitor *Monitor
	Time    *TimeControl

	GPIOReady      func() bool
	ReadersRunning func() bool
	TxDirSize      func() int64
	CapGB          float64
	CleanupFrac    float64
	FilesPresent   func() map[string]bool
}

// Status is the unauthenticated overview the dashboard polls. Like the
// health check it returns a bare object, not the envelope.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	h.WriteJSON(w, http.StatusOK, map[string]any{
		"system":    "online",
		"timestamp": now.Format("2006-01-02T15:04:05"),
		"components": map[string]bool{
			"remote":       h.Monitor.RemoteOK(),
			"gpio":         h.GPIOReady(),
			"rfid_readers": h.ReadersRunning(),
			"internet":     h.Monitor.Online(),
		},
		"storage": map[string]any{
			"tx_dir_gb":        math.Round(float64(h.TxDirSize())/(1024*1024*1024)*1000) / 1000,
			"cap_gb":           h.CapGB,
			"cleanup_fraction": h.CleanupFrac,
		},
		"files": h.FilesPresent(),
		"temperature": map[string]any{
			"cpu_celsius": CPUTemperature(),
		},
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]bool{
		"internet": h.Monitor.Online(),
		"remote":   h.Monitor.RemoteOK(),
		"gpio":     h.GPIOReady(),
	})
}

func (h *Handler) GetSystemTime(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	h.WriteSuccess(w, map[string]any{
		"system_time": now.Format("2006-01-02T15:04:05"),
		"timestamp":   now.Unix(),
		"timezone":    now.Format("MST -0700"),
		"formatted":   now.Format("2006-01-02 15:04:05"),
	})
}

type setTimeDTO struct {
	Timestamp int64 `json:"timestamp"`
}

func (h *Handler) SetSystemTime(w http.ResponseWriter, r *http.Request) {
	var dto setTimeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.Timestamp == 0 {
		h.WriteError(w, http.StatusBadRequest, "Timestamp required")
		return
	}

	applied, err := h.Time.SetSystemTime(dto.Timestamp)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.Logger.Warn("system time updated", "time", applied, "by", internal.UsernameFromContext(r.Context()))
	h.WriteSuccess(w, map[string]any{
		"message":  "System time set to " + applied,
		"new_time": time.Unix(dto.Timestamp, 0).Format("2006-01-02T15:04:05"),
	})
}

type enableNTPDTO struct {
	Enable *bool `json:"enable"`
}

func (h *Handler) EnableNTP(w http.ResponseWriter, r *http.Request) {
	var dto enableNTPDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	enable := true
	if dto.Enable != nil {
		enable = *dto.Enable
	}

	if err := h.Time.EnableNTP(enable); err != nil {
		h.WriteAppError(w, err)
		return
	}
	action := "enabled"
	if !enable {
		action = "disabled"
	}
	h.Logger.Warn("ntp sync "+action, "by", internal.UsernameFromContext(r.Context()))
	h.WriteSuccess(w, map[string]any{"message": "NTP time synchronization " + action})
}
