package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/maxpark/access-controller/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Driver *Driver
}

func NewHandler(driver *Driver) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Driver:      driver,
	}
}

type relayDTO struct {
	Relay   int     `json:"relay"`
	Action  string  `json:"action"`
	Seconds float64 `json:"seconds,omitempty"`
}

func (h *Handler) Operate(w http.ResponseWriter, r *http.Request) {
	var dto relayDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.Relay == 0 {
		dto.Relay = 1
	}
	if dto.Action == "" {
		dto.Action = "normal"
	}

	var err error
	switch dto.Action {
	case "pulse":
		err = h.Driver.Pulse(dto.Relay, time.Duration(dto.Seconds*float64(time.Second)))
	case "open_hold":
		err = h.Driver.HoldOpen(dto.Relay)
	case "close_hold":
		err = h.Driver.HoldClosed(dto.Relay)
	case "normal":
		err = h.Driver.Normalize(dto.Relay)
	default:
		h.WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", dto.Action))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.Logger.Info("relay command", "relay", dto.Relay, "action", dto.Action)
	h.WriteSuccess(w, map[string]any{"message": fmt.Sprintf("relay %d:%s", dto.Relay, dto.Action)})
}
