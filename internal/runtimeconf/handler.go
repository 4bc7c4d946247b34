package runtimeconf

import (
	"encoding/json"
	"net/http"

	"github.com/maxpark/access-controller/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Store:       store,
	}
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.WriteSuccess(w, map[string]any{"config": h.Store.Get()})
}

type updateConfigDTO struct {
	Config json.RawMessage `json:"config"`
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var dto updateConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || len(dto.Config) == 0 {
		h.WriteError(w, http.StatusBadRequest, "config object required")
		return
	}

	warning, err := h.Store.Update(dto.Config)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	if warning != "" {
		h.WriteWarning(w, warning)
		return
	}
	h.WriteSuccess(w, map[string]any{"message": "Configuration updated"})
}
