package user

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/maxpark/access-controller/internal/transport"
)

// PasswordVerifier re-checks the admin password for sensitive mutations.
// toggle_privacy suppresses audit records, so a live session alone is not
// enough to flip it.
type PasswordVerifier interface {
	VerifyPassword(password string) bool
}

type Handler struct {
	*transport.BaseHandler
	Store    *Store
	Verifier PasswordVerifier
}

func NewHandler(store *Store, verifier PasswordVerifier) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Store:       store,
		Verifier:    verifier,
	}
}

func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.Store.List())
}

type addUserDTO struct {
	CardNumber string `json:"card_number"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	RefID      string `json:"ref_id"`
}

func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	var dto addUserDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.Store.Add(User{
		CardNumber: strings.TrimSpace(dto.CardNumber),
		ID:         dto.ID,
		Name:       dto.Name,
		RefID:      dto.RefID,
	})
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteSuccess(w, nil)
}

type cardDTO struct {
	CardNumber string `json:"card_number"`
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var dto cardDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Store.Delete(strings.TrimSpace(dto.CardNumber)); err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteSuccess(w, nil)
}

func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	var dto cardDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Store.SetBlocked(strings.TrimSpace(dto.CardNumber), blocked); err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteSuccess(w, nil)
}

type togglePrivacyDTO struct {
	CardNumber string `json:"card_number"`
	Password   string `json:"password"`
	Enable     *bool  `json:"enable"`
}

func (h *Handler) TogglePrivacy(w http.ResponseWriter, r *http.Request) {
	var dto togglePrivacyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	card := strings.TrimSpace(dto.CardNumber)
	enable := true
	if dto.Enable != nil {
		enable = *dto.Enable
	}

	if !h.Verifier.VerifyPassword(dto.Password) {
		h.Logger.Warn("privacy toggle rejected: password mismatch", "card", card)
		h.WriteError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	if err := h.Store.SetPrivacy(card, enable); err != nil {
		h.WriteAppError(w, err)
		return
	}

	u, _ := h.Store.Get(card)
	action := "enabled"
	if !enable {
		action = "disabled"
	}
	h.Logger.Warn("privacy protection changed", "card", card, "name", u.Name, "action", action)
	h.WriteSuccess(w, map[string]any{
		"message": fmt.Sprintf("Privacy protection %s for %s", action, u.Name),
	})
}
