package session

import (
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/maxpark/access-controller/internal"
	"github.com/maxpark/access-controller/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service

	// loginLimiter slows down password guessing; digest comparison is
	// cheap but bcrypt digests are not.
	loginLimiter *rate.Limiter
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		BaseHandler:  transport.NewBaseHandler(nil),
		Service:      svc,
		loginLimiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

type loginDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.loginLimiter.Allow() {
		h.WriteError(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	var dto loginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.Service.Login(dto.Username, dto.Password)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteSuccess(w, map[string]any{"token": token})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Service.Logout(h.ExtractTokenFromHeader(r))
	h.WriteSuccess(w, nil)
}

type updateSecurityDTO struct {
	NewPassword string `json:"new_password"`
	NewAPIKey   string `json:"new_api_key"`
}

func (h *Handler) UpdateSecurity(w http.ResponseWriter, r *http.Request) {
	var dto updateSecurityDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := internal.UsernameFromContext(r.Context())

	if dto.NewPassword != "" {
		if len(dto.NewPassword) < 8 {
			h.WriteError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}
		h.Service.SetPassword(dto.NewPassword)
		h.Logger.Warn("admin password changed", "by", username)
	}

	if dto.NewAPIKey != "" {
		if len(dto.NewAPIKey) < 16 {
			h.WriteError(w, http.StatusBadRequest, "API key must be at least 16 characters")
			return
		}
		h.Service.SetAPIKey(dto.NewAPIKey)
		h.Logger.Warn("api key changed", "by", username)
	}

	h.WriteSuccess(w, map[string]any{
		"message": "Security settings updated. Please update your saved credentials!",
	})
}

// Middleware authenticates a request by bearer token or, when enabled in
// the runtime config, HTTP Basic with the admin credentials.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := h.ExtractTokenFromHeader(r); token != "" {
			if sess, ok := h.Service.Validate(token); ok {
				next.ServeHTTP(w, r.WithContext(internal.ContextWithUsername(r.Context(), sess.Username)))
				return
			}
		}
		if username, password, ok := r.BasicAuth(); ok {
			if h.Service.VerifyBasic(username, password) {
				next.ServeHTTP(w, r.WithContext(internal.ContextWithUsername(r.Context(), username)))
				return
			}
		}
		h.WriteAppError(w, internal.ErrAuthRequired)
	})
}

// RequireAPIKey is the legacy opt-in shared-secret check layered on
// mutating routes; a no-op unless the deployment enables it.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Service.APIKeyRequired() && !h.Service.VerifyAPIKey(r.Header.Get("X-API-Key")) {
			h.WriteAppError(w, internal.ErrInvalidAPIKey)
			return
		}
		next.ServeHTTP(w, r)
	})
}
