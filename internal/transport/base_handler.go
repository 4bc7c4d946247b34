package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maxpark/access-controller/internal"
	"github.com/maxpark/access-controller/pkg/logger"
)

// BaseHandler provides the JSON envelope helpers shared by all handlers.
// The dashboard and the provisioning tools parse the historical
// {"status":"success"|"error"|"warning", ...} shapes, so every response
// goes through here.
type BaseHandler struct {
	Logger *slog.Logger
}

func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteSuccess writes {"status":"success"} plus any extra fields.
func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"status": "success"}
	for k, v := range extra {
		body[k] = v
	}
	h.WriteJSON(w, http.StatusOK, body)
}

// WriteWarning writes {"status":"warning","message":...} with HTTP 200:
// the mutation persisted but a best-effort follow-up (decoder restart)
// failed.
func (h *BaseHandler) WriteWarning(w http.ResponseWriter, message string) {
	h.Logger.Warn("http warning response", "message", message)
	h.WriteJSON(w, http.StatusOK, map[string]any{"status": "warning", "message": message})
}

// WriteError writes {"status":"error","message":...} with the given code.
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Error("http error", "status", status, "message", message)
	h.WriteJSON(w, status, map[string]any{"status": "error", "message": message})
}

// WriteAppError maps the error taxonomy onto the envelope; anything
// outside the taxonomy is an internal error with a generic message.
func (h *BaseHandler) WriteAppError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		h.WriteError(w, appErr.StatusCode, appErr.Message)
		return
	}
	h.Logger.Error("unclassified error", "error", err)
	h.WriteError(w, http.StatusInternalServerError, "internal server error")
}

// ExtractTokenFromHeader extracts the Bearer token from the Authorization
// header, returning "" when the header is absent or not a bearer scheme.
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}
