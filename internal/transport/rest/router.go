package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/maxpark/access-controller/internal/analytics"
	"github.com/maxpark/access-controller/internal/metrics"
	"github.com/maxpark/access-controller/internal/relay"
	"github.com/maxpark/access-controller/internal/runtimeconf"
	"github.com/maxpark/access-controller/internal/session"
	"github.com/maxpark/access-controller/internal/system"
	"github.com/maxpark/access-controller/internal/transport/middleware"
	"github.com/maxpark/access-controller/internal/user"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Session   *session.Handler
	User      *user.Handler
	Relay     *relay.Handler
	Config    *runtimeconf.Handler
	Analytics *analytics.Handler
	System    *system.Handler
}

// RegisterAllRoutes mounts the API at the root. The bare paths are the
// contract with the dashboard and the provisioning tools; do not prefix
// or version them.
func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Public surface: status, health and login.
	router.Get("/status", h.System.Status)
	router.Get("/health_check", h.System.HealthCheck)
	router.Handle("/metrics", metrics.Handler())
	router.Post("/login", h.Session.Login)

	// Everything else needs a session token or, when enabled, Basic Auth.
	router.Group(func(ar chi.Router) {
		ar.Use(h.Session.Middleware)

		ar.Post("/logout", h.Session.Logout)
		ar.Get("/get_users", h.User.GetUsers)
		ar.Get("/get_transactions", h.Analytics.GetTransactions)
		ar.Get("/get_today_stats", h.Analytics.GetTodayStats)
		ar.Get("/get_analytics", h.Analytics.GetAnalytics)
		ar.Get("/get_user_report", h.Analytics.GetUserReport)
		ar.Get("/download_transactions_csv", h.Analytics.DownloadTransactionsCSV)
		ar.Get("/get_config", h.Config.GetConfig)
		ar.Get("/get_system_time", h.System.GetSystemTime)

		// Mutations additionally carry the legacy API key when the
		// deployment requires it.
		ar.Group(func(mr chi.Router) {
			mr.Use(h.Session.RequireAPIKey)

			mr.Post("/add_user", h.User.AddUser)
			mr.Post("/delete_user", h.User.DeleteUser)
			mr.Post("/block_user", h.User.BlockUser)
			mr.Post("/unblock_user", h.User.UnblockUser)
			mr.Post("/toggle_privacy", h.User.TogglePrivacy)
			mr.Post("/relay", h.Relay.Operate)
			mr.Post("/update_config", h.Config.UpdateConfig)
			mr.Post("/update_security", h.Session.UpdateSecurity)
			mr.Post("/set_system_time", h.System.SetSystemTime)
			mr.Post("/enable_ntp", h.System.EnableNTP)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"error","message":"not found"}`))
	})
}
