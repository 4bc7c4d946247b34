package analytics

import (
	"net/http"
	"strconv"

	"github.com/maxpark/access-controller/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
	Stats   *DailyStats
}

func NewHandler(svc *Service, stats *DailyStats) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Service:     svc,
		Stats:       stats,
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// GetTransactions returns the bare JSON array the dashboard's live view
// has always consumed.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.Service.Transactions(queryInt(r, "limit", 50)))
}

// GetTodayStats returns the bare counters object, not the envelope.
func (h *Handler) GetTodayStats(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.Stats.Today())
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	card := r.URL.Query().Get("card")

	var userFilter any
	if card != "" {
		userFilter = card
	}
	h.WriteSuccess(w, map[string]any{
		"analytics":   h.Service.Analytics(days, card),
		"user_filter": userFilter,
	})
}

func (h *Handler) GetUserReport(w http.ResponseWriter, r *http.Request) {
	card := r.URL.Query().Get("card")
	if card == "" {
		h.WriteError(w, http.StatusBadRequest, "Card number required")
		return
	}

	report, err := h.Service.Report(card, queryInt(r, "days", 30))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteSuccess(w, map[string]any{"report": report})
}

func (h *Handler) DownloadTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	h.WriteSuccess(w, map[string]any{"csv": h.Service.CSV(queryInt(r, "limit", 500))})
}
