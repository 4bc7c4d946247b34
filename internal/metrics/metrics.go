package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_scans_total",
			Help: "Card scans that reached a decision, by status.",
		},
		[]string{"status"},
	)

	ScansDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_scans_dropped_total",
			Help: "Scans dropped before a transaction was recorded, by gate.",
		},
		[]string{"gate"},
	)

	FramesInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wiegand_frames_invalid_total",
		Help: "Wiegand frames discarded for parity or length errors.",
	})

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_attempts_total",
			Help: "Remote upload attempts, by result.",
		},
		[]string{"result"},
	)

	FailedCacheDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "upload_failed_cache_entries",
		Help: "Transactions currently waiting in the failed-upload cache.",
	})
)

// Init registers the appliance metrics in the default registry.
func Init() {
	prometheus.MustRegister(ScansTotal, ScansDropped, FramesInvalid, UploadsTotal, FailedCacheDepth)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
