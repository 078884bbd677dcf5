package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_sessions_issued_total",
			Help: "Sessions newly issued or reissued after a token mismatch",
		},
	)

	SessionsResumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_sessions_resumed_total",
			Help: "Sessions resumed with a matching token",
		},
	)

	SessionRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_session_rejections_total",
			Help: "Resume attempts rejected because the session expired",
		},
	)

	ReclamationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_reclamations_total",
			Help: "Allocation reclamation attempts",
		},
		[]string{"result"}, // success|failure
	)

	ReclamationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_reclamation_duration_seconds",
			Help:    "Duration of allocation teardown",
			Buckets: prometheus.DefBuckets,
		},
	)

	BroadcastPrunes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_broadcast_prunes_total",
			Help: "Subscribers pruned after a failed event delivery",
		},
	)

	DeallocTimersArmed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_dealloc_timers_armed",
			Help: "Lobbies with a pending deallocation timer",
		},
	)
)

func init() {
	prometheus.MustRegister(SessionsIssued)
	prometheus.MustRegister(SessionsResumed)
	prometheus.MustRegister(SessionRejections)
	prometheus.MustRegister(ReclamationsTotal)
	prometheus.MustRegister(ReclamationDuration)
	prometheus.MustRegister(BroadcastPrunes)
	prometheus.MustRegister(DeallocTimersArmed)
}

func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
