package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"glass-voice/internal/provider"
)

var (
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassvoice_provider_calls_total",
			Help: "Provider calls by provider, operation and outcome",
		},
		[]string{"provider", "op", "outcome"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "glassvoice_provider_latency_seconds",
			Help: "Provider call latency in seconds",
		},
		[]string{"provider", "op"},
	)

	EnsembleResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassvoice_ensemble_resolutions_total",
			Help: "Ensemble outcomes: none, single, agreement, disagreement",
		},
		[]string{"kind"},
	)

	Intents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassvoice_intents_total",
			Help: "Classified intents by canonical name and source",
		},
		[]string{"intent", "source"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "glassvoice_active_sessions",
			Help: "Number of sessions held in memory",
		},
	)

	BuilderOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassvoice_order_builder_outcomes_total",
			Help: "Order builder terminal outcomes",
		},
		[]string{"outcome"},
	)

	ActionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassvoice_action_failures_total",
			Help: "Action executor collaborator failures",
		},
		[]string{"action"},
	)
)

// ObserveProviderCall records the outcome and latency of one provider call.
func ObserveProviderCall(name, op string, started time.Time, err error) {
	ProviderLatency.WithLabelValues(name, op).Observe(time.Since(started).Seconds())
	ProviderCalls.WithLabelValues(name, op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
