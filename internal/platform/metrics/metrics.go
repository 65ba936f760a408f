package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway. Construct exactly one
// per process; collectors register against the default registry.
type Metrics struct {
	MatchRequests   prometheus.Counter
	MatchRejected   prometheus.Counter
	PatientsIndexed prometheus.Counter
	FanoutOutcomes  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		MatchRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "match_gateway_match_requests_total",
			Help: "Total number of match queries served",
		}),
		MatchRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "match_gateway_match_rejected_total",
			Help: "Total number of match submissions rejected before querying the index",
		}),
		PatientsIndexed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "match_gateway_patients_indexed_total",
			Help: "Total number of patient records upserted into the index",
		}),
		FanoutOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "match_gateway_fanout_outcomes_total",
			Help: "Federated partner call outcomes",
		}, []string{"outcome"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "match_gateway_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveFanout records one partner call outcome ("ok" or "error").
func (m *Metrics) ObserveFanout(outcome string) {
	if m == nil {
		return
	}
	m.FanoutOutcomes.WithLabelValues(outcome).Inc()
}
