// settlement-gateway/pkg/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Labelled by module so one query can compare tenants.
	PaymentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "requests_total",
			Help:      "Total payment requests per caller module",
		},
		[]string{"module", "status"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline duration per caller module",
			Buckets: []float64{
				0.001, 0.002, 0.005, 0.01, 0.02, 0.03, 0.05, 0.08,
				0.12, 0.2, 0.3, 0.5, 0.8, 1.2, 2,
			},
		},
		[]string{"module", "status"},
	)

	StageOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "stage_outcomes_total",
			Help:      "Processor stage outcomes",
		},
		[]string{"processor", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(PaymentRequestsTotal, PipelineDuration, StageOutcomesTotal)
}

// Helpers keep call sites tidy.
func IncRequest(module, status string) {
	PaymentRequestsTotal.WithLabelValues(module, status).Inc()
}
func ObserveDuration(module, status string, seconds float64) {
	PipelineDuration.WithLabelValues(module, status).Observe(seconds)
}
func IncStage(processor, outcome string) {
	StageOutcomesTotal.WithLabelValues(processor, outcome).Inc()
}
