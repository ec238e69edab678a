package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for residual computations.
const (
	OutcomeComputed     = "computed"
	OutcomeInsufficient = "insufficient"
	OutcomeDegenerate   = "degenerate"
	OutcomeError        = "error"
)

// Metrics provides observability for the GCP module.
type Metrics struct {
	// Residual computations by outcome and degree
	ResidualComputations *prometheus.CounterVec

	// Engine latency, cache hits excluded
	ComputeLatency *prometheus.HistogramVec

	// Most recent RMSE by degree
	LastRMSE *prometheus.GaugeVec

	CacheLookups *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ResidualComputations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "georef_residual_computations_total",
			Help: "Total residual computations by outcome and polynomial degree",
		}, []string{"outcome", "degree"}),

		ComputeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "georef_residual_compute_duration_seconds",
			Help:    "Duration of the polynomial fit and residual evaluation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"degree"}),

		LastRMSE: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "georef_residual_last_rmse",
			Help: "RMSE of the most recent successful computation by degree",
		}, []string{"degree"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "georef_residual_cache_lookups_total",
			Help: "Residual cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"
	}
}

func (m *Metrics) IncrementOutcome(outcome, degree string) {
	if m != nil {
		m.ResidualComputations.WithLabelValues(outcome, degree).Inc()
	}
}

func (m *Metrics) ObserveComputeLatency(degree string, d time.Duration) {
	if m != nil {
		m.ComputeLatency.WithLabelValues(degree).Observe(d.Seconds())
	}
}

func (m *Metrics) SetLastRMSE(degree string, rmse float64) {
	if m != nil {
		m.LastRMSE.WithLabelValues(degree).Set(rmse)
	}
}

// IncrementCache records a cache lookup result.
func (m *Metrics) IncrementCache(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}
