package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementOutcome(OutcomeComputed, "Polynomiale 1")
	m.IncrementOutcome(OutcomeComputed, "Polynomiale 1")
	m.IncrementOutcome(OutcomeInsufficient, "Polynomiale 2")
	m.SetLastRMSE("Polynomiale 1", 0.25)
	m.IncrementCache("hit")
	m.ObserveComputeLatency("Polynomiale 1", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResidualComputations.WithLabelValues(OutcomeComputed, "Polynomiale 1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResidualComputations.WithLabelValues(OutcomeInsufficient, "Polynomiale 2")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.LastRMSE.WithLabelValues("Polynomiale 1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ComputeLatency))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementOutcome(OutcomeError, "x")
		m.ObserveComputeLatency("x", time.Second)
		m.SetLastRMSE("x", 1)
		m.IncrementCache("miss")
	})
}
