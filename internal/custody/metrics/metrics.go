package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the custody ledger.
type Metrics struct {
	// Transfer outcomes by error code ("ok" on success)
	TransfersTotal *prometheus.CounterVec

	// End-to-end transfer latency including store and event emission
	TransferLatency prometheus.Histogram

	// Length of history chains served, a proxy for tree depth
	HistoryLength prometheus.Histogram
}

// New creates a new Metrics instance with all custody metrics registered.
func New() *Metrics {
	return &Metrics{
		TransfersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_custody_transfers_total",
			Help: "Total custody transfer attempts by outcome",
		}, []string{"outcome"}),

		TransferLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_custody_transfer_duration_seconds",
			Help:    "Duration of custody transfers",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		HistoryLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_custody_history_length",
			Help:    "Number of nodes in served distribution histories",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15},
		}),
	}
}

// ObserveTransfer records one transfer attempt.
func (m *Metrics) ObserveTransfer(outcome string, d time.Duration) {
	if m != nil {
		m.TransfersTotal.WithLabelValues(outcome).Inc()
		m.TransferLatency.Observe(d.Seconds())
	}
}

// ObserveHistory records the length of one served history chain.
func (m *Metrics) ObserveHistory(length int) {
	if m != nil {
		m.HistoryLength.Observe(float64(length))
	}
}
