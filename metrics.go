package qtrust

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for StoreOps.
const (
	ResultOK     = "ok"
	ResultAbsent = "absent"
	ResultError  = "error"
)

// Metrics counts store and trust-flow activity. A nil *Metrics records nothing.
type Metrics struct {
	// StoreOps counts store operations by op and result.
	StoreOps *prometheus.CounterVec

	// DecodeFailures counts stored records that could not be decoded.
	DecodeFailures prometheus.Counter

	// Selected counts anchors the user chose to trust.
	Selected prometheus.Counter

	// PersistFailures counts chosen anchors that could not be saved.
	PersistFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StoreOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qtrust_store_operations_total",
				Help: "Trust store operations by operation and result",
			},
			[]string{"op", "result"},
		),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "qtrust_store_decode_failures_total",
			Help: "Stored trust anchors that failed to decode",
		}),
		Selected: f.NewCounter(prometheus.CounterOpts{
			Name: "qtrust_trust_selected_total",
			Help: "Certificate authorities selected for trust by the user",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "qtrust_trust_persist_failures_total",
			Help: "Selected certificate authorities that failed to save",
		}),
	}
}

func (m *Metrics) op(op, result string) {
	if m == nil {
		return
	}
	m.StoreOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) decodeFailure() {
	if m == nil {
		return
	}
	m.DecodeFailures.Inc()
}

func (m *Metrics) selected(n int) {
	if m == nil {
		return
	}
	m.Selected.Add(float64(n))
}

func (m *Metrics) persistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}
