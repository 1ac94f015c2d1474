package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records loan lifecycle activity.
type LedgerMetrics struct {
	duration   *prometheus.HistogramVec
	failures   *prometheus.CounterVec
	created    prometheus.Counter
	returned   prometheus.Counter
	fines      prometheus.Counter
	violations *prometheus.CounterVec
	drift      *prometheus.GaugeVec
}

// NewLedgerMetrics registers the ledger metrics on reg. A nil registerer yields
// a recorder whose methods are no-ops.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "library",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Duration of loan ledger operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "ledger_operation_failures_total",
			Help:      "Failed loan ledger operations by error kind.",
		}, []string{"operation", "kind"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "loans_created_total",
			Help:      "Loans created.",
		}),
		returned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "loans_returned_total",
			Help:      "Loans returned.",
		}),
		fines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "fines_assessed_total",
			Help:      "Sum of fines assessed at return time, in currency units.",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "inventory_invariant_violations_total",
			Help:      "Detected book inventory inconsistencies.",
		}, []string{"reason"}),
		drift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "library",
			Name:      "inventory_discrepancies",
			Help:      "Discrepancies found by the last reconciliation, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.duration, m.failures, m.created, m.returned, m.fines, m.violations, m.drift)
	return m
}

// ObserveDuration records how long an operation took.
func (m *LedgerMetrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(d.Seconds())
}

// IncFailure counts a failed operation.
func (m *LedgerMetrics) IncFailure(operation, kind string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(operation), normalizeLabel(kind)).Inc()
}

// IncCreated counts a created loan.
func (m *LedgerMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

// IncReturned counts a return and adds its fine.
func (m *LedgerMetrics) IncReturned(fine float64) {
	if m == nil || m.returned == nil {
		return
	}
	m.returned.Inc()
	if fine > 0 {
		m.fines.Add(fine)
	}
}

// IncInvariantViolation counts an inventory inconsistency detected during an operation.
func (m *LedgerMetrics) IncInvariantViolation(reason string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// SetDiscrepancies replaces the reconciliation gauge with counts. Reasons
// absent from counts drop to zero.
func (m *LedgerMetrics) SetDiscrepancies(counts map[string]int) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Reset()
	for reason, n := range counts {
		m.drift.WithLabelValues(normalizeLabel(reason)).Set(float64(n))
	}
}
