package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.IncCreated()
	m.IncCreated()
	m.IncReturned(6)
	m.IncReturned(0)
	m.IncFailure("create_loan", "UNAVAILABLE")
	m.IncInvariantViolation("available_exceeds_quantity")
	m.ObserveDuration("create_loan", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.created))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.returned))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.fines))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("create_loan", "UNAVAILABLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.violations.WithLabelValues("available_exceeds_quantity")))

	count, err := testutil.GatherAndCount(reg, "library_ledger_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSetDiscrepanciesReplacesPreviousRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	for i := 0; i < 3; i++ {
		m.SetDiscrepancies(map[string]int{"count_mismatch": 2, "orphan_loan": 1})
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.drift.WithLabelValues("count_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.drift.WithLabelValues("orphan_loan")))

	m.SetDiscrepancies(map[string]int{})
	count, err := testutil.GatherAndCount(reg, "library_inventory_discrepancies")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLedgerMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewLedgerMetrics(nil)

	assert.NotPanics(t, func() {
		m.IncCreated()
		m.IncReturned(3)
		m.IncFailure("", "")
		m.IncInvariantViolation("x")
		m.SetDiscrepancies(map[string]int{"x": 1})
		m.ObserveDuration("x", time.Second)
	})

	var nilMetrics *LedgerMetrics
	assert.NotPanics(t, func() { nilMetrics.IncCreated() })
}
