package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}

func TestNewStorefrontMetrics_AllCollectorsInitialised(t *testing.T) {
	m := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	assert.NotNil(t, m.orderTransitions)
	assert.NotNil(t, m.catalogTransitions)
	assert.NotNil(t, m.supplierTransitions)
	assert.NotNil(t, m.operationDuration)
	assert.NotNil(t, m.insufficientStock)
	assert.NotNil(t, m.unitsShipped)
	assert.NotNil(t, m.activeCarts)
	assert.NotNil(t, m.cacheRequests)
	assert.NotNil(t, m.cleanupRuns)
	assert.NotNil(t, m.cleanupRemoved)
}

func TestNewStorefrontMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewStorefrontMetricsWithRegisterer(reg)
	second := NewStorefrontMetricsWithRegisterer(reg)

	first.RecordInsufficientStock()
	second.RecordInsufficientStock()

	assert.Equal(t, 2.0, counterValue(t, first.insufficientStock))
}

func TestStorefrontMetrics_Recorders(t *testing.T) {
	m := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOrderTransition("shipped")
	m.RecordOrderTransition("shipped")
	m.RecordCatalogTransition("activated")
	m.RecordSupplierTransition("approved")
	m.RecordUnitsShipped(5)
	m.RecordUnitsShipped(-1)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.SetActiveCarts(3)
	m.RecordCleanup("idle_carts", 4, nil)
	m.RecordCleanup("idle_carts", 0, errors.New("boom"))
	m.ObserveOperation("ship", time.Now().Add(-time.Millisecond), nil)
	m.ObserveOperation("ship", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, counterValue(t, m.orderTransitions.WithLabelValues("shipped")))
	assert.Equal(t, 1.0, counterValue(t, m.catalogTransitions.WithLabelValues("activated")))
	assert.Equal(t, 1.0, counterValue(t, m.supplierTransitions.WithLabelValues("approved")))
	assert.Equal(t, 5.0, counterValue(t, m.unitsShipped))
	assert.Equal(t, 1.0, counterValue(t, m.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, counterValue(t, m.cacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 4.0, counterValue(t, m.cleanupRemoved.WithLabelValues("idle_carts")))
	assert.Equal(t, 1.0, counterValue(t, m.cleanupRuns.WithLabelValues("idle_carts", "ok")))
	assert.Equal(t, 1.0, counterValue(t, m.cleanupRuns.WithLabelValues("idle_carts", "error")))

	var gauge dto.Metric
	require.NoError(t, m.activeCarts.Write(&gauge))
	assert.Equal(t, 3.0, gauge.GetGauge().GetValue())
}

func TestStorefrontMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *StorefrontMetrics

	assert.NotPanics(t, func() {
		m.RecordOrderTransition("created")
		m.RecordCatalogTransition("submitted")
		m.RecordSupplierTransition("approved")
		m.ObserveOperation("checkout", time.Now(), nil)
		m.RecordInsufficientStock()
		m.RecordUnitsShipped(1)
		m.SetActiveCarts(1)
		m.RecordCacheLookup(true)
		m.RecordCleanup("idempotency_keys", 1, nil)
	})
}
