package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics содержит бизнес-метрики витрины.
// Все методы безопасно вызывать на nil-получателе: метрики опциональны для сервисов.
type StorefrontMetrics struct {
	// Переходы жизненного цикла
	orderTransitions    *prometheus.CounterVec
	catalogTransitions  *prometheus.CounterVec
	supplierTransitions *prometheus.CounterVec

	// Длительность операций сервиса
	operationDuration *prometheus.HistogramVec

	// Склад
	insufficientStock prometheus.Counter
	unitsShipped      prometheus.Counter

	// Корзины и кэш
	activeCarts   prometheus.Gauge
	cacheRequests *prometheus.CounterVec

	// Фоновая очистка
	cleanupRuns    *prometheus.CounterVec
	cleanupRemoved *prometheus.CounterVec
}

// NewStorefrontMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of order lifecycle transitions grouped by event.",
		}, []string{"event"}),
		catalogTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_catalog_transitions_total",
			Help: "Total number of catalog entry moderation transitions grouped by event.",
		}, []string{"event"}),
		supplierTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_supplier_transitions_total",
			Help: "Total number of supplier account transitions grouped by target state.",
		}, []string{"state"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_operation_duration_seconds",
			Help:    "Duration of storefront service operations in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation", "result"}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_insufficient_stock_total",
			Help: "Total number of operations refused because of insufficient stock.",
		}),
		unitsShipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_units_shipped_total",
			Help: "Total number of stock units decremented by shipped orders.",
		}),
		activeCarts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_carts",
			Help: "Number of carts currently held in memory.",
		}),
		cacheRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_catalog_cache_requests_total",
			Help: "Catalog listing cache lookups grouped by result.",
		}, []string{"result"}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cleanup_runs_total",
			Help: "Background cleanup runs grouped by task and result.",
		}, []string{"task", "result"}),
		cleanupRemoved: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cleanup_removed_total",
			Help: "Records removed by background cleanup grouped by task.",
		}, []string{"task"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderTransition увеличивает счётчик переходов заказа (created, confirmed, ...).
func (m *StorefrontMetrics) RecordOrderTransition(event string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(event).Inc()
}

// RecordCatalogTransition увеличивает счётчик переходов модерации товара.
func (m *StorefrontMetrics) RecordCatalogTransition(event string) {
	if m == nil {
		return
	}
	m.catalogTransitions.WithLabelValues(event).Inc()
}

// RecordSupplierTransition увеличивает счётчик смены статуса поставщика.
func (m *StorefrontMetrics) RecordSupplierTransition(state string) {
	if m == nil {
		return
	}
	m.supplierTransitions.WithLabelValues(state).Inc()
}

// ObserveOperation записывает длительность операции; err != nil помечается как error.
func (m *StorefrontMetrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationDuration.WithLabelValues(operation, result).Observe(time.Since(started).Seconds())
}

// RecordInsufficientStock увеличивает счётчик отказов по остаткам.
func (m *StorefrontMetrics) RecordInsufficientStock() {
	if m == nil {
		return
	}
	m.insufficientStock.Inc()
}

// RecordUnitsShipped добавляет списанные при отгрузке единицы.
func (m *StorefrontMetrics) RecordUnitsShipped(units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.unitsShipped.Add(float64(units))
}

// SetActiveCarts выставляет число корзин в памяти.
func (m *StorefrontMetrics) SetActiveCarts(count int) {
	if m == nil {
		return
	}
	m.activeCarts.Set(float64(count))
}

// RecordCacheLookup учитывает попадание или промах кэша каталога.
func (m *StorefrontMetrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// RecordCleanup учитывает один прогон задачи очистки.
func (m *StorefrontMetrics) RecordCleanup(task string, removed int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.cleanupRuns.WithLabelValues(task, "error").Inc()
		return
	}
	m.cleanupRuns.WithLabelValues(task, "ok").Inc()
	if removed > 0 {
		m.cleanupRemoved.WithLabelValues(task).Add(float64(removed))
	}
}
