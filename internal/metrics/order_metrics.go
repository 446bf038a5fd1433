// Package metrics собирает Prometheus-метрики заказов и складского учёта.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Операции, по которым считаются длительность и ошибки.
const (
	OperationCreate       = "create"
	OperationCancel       = "cancel"
	OperationUpdateStatus = "update_status"
)

// OrderMetrics содержит метрики жизненного цикла заказа.
type OrderMetrics struct {
	ordersCreated      prometheus.Counter
	ordersCancelled    prometheus.Counter
	statusChanges      *prometheus.CounterVec
	failures           *prometheus.CounterVec
	orderNumberRetries prometheus.Counter
	operationDuration  *prometheus.HistogramVec

	stockReserved prometheus.Counter
	stockReleased prometheus.Counter

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	inFlight prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medistore_orders_created_total",
			Help: "Total number of orders created",
		})),
		ordersCancelled: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medistore_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		})),
		statusChanges: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medistore_order_status_changes_total",
			Help: "Total number of order status changes by target status",
		}, []string{"to"})),
		failures: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medistore_order_failures_total",
			Help: "Total number of failed order operations by error kind",
		}, []string{"operation", "kind"})),
		orderNumberRetries: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medistore_order_number_retries_total",
			Help: "Total number of order number regenerations after a collision",
		})),
		operationDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medistore_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"})),
		stockReserved: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medistore_stock_reserved_units_total",
			Help: "Total number of tracked stock units reserved by orders",
		})),
		stockReleased: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medistore_stock_released_units_total",
			Help: "Total number of tracked stock units returned by cancellations",
		})),
		timelineEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medistore_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		})),
		outboxEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medistore_outbox_events_enqueued_total",
			Help: "Total number of order events written to the outbox",
		})),
		inFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medistore_order_operations_in_flight",
			Help: "Number of order operations currently running",
		})),
	}
}

// register регистрирует коллектор; при повторной регистрации возвращает существующий.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", already.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// Begin отмечает начало операции и возвращает функцию для её завершения.
func (m *OrderMetrics) Begin(operation string) func() {
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *OrderMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordStatusChange учитывает переход заказа в статус to.
func (m *OrderMetrics) RecordStatusChange(to string) {
	m.statusChanges.WithLabelValues(to).Inc()
}

// RecordFailure учитывает ошибку операции с классом kind.
func (m *OrderMetrics) RecordFailure(operation, kind string) {
	m.failures.WithLabelValues(operation, kind).Inc()
}

func (m *OrderMetrics) RecordOrderNumberRetry() {
	m.orderNumberRetries.Inc()
}

// StockReserved и StockReleased реализуют inventory.Recorder.
func (m *OrderMetrics) StockReserved(units int) {
	m.stockReserved.Add(float64(units))
}

func (m *OrderMetrics) StockReleased(units int) {
	m.stockReleased.Add(float64(units))
}

func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
