package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	OrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders durably created",
		},
	)

	OrderStatusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_changes_total",
			Help: "Total number of order status transitions by target status",
		},
		[]string{"status"},
	)

	ReservationsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservations_failed_total",
			Help: "Total number of rejected stock reservations by reason",
		},
		[]string{"reason"},
	)

	ReservationsReleasedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_reservations_released_total",
			Help: "Total number of reservations released by compensation or recovery",
		},
	)

	OutboxPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Total number of outbox events forwarded to the bus",
		},
	)

	OutboxFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_failed_total",
			Help: "Total number of failed outbox publish attempts",
		},
	)

	StockDeltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_deltas_total",
			Help: "Total number of stock-update facts handled by outcome",
		},
		[]string{"outcome"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification attempts by outcome",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// Registry returns a registry carrying the runtime collectors and every
// metric above. It is built once per process.
func Registry() *prometheus.Registry {
	registerOnce.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			OrdersCreatedTotal,
			OrderStatusChangesTotal,
			ReservationsFailedTotal,
			ReservationsReleasedTotal,
			OutboxPublishedTotal,
			OutboxFailedTotal,
			StockDeltasTotal,
			NotificationsTotal,
		)
	})

	return registry
}

var registry = prometheus.NewRegistry()
