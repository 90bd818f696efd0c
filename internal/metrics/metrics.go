// Package metrics registers the service's Prometheus collectors.  The
// counters live at package level so the engine can increment them without
// threading a registry through every constructor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReserveAttempts counts every reserve call, successful or not.
	ReserveAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drop_reservation",
		Name:      "reserve_attempts_total",
		Help:      "Total reservation attempts.",
	})

	// ReserveSuccesses counts reserve calls that committed a hold.
	ReserveSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drop_reservation",
		Name:      "reserve_successes_total",
		Help:      "Reservation attempts that committed a hold.",
	})

	// ReserveConflicts counts reserve calls rejected for insufficient
	// availability at lock time.
	ReserveConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drop_reservation",
		Name:      "reserve_conflicts_total",
		Help:      "Reservation attempts rejected for insufficient availability.",
	})

	// OrdersPlaced counts committed checkouts.
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drop_reservation",
		Name:      "orders_placed_total",
		Help:      "Orders created from reservations.",
	})
)
