// Package metrics регистрирует счётчики Prometheus, общие для леджера
// и планировщика. Экспортируются через /metrics основного сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsEmitted число выпущенных событий леджера по видам.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscrypt_ledger_events_total",
		Help: "Number of ledger events emitted, by kind.",
	}, []string{"kind"})

	// ChargesTotal число проведённых списаний по исходу.
	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscrypt_charges_total",
		Help: "Number of charge attempts settled by the ledger, by outcome.",
	}, []string{"outcome"})

	// SweepsTotal число завершённых циклов планировщика.
	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subscrypt_scheduler_sweeps_total",
		Help: "Number of completed scheduler sweep cycles.",
	})

	// SweepPayments исходы платежей, инициированных планировщиком.
	SweepPayments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscrypt_scheduler_payments_total",
		Help: "Number of payments attempted by the scheduler, by outcome.",
	}, []string{"outcome"})

	// TrackedSubscriptions размер локального реестра планировщика.
	TrackedSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subscrypt_scheduler_tracked_subscriptions",
		Help: "Subscriptions currently tracked by the scheduler registry.",
	})
)
