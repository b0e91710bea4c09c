// Package dstats exposes the engine's Prometheus metrics, the same
// registry-plus-promhttp-handler pattern as
// stats/common_prom.go's PromHandler, scaled down to this engine's own
// counters instead of aistore's per-disk/per-target trackers.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package dstats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats is the engine's metric set, registered against a private registry
// so the handler only ever exposes our own series (the teacher's "devoid
// of _default_ metrics go_gc*, go_mem*" choice).
type Stats struct {
	registry *prometheus.Registry

	Heartbeats          prometheus.Counter
	PropagationPasses   prometheus.Counter
	ActionsByStatus     *prometheus.CounterVec
	SchedulerQueueDepth prometheus.Gauge
	WriteSlotOccupied   prometheus.Gauge
}

// New builds and registers the engine's metrics.
func New() *Stats {
	reg := prometheus.NewRegistry()

	s := &Stats{
		registry: reg,
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dynamo", Subsystem: "servermgr", Name: "heartbeats_total",
			Help: "Heartbeats sent to the master store.",
		}),
		PropagationPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dynamo", Subsystem: "servermgr", Name: "propagation_passes_total",
			Help: "Update-propagation passes over the peer list.",
		}),
		ActionsByStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dynamo", Subsystem: "scheduler", Name: "actions_total",
			Help: "Actions reaped, by terminal status.",
		}, []string{"status"}),
		SchedulerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dynamo", Subsystem: "scheduler", Name: "queue_depth",
			Help: "Actions currently tracked as running by the scheduler.",
		}),
		WriteSlotOccupied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dynamo", Subsystem: "scheduler", Name: "write_slot_occupied",
			Help: "1 if the single write slot is currently held, else 0.",
		}),
	}

	reg.MustRegister(s.Heartbeats, s.PropagationPasses, s.ActionsByStatus, s.SchedulerQueueDepth, s.WriteSlotOccupied)
	return s
}

// Handler serves the /metrics endpoint.
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}
