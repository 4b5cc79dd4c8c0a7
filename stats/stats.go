// Package stats wires the master's observable counters to
// github.com/prometheus/client_golang: elections won/lost, placement RPCs
// issued, actor registrations, UidCache hits/misses, and supervisor
// restarts/give-ups. Grounded on the
// teacher's stats.Tracker role (a single runner every component reports named
// counter events to) with the concrete prometheus.Counter/CounterVec
// mechanics taken from the pack's metrics.Collector idiom (singleton built
// once via sync.Once, fields registered with prometheus.MustRegister).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"net/http"
	"sync"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names, one CounterVec label value each.
const (
	ElectionsWon        = "elections_won"
	ElectionsLost       = "elections_lost"
	ReconcileRPCs       = "reconcile_rpcs"
	ReconcileRPCErrors  = "reconcile_rpcs_error"
	ActorRegistrations  = "actor_registrations"
	UidCacheHits        = "uid_cache_hits"
	UidCacheMisses      = "uid_cache_misses"
	SupervisorRestarts  = "supervisor_restarts"
	SupervisorGiveUps   = "supervisor_give_ups"
)

// Tracker is the narrow counter-reporting interface every component talks
// to, mirroring a stats runner shape (a single Inc/IncErr style
// sink, not one bespoke method per metric).
type Tracker interface {
	Inc(name string)
	IncErr(name string)
}

// Collector is the process-wide Tracker, backed by a single prometheus
// CounterVec labelled only by event name; counts are not broken down by
// service.
type Collector struct {
	counters *prometheus.CounterVec
}

var (
	global     *Collector
	globalOnce sync.Once
)

// Global returns the process-wide Collector, registering its CounterVec with
// the default prometheus registry exactly once.
func Global() *Collector {
	globalOnce.Do(func() {
		global = New(prometheus.DefaultRegisterer)
	})
	return global
}

// New builds a Collector registering against reg - a real *prometheus.Registry
// in production, a fresh one per test to avoid cross-test duplicate
// registration panics.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aismaster_events_total",
			Help: "Count of master events by name, e.g. elections_won, reconcile_rpcs, uid_cache_hits.",
		}, []string{"name"}),
	}
	reg.MustRegister(c.counters)
	return c
}

func (c *Collector) Inc(name string)    { c.counters.WithLabelValues(name).Inc() }
func (c *Collector) IncErr(name string) { c.counters.WithLabelValues(name + "_error").Inc() }

// Handler exposes the counters for scraping, mounted alongside the master's
// other HTTP endpoints.
func Handler() http.Handler { return promhttp.Handler() }

// RestartTracker adapts a Tracker to master.RestartTracker, so
// MasterSupervisor's restart-intensity bookkeeping shows up as prometheus
// counters distinguishing ordinary restarts from exhausted-budget give-ups.
type RestartTracker struct {
	Tracker Tracker
}

func (r RestartTracker) OnRestart(cluster.ServiceId) { r.Tracker.Inc(SupervisorRestarts) }
func (r RestartTracker) OnGiveUp(cluster.ServiceId)  { r.Tracker.Inc(SupervisorGiveUps) }
