// Package elect implements LeaderElector (C3): per-service leader election
// over a cluster-global contested name, with split-brain resolution by
// start-time ordering. Grounded on a primary-proxy bootstrap
// (ais/earlystart.go: load local state, decide a preliminary role, resolve
// conflicts against the broadcast truth) generalized from aistore's single
// cluster-wide primary to one leader per configured service.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package elect

import (
	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn/nlog"
)

// Claimant is a candidate (or incumbent) for a service's leader name.
type Claimant struct {
	Host  cluster.Host
	Epoch cluster.NodeEpoch
}

func (c Claimant) IsZero() bool { return c.Host.IsZero() }

// Resolver picks the winner between two simultaneous claimants (invoked by
// NameRegistry when a partition heals and both sides believe they claimed
// the name). DefaultResolver implements the tiebreaker described below.
type Resolver func(name string, a, b Claimant) Claimant

func DefaultResolver(_ string, a, b Claimant) Claimant {
	switch {
	case a.Epoch.StartTime < b.Epoch.StartTime:
		return a
	case b.Epoch.StartTime < a.Epoch.StartTime:
		return b
	case a.Epoch.Tie <= b.Epoch.Tie:
		return a
	default:
		return b
	}
}

// NameRegistry is the cluster-global name registry's atomic claim primitive
//: the sole synchronization point across nodes. Claim either installs
// self as holder (when none exists) or returns the current holder; Current
// is a non-mutating read of today's truth. Release vacates name iff self
// currently holds it, used on a leader's orderly shutdown (see
// Lifecycle) so a follower need not wait out a liveness timeout to claim it.
type NameRegistry interface {
	Claim(name string, self Claimant, resolve Resolver) (holder Claimant, isSelf bool, err error)
	Current(name string) (Claimant, bool)
	Release(name string, self Claimant)
}

// PeerHinter broadcasts the check_leader hint to every peer
// master for the same service, so followers converge faster than their next
// tick.
type PeerHinter interface {
	HintCheckLeader(service cluster.ServiceId)
}

type EventKind int

const (
	EventNone EventKind = iota
	EventBecameLeader
	EventOtherIsLeader
	EventRegisterFollower
)

type Event struct {
	Kind   EventKind
	Leader Claimant // the believed/claimed leader, when relevant
}

// LeaderElector runs entirely inside its owning MasterLoop's single-writer
// tick/request loop: Tick is not safe to call concurrently, matching the
// rest of MasterState.
type LeaderElector struct {
	name     string
	self     Claimant
	registry NameRegistry
	hinter   PeerHinter
	mon      cluster.Monitor

	isLeader    bool
	believe     Claimant // zero value: no believed leader
	watchCancel func()

	// Deaths receives the believed leader's Host once its liveness watch
	// fires, so the owning MasterLoop can call OnLeaderDied and retry the
	// claim immediately instead of waiting for the next
	// tick. Buffered 1: at most one believed leader is ever watched at a
	// time, so a late reader can never cause a second death to be dropped
	// before the first is consumed.
	Deaths chan cluster.Host

	tracker Tracker
}

// LeaderName returns the cluster-global contested name a service's
// LeaderElector claims under - the NameRegistry key, and what a
// transport.MasterClientProxy looks up to discover the current leader host.
func LeaderName(serviceID cluster.ServiceId) string { return "leader(" + string(serviceID) + ")" }

func NewLeaderElector(serviceID cluster.ServiceId, self Claimant, registry NameRegistry, hinter PeerHinter, mon cluster.Monitor) *LeaderElector {
	return &LeaderElector{
		name:     LeaderName(serviceID),
		self:     self,
		registry: registry,
		hinter:   hinter,
		mon:      mon,
		Deaths:   make(chan cluster.Host, 1),
	}
}

func (e *LeaderElector) IsLeader() bool       { return e.isLeader }
func (e *LeaderElector) Believed() Claimant   { return e.believe }

// Tick runs one pass of the election algorithm. It returns an Event
// for the owning MasterLoop to act on (become leader / shut down / register
// as a follower); EventNone means no state change this tick.
func (e *LeaderElector) Tick() Event {
	current, exists := e.registry.Current(e.name)

	switch {
	case e.isLeader && exists && current.Host == e.self.Host:
		// step 2: remain leader.
		return Event{Kind: EventNone}

	case e.isLeader && (!exists || current.Host != e.self.Host):
		// step 3: registry disagrees we're leader - stale leader, exit.
		nlog.Warningf("%s: lost the leader name, stepping down", e.name)
		e.isLeader = false
		e.incLost()
		return Event{Kind: EventOtherIsLeader}

	case exists && !e.believe.IsZero() && current.Host == e.believe.Host:
		// step 4: unchanged incumbent we already track - (re-)register.
		e.believe = current
		return Event{Kind: EventRegisterFollower, Leader: current}

	case exists && (e.believe.IsZero() || current.Host != e.believe.Host):
		// step 5: a new/different incumbent appeared. Watch it, but don't
		// register yet until we've cleared any stale prior-leader state;
		// the next tick (after the death notification lands) retries.
		e.rewatch(current)
		return Event{Kind: EventNone}

	default:
		// step 6: no registered holder - attempt to claim it.
		holder, isSelf, err := e.registry.Claim(e.name, e.self, DefaultResolver)
		if err != nil {
			nlog.Errorf("%s: claim failed: %v", e.name, err)
			return Event{Kind: EventNone}
		}
		if !isSelf {
			// we lost a concurrent claim race; track the winner.
			e.incLost()
			e.rewatch(holder)
			return Event{Kind: EventOtherIsLeader, Leader: holder}
		}
		e.isLeader = true
		e.believe = holder
		e.incWon()
		if e.hinter != nil {
			e.hinter.HintCheckLeader(serviceFromName(e.name))
		}
		nlog.Infof("%s: claimed leadership (%s)", e.name, holder.Host)
		return Event{Kind: EventBecameLeader, Leader: holder}
	}
}

func (e *LeaderElector) rewatch(newLeader Claimant) {
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	e.believe = newLeader
	if e.mon == nil {
		return
	}
	died, cancel := e.mon.Watch(newLeader.Host)
	e.watchCancel = cancel
	go e.awaitDeath(newLeader.Host, died)
}

func (e *LeaderElector) awaitDeath(host cluster.Host, died <-chan struct{}) {
	<-died
	select {
	case e.Deaths <- host:
	default:
		nlog.Warningf("%s: deaths channel full, dropping notification for %s", e.name, host)
	}
}

// OnLeaderDied clears believed-leader state after a liveness notification,
// so the very next tick (or an immediate synchronous Tick) re-attempts a
// claim rather than waiting on step 5's guard.
func (e *LeaderElector) OnLeaderDied(host cluster.Host) {
	if e.believe.Host == host {
		e.believe = Claimant{}
	}
}

// Release vacates this elector's leader name iff we currently hold it
// (its global name slot is vacated on termination),
// so a follower need not wait out a liveness timeout to take over.
func (e *LeaderElector) Release() {
	e.registry.Release(e.name, e.self)
	e.isLeader = false
}

func serviceFromName(name string) cluster.ServiceId {
	// name is always "leader(<service>)"
	if len(name) > len("leader()") {
		return cluster.ServiceId(name[len("leader(") : len(name)-1])
	}
	return ""
}
