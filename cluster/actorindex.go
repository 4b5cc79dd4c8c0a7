package cluster

import (
	"sync"

	"github.com/NVIDIA/aismaster/cmn/debug"
	"github.com/NVIDIA/aismaster/cmn/nlog"
)

// Monitor installs a liveness watch on a Host: died fires (is closed) when
// the host is no longer reachable; cancel releases the watch early. Modeled
// after process monitors; a Transport implementation may back this with
// keepalives instead of first-class monitoring.
type Monitor interface {
	Watch(host Host) (died <-chan struct{}, cancel func())
}

type hostEntry struct {
	uid    string
	cancel func()
}

// ActorIndex is the leader's in-memory, pid-keyed actor registry (C1): three
// mutually consistent views (by-uid, by-name, by-host) under a single
// sync.RWMutex, matching the xreg registry idiom (xact/xreg/xreg.go:
// RWMutex-guarded maps, read-mostly lookups, single-writer mutation).
//
// ActorIndex is the only component that installs actor monitors: on host
// death, the watch goroutine sends the dead Host on Deaths so the owning
// MasterLoop - the single writer for all of MasterState - can invoke
// RemoveByHost itself rather than mutating the index from a foreign
// goroutine.
type ActorIndex struct {
	serviceID ServiceId
	mon       Monitor
	Deaths    chan Host
	tracker   Tracker

	mu     sync.RWMutex
	byUID  map[string]ActorId
	byName map[NameKey]ActorId
	byHost map[Host]hostEntry
}

func NewActorIndex(serviceID ServiceId, mon Monitor) *ActorIndex {
	return &ActorIndex{
		serviceID: serviceID,
		mon:       mon,
		Deaths:    make(chan Host, 64),
		byUID:     make(map[string]ActorId),
		byName:    make(map[NameKey]ActorId),
		byHost:    make(map[Host]hostEntry),
	}
}

// Register installs or renames an actor:
//   - no existing (class,name) entry: fresh insert, monitor installed.
//   - host already registered (under this or another (class,name)): rename -
//     drop its old rows, insert new.
//   - existing entry for a DIFFERENT host: already_registered.
func (idx *ActorIndex) Register(a ActorId) error {
	key := NameKey{Class: a.Class, Name: a.Name}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.byName[key]; ok && existing.Host != a.Host {
		return NewError(AlreadyRegistered, key.Class+"/"+key.Name)
	}
	// rename: same host, new (or same) name/uid - drop its old rows first.
	idx.removeLocked(a.Host)

	died, cancel := idx.mon.Watch(a.Host)
	idx.byUID[a.Uid] = a
	idx.byName[key] = a
	idx.byHost[a.Host] = hostEntry{uid: a.Uid, cancel: cancel}

	go idx.awaitDeath(a.Host, died)
	if idx.tracker != nil {
		idx.tracker.Inc(metricActorRegistrations)
	}
	return nil
}

func (idx *ActorIndex) awaitDeath(host Host, died <-chan struct{}) {
	<-died
	select {
	case idx.Deaths <- host:
	default:
		nlog.Warningf("actor index: deaths channel full, dropping notification for %s", host)
	}
}

// FindByName requires service == idx.serviceID; a mismatch is logged and
// reported as not_found rather than invalid_service.
func (idx *ActorIndex) FindByName(service ServiceId, key NameKey) (ActorId, error) {
	if service != idx.serviceID {
		nlog.Warningf("actor index: find_by_name for foreign service %q (self %q)", service, idx.serviceID)
		return ActorId{}, NewError(ActorNotFound, "")
	}

	idx.mu.RLock()
	a, ok := idx.byName[key]
	idx.mu.RUnlock()
	if !ok {
		return ActorId{}, NewError(ActorNotFound, key.Class+"/"+key.Name)
	}

	// consistency cross-check: resolve uid back and confirm it points at
	// the same host. Guards against torn updates; an implementation using
	// a single atomic multi-row swap (as ours does, under one mutex) can
	// never actually observe a mismatch here, so this never logs in
	// practice - kept because a future non-atomic storage backend might.
	idx.mu.RLock()
	back, ok := idx.byUID[a.Uid]
	idx.mu.RUnlock()
	if !ok || back.Host != a.Host {
		nlog.Warningf("actor index: cross-check failed for %s (torn update?)", a)
		return ActorId{}, NewError(ActorNotFound, key.Class+"/"+key.Name)
	}
	return a, nil
}

func (idx *ActorIndex) FindByUid(uid string) (ActorId, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	a, ok := idx.byUID[uid]
	if !ok {
		return ActorId{}, NewError(ActorNotFound, uid)
	}
	return a, nil
}

// RemoveByHost atomically drops all three rows for host and releases its
// monitor; called by MasterLoop on a liveness notification from Deaths.
func (idx *ActorIndex) RemoveByHost(host Host) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeLocked(host)
}

func (idx *ActorIndex) removeLocked(host Host) bool {
	entry, ok := idx.byHost[host]
	if !ok {
		return false
	}
	a, ok := idx.byUID[entry.uid]
	debug.Assert(ok, "by-host/by-uid rows diverged")
	delete(idx.byUID, entry.uid)
	delete(idx.byName, NameKey{Class: a.Class, Name: a.Name})
	delete(idx.byHost, host)
	entry.cancel()
	return true
}

// Len reports the number of distinct hosts currently registered - used by
// get_info snapshots and tests.
func (idx *ActorIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byHost)
}
