// Package master implements MasterLoop (C5) and MasterSupervisor (C6): the
// per-service coordinator state machine that owns MasterState, routes the
// external request surface to ActorIndex/LeaderElector/
// PlacementReconciler, and dispatches opaque UserCallbacks. Grounded on the
// teacher's single-goroutine daemon run loop idiom (ais/htrun.go's request
// handling, xact/xaction.go's single-writer xaction state): one owner
// goroutine draining a request channel plus a ticker plus a liveness-
// notification channel, no locks on MasterState itself.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package master

import "github.com/NVIDIA/aismaster/cluster"

// State is MasterState: one per service, per node. Only the
// owning Loop's run goroutine ever reads or mutates it - no mutex guards it,
// by the same single-writer discipline ActorIndex and LeaderElector rely on.
type State struct {
	ServiceID  cluster.ServiceId
	Self       cluster.Host
	IsLeader   bool
	LeaderHost cluster.Host // zero value: no believed leader
	Followers  map[cluster.NodeId]cluster.Host
	Nodes      map[cluster.NodeId]cluster.NodeInfo
	Instances  map[cluster.NodeId]cluster.InstanceStatus
	ActorIndex *cluster.ActorIndex
	UidCache   *cluster.UidCache
	Spec       cluster.ServiceSpec
	UserState  any
}

func newState(serviceID cluster.ServiceId, self cluster.Host, idx *cluster.ActorIndex, uc *cluster.UidCache) *State {
	return &State{
		ServiceID:  serviceID,
		Self:       self,
		Followers:  make(map[cluster.NodeId]cluster.Host),
		Nodes:      make(map[cluster.NodeId]cluster.NodeInfo),
		Instances:  make(map[cluster.NodeId]cluster.InstanceStatus),
		ActorIndex: idx,
		UidCache:   uc,
	}
}

// Info is the read-only snapshot get_info replies with, copied out of
// State so a caller can never observe a torn read of a map still being
// mutated by the run loop. It is an alias of cluster.ServiceSnapshot so that
// transport's client-facing get_info handler can accept *Loop through a
// structural interface without importing master.
type Info = cluster.ServiceSnapshot

func (s *State) snapshot() Info {
	nodes := make(map[cluster.NodeId]cluster.NodeInfo, len(s.Nodes))
	for k, v := range s.Nodes {
		nodes[k] = v
	}
	instances := make(map[cluster.NodeId]cluster.InstanceStatus, len(s.Instances))
	for k, v := range s.Instances {
		instances[k] = v
	}
	followers := make(map[cluster.NodeId]cluster.Host, len(s.Followers))
	for k, v := range s.Followers {
		followers[k] = v
	}
	return Info{
		ServiceID:  s.ServiceID,
		IsLeader:   s.IsLeader,
		LeaderHost: s.LeaderHost,
		Nodes:      nodes,
		Instances:  instances,
		Followers:  followers,
	}
}
