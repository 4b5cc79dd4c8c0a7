// Package iface defines the boundary interfaces a MasterLoop incarnation is
// wired against: the node membership source, the per-node service runtime,
// the configuration store, and the user-supplied callback set. Grounded on
// a cluster.Bownerp/cluster.NLB-style narrow collaborator
// interfaces (cluster/clustermap.go, cluster/lom.go): small, read-mostly,
// push-subscribed, never a god interface.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package iface

import (
	"context"

	"github.com/NVIDIA/aismaster/cluster"
)

// NodeService is the leader's view of cluster membership: it
// pushes the current node set on every change rather than being polled, so
// PlacementReconciler always reconciles against a fresh snapshot.
type NodeService interface {
	// Subscribe registers onUpdate to be called with the full node set
	// whenever membership or any node's status changes, including once
	// immediately with the current snapshot. cancel unregisters it.
	Subscribe(onUpdate func(map[cluster.NodeId]cluster.NodeInfo)) (cancel func())
}

// ServiceRuntime starts, stops, updates, and replaces service instances on a
// given node, and reports back what is actually running there.
type ServiceRuntime interface {
	Start(ctx context.Context, node cluster.NodeId, spec cluster.ServiceSpec) error
	Stop(ctx context.Context, node cluster.NodeId, service cluster.ServiceId) error
	Update(ctx context.Context, node cluster.NodeId, spec cluster.ServiceSpec) error
	Replace(ctx context.Context, node cluster.NodeId, spec cluster.ServiceSpec) error

	// SubscribeStatus registers onStatus to be called whenever a node
	// reports its running instance's version. cancel unregisters it.
	SubscribeStatus(service cluster.ServiceId, onStatus func(cluster.InstanceStatus)) (cancel func())
}

// ConfigStore sources the canonical, versioned ServiceSpec a leader
// reconciles placement against.
type ConfigStore interface {
	Get(ctx context.Context, service cluster.ServiceId) (cluster.ServiceSpec, error)
}

// UserCallbacks is the user-supplied behavior hook set a MasterLoop drives,
// mirroring an OTP gen_server's init/handle_call/handle_cast/handle_info/
// code_change/terminate callbacks.
type UserCallbacks interface {
	// Init is called once as the master incarnation comes up, before it
	// attempts to claim leadership. state is the caller's opaque, mutable
	// user state, threaded through every subsequent callback.
	Init(service cluster.ServiceId) (state any, err error)

	// HandleCall services a synchronous request; reply is sent back to the
	// caller. Returning an error fails that request without affecting
	// the master's own state.
	HandleCall(state any, req any) (reply any, err error)

	// HandleCast services a fire-and-forget request.
	HandleCast(state any, req any)

	// HandleInfo services an internal event not originated by a client
	// request - e.g. a placement reconciliation tick completing.
	HandleInfo(state any, info any)

	// FindUid is consulted when ActorIndex.FindByUid misses: the
	// implementation may resolve uid through whatever external means
	// the service defines and reply with the actor, or report it does
	// not exist.
	FindUid(uid string, state any) (cluster.ActorId, error)

	// CodeChange is invoked across a hot-upgrade of the callback module;
	// oldVsn identifies the version being upgraded from. Most
	// implementations return state unchanged.
	CodeChange(state any, oldVsn string) (any, error)

	// Terminate is called once as the master incarnation shuts down,
	// whether by request or supervisor-ordered restart.
	Terminate(state any, reason error)
}

// PeerTransport is the master-to-master RPC surface: a follower calls
// RegisterFollower on the believed leader's host after observing it as the
// incumbent; a freshly-elected leader calls HintCheckLeader on
// every peer master for the same service so they converge before their own
// next tick. transport.MasterPeerClient is the production
// HTTP-backed implementation.
type PeerTransport interface {
	RegisterFollower(leader cluster.Host, service cluster.ServiceId, self cluster.Host) error
	HintCheckLeader(service cluster.ServiceId)
}
