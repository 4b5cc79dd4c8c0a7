// Package placement implements PlacementReconciler (C4): reconciling the
// desired service placement - one instance per healthy node, at the
// leader's current version - against the observed node set and instance
// status reports. Grounded on the rebalance decision procedure
// (reb/: compute a target distribution from the current Smap, diff it
// against what is actually present, dispatch per-target work), generalized
// from object placement to service-instance placement: Decide is a pure
// function recomputed fresh on every trigger rather than a queued diff, and
// Reconciler fans the resulting RPCs out to detached worker goroutines so
// the owning MasterLoop never blocks on one.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package placement

import (
	"sort"

	"github.com/NVIDIA/aismaster/cluster"
)

// Decision is the output of one reconciliation pass's four-step decision
// procedure. It is computed as a pure function of nodes/instances so it can
// be asserted against directly in tests, with no RPC dispatch.
type Decision struct {
	ToStart  []cluster.NodeId // Running \ keys(instances)
	ToStop   []cluster.NodeId // NotRunning ∩ keys(instances)
	ToUpdate []cluster.NodeId // Running, reported version_hash != current
	Drop     []cluster.NodeId // keys(instances) \ Running \ NotRunning (Unknown)
}

func (d Decision) Empty() bool {
	return len(d.ToStart) == 0 && len(d.ToStop) == 0 && len(d.ToUpdate) == 0 && len(d.Drop) == 0
}

// Decide runs the single-pass decision procedure against
// nodes (NodeService's latest snapshot), instances (the leader's view of
// what ServiceRuntime last reported per node), and versionHash (the
// leader's current service spec's version).
func Decide(nodes map[cluster.NodeId]cluster.NodeInfo, instances map[cluster.NodeId]cluster.InstanceStatus, versionHash string) Decision {
	var d Decision

	for id, inst := range instances {
		info, known := nodes[id]
		switch {
		case !known || info.Status == cluster.NodeOther:
			// a row from a node we no longer know about, or whose status
			// we can't classify.
			d.Drop = append(d.Drop, id)
		case info.Status == cluster.NodeDown:
			d.ToStop = append(d.ToStop, id)
		case info.Status == cluster.NodeNormal && inst.VersionHash != versionHash:
			d.ToUpdate = append(d.ToUpdate, id)
		}
	}

	for id, info := range nodes {
		if info.Status != cluster.NodeNormal {
			continue
		}
		if _, ok := instances[id]; !ok {
			d.ToStart = append(d.ToStart, id)
		}
	}

	sortNodeIds(d.ToStart)
	sortNodeIds(d.ToStop)
	sortNodeIds(d.ToUpdate)
	sortNodeIds(d.Drop)
	return d
}

func sortNodeIds(ids []cluster.NodeId) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
