package placement_test

import (
	"testing"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/placement"
)

func node(id string, status cluster.NodeStatus) cluster.NodeInfo {
	return cluster.NodeInfo{ID: cluster.NodeId(id), Status: status}
}

func inst(id, vsn string) cluster.InstanceStatus {
	return cluster.InstanceStatus{Node: cluster.NodeId(id), VersionHash: vsn}
}

// S5: leader observes {N1: normal, N2: normal, N3: down} and
// instances={N1: v1, N3: v1} - reconciliation issues start on N2, stop on
// N3, and nothing for N1 (already at the desired version).
func TestDecideS5Reconciliation(t *testing.T) {
	nodes := map[cluster.NodeId]cluster.NodeInfo{
		"N1": node("N1", cluster.NodeNormal),
		"N2": node("N2", cluster.NodeNormal),
		"N3": node("N3", cluster.NodeDown),
	}
	instances := map[cluster.NodeId]cluster.InstanceStatus{
		"N1": inst("N1", "v1"),
		"N3": inst("N3", "v1"),
	}

	d := placement.Decide(nodes, instances, "v1")
	assertNodeIds(t, "ToStart", d.ToStart, "N2")
	assertNodeIds(t, "ToStop", d.ToStop, "N3")
	assertNodeIds(t, "ToUpdate", d.ToUpdate)
	assertNodeIds(t, "Drop", d.Drop)

	// After N3 is stopped and N2 started, the next pass against the new
	// observed state issues nothing.
	instances2 := map[cluster.NodeId]cluster.InstanceStatus{
		"N1": inst("N1", "v1"),
		"N2": inst("N2", "v1"),
	}
	d2 := placement.Decide(nodes, instances2, "v1")
	if !d2.Empty() {
		t.Fatalf("expected empty decision once converged, got %+v", d2)
	}
}

// S6: leader's current hash is h2; N2 reports h1 - reconciliation issues
// update on N2; once N2 reports h2, no further RPC is issued.
func TestDecideS6VersionUpgrade(t *testing.T) {
	nodes := map[cluster.NodeId]cluster.NodeInfo{
		"N1": node("N1", cluster.NodeNormal),
		"N2": node("N2", cluster.NodeNormal),
	}
	instances := map[cluster.NodeId]cluster.InstanceStatus{
		"N1": inst("N1", "h2"),
		"N2": inst("N2", "h1"),
	}

	d := placement.Decide(nodes, instances, "h2")
	assertNodeIds(t, "ToUpdate", d.ToUpdate, "N2")
	assertNodeIds(t, "ToStart", d.ToStart)
	assertNodeIds(t, "ToStop", d.ToStop)

	instances["N2"] = inst("N2", "h2")
	d2 := placement.Decide(nodes, instances, "h2")
	if !d2.Empty() {
		t.Fatalf("expected empty decision once converged, got %+v", d2)
	}
}

func TestDecideDropsUnknownInstances(t *testing.T) {
	nodes := map[cluster.NodeId]cluster.NodeInfo{
		"N1": node("N1", cluster.NodeNormal),
		"N2": node("N2", cluster.NodeOther),
	}
	instances := map[cluster.NodeId]cluster.InstanceStatus{
		"N1": inst("N1", "v1"),
		"N2": inst("N2", "v1"), // status other: dropped, not stopped
		"N9": inst("N9", "v1"), // not in nodes at all: dropped
	}

	d := placement.Decide(nodes, instances, "v1")
	assertNodeIds(t, "Drop", d.Drop, "N2", "N9")
	assertNodeIds(t, "ToStop", d.ToStop)
}

func TestDecideIdempotent(t *testing.T) {
	nodes := map[cluster.NodeId]cluster.NodeInfo{
		"N1": node("N1", cluster.NodeNormal),
	}
	instances := map[cluster.NodeId]cluster.InstanceStatus{
		"N1": inst("N1", "v1"),
	}
	d1 := placement.Decide(nodes, instances, "v1")
	d2 := placement.Decide(nodes, instances, "v1")
	if !d1.Empty() || !d2.Empty() {
		t.Fatalf("expected both passes empty, got %+v and %+v", d1, d2)
	}
}

func assertNodeIds(t *testing.T, field string, got []cluster.NodeId, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %v, want %v", field, got, want)
	}
	for i, w := range want {
		if string(got[i]) != w {
			t.Fatalf("%s: got %v, want %v", field, got, want)
		}
	}
}
