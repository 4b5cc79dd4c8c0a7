package placement_test

import (
	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/placement"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reconciler", func() {
	var (
		rt   *fakeRuntime
		recn *placement.Reconciler
		spec cluster.ServiceSpec
	)

	BeforeEach(func() {
		rt = newFakeRuntime()
		recn = placement.NewReconciler(rt)
		spec = cluster.ServiceSpec{ServiceId: "svc", VersionHash: "v1"}
	})

	It("dispatches exactly the RPCs a Decision names", func() {
		d := placement.Decision{
			ToStart:  []cluster.NodeId{"N2"},
			ToStop:   []cluster.NodeId{"N3"},
			ToUpdate: []cluster.NodeId{"N4"},
		}
		recn.Run(d, spec)
		recn.Wait()

		started, stopped, updated := rt.snapshot()
		Expect(started).To(ConsistOf(cluster.NodeId("N2")))
		Expect(stopped).To(ConsistOf(cluster.NodeId("N3")))
		Expect(updated).To(ConsistOf(cluster.NodeId("N4")))
	})

	It("does not retry synchronously on RPC failure - best effort, next tick re-drives", func() {
		rt.failNodes["N2"] = true
		d := placement.Decision{ToStart: []cluster.NodeId{"N2"}}
		recn.Run(d, spec)
		recn.Wait()

		started, _, _ := rt.snapshot()
		Expect(started).To(Equal([]cluster.NodeId{"N2"})) // attempted exactly once
	})

	It("issues nothing for an empty Decision", func() {
		recn.Run(placement.Decision{}, spec)
		recn.Wait()
		started, stopped, updated := rt.snapshot()
		Expect(started).To(BeEmpty())
		Expect(stopped).To(BeEmpty())
		Expect(updated).To(BeEmpty())
	})

	It("reports dispatched RPCs to a wired Tracker, successes and failures separately", func() {
		tracker := newFakeTracker()
		recn.SetTracker(tracker)
		rt.failNodes["N5"] = true

		d := placement.Decision{ToStart: []cluster.NodeId{"N2", "N5"}}
		recn.Run(d, spec)
		recn.Wait()

		Expect(tracker.get("reconcile_rpcs")).To(Equal(1))
		Expect(tracker.get("reconcile_rpcs_error")).To(Equal(1))
	})
})
