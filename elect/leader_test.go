package elect_test

import (
	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/elect"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func claimant(node, pid string, start int64, tie string) elect.Claimant {
	return elect.Claimant{
		Host:  cluster.Host{Node: cluster.NodeId(node), PID: pid},
		Epoch: cluster.NodeEpoch{NodeID: cluster.NodeId(node), StartTime: start, Tie: tie},
	}
}

var _ = Describe("LeaderElector", func() {
	var (
		reg    *elect.MemRegistry
		hinter *fakeHinter
		mon    *fakeMonitor
	)

	BeforeEach(func() {
		reg = elect.NewMemRegistry()
		hinter = &fakeHinter{}
		mon = newFakeMonitor()
	})

	It("S1: a solo node claims leadership and hints peers", func() {
		self := claimant("n1", "p1", 100, "a")
		e := elect.NewLeaderElector("svc", self, reg, hinter, mon)

		ev := e.Tick()
		Expect(ev.Kind).To(Equal(elect.EventBecameLeader))
		Expect(e.IsLeader()).To(BeTrue())
		Expect(hinter.Count()).To(Equal(1))

		// step 2: remains leader on subsequent ticks.
		ev = e.Tick()
		Expect(ev.Kind).To(Equal(elect.EventNone))
		Expect(e.IsLeader()).To(BeTrue())
	})

	It("S2: a follower observes the incumbent and registers with it", func() {
		leader := claimant("n1", "p1", 100, "a")
		_, _, _ = reg.Claim("leader(svc)", leader, elect.DefaultResolver)

		follower := claimant("n2", "p2", 200, "b")
		e := elect.NewLeaderElector("svc", follower, reg, hinter, mon)

		ev := e.Tick() // step 5: first sighting, watches but doesn't register yet
		Expect(ev.Kind).To(Equal(elect.EventNone))
		Expect(e.IsLeader()).To(BeFalse())

		ev = e.Tick() // step 4: incumbent unchanged - register as follower
		Expect(ev.Kind).To(Equal(elect.EventRegisterFollower))
		Expect(ev.Leader.Host).To(Equal(leader.Host))
	})

	It("S3: failover - leader dies, the sole survivor claims the name", func() {
		leader := claimant("n1", "p1", 100, "a")
		_, _, _ = reg.Claim("leader(svc)", leader, elect.DefaultResolver)

		follower := claimant("n2", "p2", 200, "b")
		e := elect.NewLeaderElector("svc", follower, reg, hinter, mon)
		e.Tick() // observes incumbent
		e.Tick() // registers as follower

		reg.Release("leader(svc)", leader)
		e.OnLeaderDied(leader.Host)

		ev := e.Tick()
		Expect(ev.Kind).To(Equal(elect.EventBecameLeader))
		Expect(e.IsLeader()).To(BeTrue())
	})

	It("S4: split-brain - earlier StartTime wins the conflict", func() {
		early := claimant("n1", "p1", 100, "a")
		late := claimant("n2", "p2", 200, "b")

		e1 := elect.NewLeaderElector("svc", early, elect.NewMemRegistry(), hinter, mon)
		Expect(e1.Tick().Kind).To(Equal(elect.EventBecameLeader))

		// Simulate the partition healing onto a single shared registry: both
		// sides had independently claimed the name pre-heal; resolving the
		// conflict directly exercises DefaultResolver's ordering.
		winner := elect.DefaultResolver("leader(svc)", late, early)
		Expect(winner.Host).To(Equal(early.Host))

		winner = elect.DefaultResolver("leader(svc)", early, late)
		Expect(winner.Host).To(Equal(early.Host))
	})

	It("S4b: equal StartTime falls back to the Tie token", func() {
		a := claimant("n1", "p1", 100, "aaa")
		b := claimant("n2", "p2", 100, "zzz")
		Expect(elect.DefaultResolver("x", a, b).Host).To(Equal(a.Host))
		Expect(elect.DefaultResolver("x", b, a).Host).To(Equal(a.Host))
	})

	It("defers to an earlier starter that already holds the name", func() {
		early := claimant("n1", "p1", 50, "a")
		late := claimant("n2", "p2", 500, "b")

		_, isSelf, err := reg.Claim("leader(svc)", early, elect.DefaultResolver)
		Expect(err).NotTo(HaveOccurred())
		Expect(isSelf).To(BeTrue())

		e := elect.NewLeaderElector("svc", late, reg, hinter, mon)
		ev := e.Tick()
		Expect(ev.Kind).To(Equal(elect.EventNone)) // step 5: sees the existing incumbent
		Expect(e.IsLeader()).To(BeFalse())
	})

	It("reports a won election to a wired Tracker", func() {
		tracker := newFakeTracker()
		self := claimant("n1", "p1", 100, "a")
		e := elect.NewLeaderElector("svc", self, reg, hinter, mon)
		e.SetTracker(tracker)

		Expect(e.Tick().Kind).To(Equal(elect.EventBecameLeader))
		Expect(tracker.get("elections_won")).To(Equal(1))
		Expect(tracker.get("elections_lost")).To(Equal(0))
	})

	It("reports a stale-leader step-down to a wired Tracker", func() {
		tracker := newFakeTracker()

		self := claimant("n1", "p1", 100, "a")
		e := elect.NewLeaderElector("svc", self, reg, hinter, mon)
		e.SetTracker(tracker)
		Expect(e.Tick().Kind).To(Equal(elect.EventBecameLeader))

		// another claimant takes the name out from under us; step 3 sees
		// the registry disagrees and steps down.
		other := claimant("n2", "p2", 50, "b")
		reg.Release("leader(svc)", self)
		_, _, err := reg.Claim("leader(svc)", other, elect.DefaultResolver)
		Expect(err).NotTo(HaveOccurred())

		ev := e.Tick()
		Expect(ev.Kind).To(Equal(elect.EventOtherIsLeader))
		Expect(tracker.get("elections_lost")).To(Equal(1))
		Expect(tracker.get("elections_won")).To(Equal(1))
	})

})
