package master_test

import (
	"context"
	"time"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn"
	"github.com/NVIDIA/aismaster/elect"
	"github.com/NVIDIA/aismaster/master"
	"github.com/NVIDIA/aismaster/nodesvc/memnode"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const svc = cluster.ServiceId("ml-infer")

func newEpoch(tie string) cluster.NodeEpoch {
	return cluster.NodeEpoch{NodeID: cluster.NodeId(tie), StartTime: time.Now().UnixNano(), Tie: tie}
}

func newTestLoop(node string, registry elect.NameRegistry, peers *fakePeers, mon cluster.Monitor, nodes *memnode.Service, runtime *fakeRuntime, cb *fakeCallbacks) *master.Loop {
	self := cluster.Host{Node: cluster.NodeId(node), PID: node + "-pid"}
	epoch := newEpoch(node)
	cfg := fixedConfigStore{spec: cluster.ServiceSpec{ServiceId: svc, VersionHash: "v1"}}
	return master.New(svc, self, epoch, registry, peers, mon, nodes, runtime, cfg, cb)
}

type fixedConfigStore struct{ spec cluster.ServiceSpec }

func (f fixedConfigStore) Get(_ context.Context, _ cluster.ServiceId) (cluster.ServiceSpec, error) {
	return f.spec, nil
}

var _ = Describe("Loop", func() {
	var (
		registry *elect.MemRegistry
		mon      *fakeMonitor
		peers    *fakePeers
		nodes    *memnode.Service
		runtime  *fakeRuntime
		cb       *fakeCallbacks
	)

	BeforeEach(func() {
		// shrink the election tick so tests don't wait out the production
		// 5s default; restored in AfterEach.
		cmn.Rom.Set(&cmn.Config{ElectTick: 20 * time.Millisecond})

		registry = elect.NewMemRegistry()
		mon = newFakeMonitor()
		peers = &fakePeers{}
		nodes = memnode.New()
		runtime = newFakeRuntime()
		cb = &fakeCallbacks{}
	})

	// S1: a lone node claims leadership on its first tick.
	It("becomes leader when no incumbent holds the name", func() {
		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		defer l.Stop()

		Eventually(func() bool { return l.GetInfo().IsLeader }, time.Second).Should(BeTrue())
		info := l.GetInfo()
		Expect(info.LeaderHost.Node).To(Equal(cluster.NodeId("n1")))
	})

	It("reports an election win to a wired Tracker", func() {
		tracker := newFakeTracker()
		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		l.SetTracker(tracker)
		go l.Run()
		defer l.Stop()

		Eventually(func() int { return tracker.get("elections_won") }, time.Second).Should(Equal(1))
	})

	// S2: a follower observes the incumbent and registers with it instead of
	// claiming for itself.
	It("registers as a follower of an already-claimed leader", func() {
		incumbent := elect.Claimant{Host: cluster.Host{Node: "n0", PID: "n0-pid"}, Epoch: newEpoch("n0")}
		_, _, err := registry.Claim("leader("+string(svc)+")", incumbent, elect.DefaultResolver)
		Expect(err).NotTo(HaveOccurred())

		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		defer l.Stop()

		Eventually(func() int { return peers.regCount() }, time.Second).Should(BeNumerically(">=", 1))
		Expect(l.GetInfo().IsLeader).To(BeFalse())
	})

	// S3: losing the believed leader's liveness watch triggers an immediate
	// re-claim attempt rather than waiting a full tick interval.
	It("claims leadership promptly after the incumbent dies", func() {
		incumbentHost := cluster.Host{Node: "n0", PID: "n0-pid"}
		incumbent := elect.Claimant{Host: incumbentHost, Epoch: newEpoch("n0")}
		_, _, err := registry.Claim("leader("+string(svc)+")", incumbent, elect.DefaultResolver)
		Expect(err).NotTo(HaveOccurred())

		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		defer l.Stop()

		Eventually(func() int { return peers.regCount() }, time.Second).Should(BeNumerically(">=", 1))

		registry.Release("leader("+string(svc)+")", incumbent)
		mon.Kill(incumbentHost)

		Eventually(func() bool { return l.GetInfo().IsLeader }, time.Second).Should(BeTrue())
	})

	// StopService broadcasts stop to every known node but leaves leadership
	// and the run loop itself intact.
	It("broadcasts stop to every known node on StopService", func() {
		nodes.SetNode("n2", cluster.NodeNormal)

		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		defer l.Stop()

		Eventually(func() bool { return l.GetInfo().IsLeader }, time.Second).Should(BeTrue())

		err := l.StopService()
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int {
			_, stopped, _ := runtime.counts()
			return stopped[cluster.NodeId("n2")]
		}, time.Second).Should(BeNumerically(">=", 1))
		Expect(l.GetInfo().IsLeader).To(BeTrue())
	})

	// clean shutdown vacates the leader name so a follower need not wait out
	// a liveness timeout to take over.
	It("vacates the leader name on clean Stop", func() {
		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()

		Eventually(func() bool { return l.GetInfo().IsLeader }, time.Second).Should(BeTrue())

		l.Stop()

		_, exists := registry.Current("leader(" + string(svc) + ")")
		Expect(exists).To(BeFalse())
	})

	// reconciliation: a node reported as normal with no running instance gets
	// a Start dispatched once this Loop becomes leader and sees it.
	It("starts a missing instance on a normal node once leader", func() {
		nodes.SetNode("n2", cluster.NodeNormal)

		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		defer l.Stop()

		Eventually(func() int {
			started, _, _ := runtime.counts()
			return started[cluster.NodeId("n2")]
		}, time.Second).Should(BeNumerically(">=", 1))
	})

	It("registers an actor and finds it back by name and uid", func() {
		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		defer l.Stop()

		Eventually(func() bool { return l.GetInfo().IsLeader }, time.Second).Should(BeTrue())

		actor := cluster.ActorId{Service: svc, Class: "worker", Name: "w1", Uid: "uid-1", Host: cluster.Host{Node: "n2", PID: "p2"}}
		_, err := l.RegisterActor(actor)
		Expect(err).NotTo(HaveOccurred())

		found, err := l.FindActorByName(svc, cluster.NameKey{Class: "worker", Name: "w1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(found.Uid).To(Equal("uid-1"))

		byUid, err := l.FindActorByUid("uid-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(byUid.Name).To(Equal("w1"))
	})

	It("rejects register_actor for a foreign service", func() {
		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		defer l.Stop()

		Eventually(func() bool { return l.GetInfo().IsLeader }, time.Second).Should(BeTrue())

		actor := cluster.ActorId{Service: "other-service", Class: "worker", Name: "w1", Uid: "uid-2"}
		_, err := l.RegisterActor(actor)
		Expect(err).To(HaveOccurred())
		Expect(cluster.IsKind(err, cluster.InvalidService)).To(BeTrue())
	})

	It("falls back to UserCallbacks.FindUid on an ActorIndex miss", func() {
		want := cluster.ActorId{Service: svc, Class: "worker", Name: "w9", Uid: "external-uid"}
		cb.findUidFunc = func(uid string) (cluster.ActorId, error) {
			if uid == "external-uid" {
				return want, nil
			}
			return cluster.ActorId{}, cluster.NewError(cluster.ActorNotFound, uid)
		}

		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		defer l.Stop()

		Eventually(func() bool { return l.GetInfo().IsLeader }, time.Second).Should(BeTrue())

		got, err := l.FindActorByUid("external-uid")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(want))
	})

	It("runs user Terminate on shutdown", func() {
		l := newTestLoop("n1", registry, peers, mon, nodes, runtime, cb)
		go l.Run()
		l.Stop()
		Expect(cb.terminationCount()).To(Equal(1))
	})

	AfterEach(func() {
		cmn.Rom.Set(&cmn.Config{
			ElectTick:     5 * time.Second,
			ClientTimeout: 5 * time.Second,
			RetryBackoff:  time.Second,
			RetryMax:      10,
			RPCTimeout:    5 * time.Second,
		})
	})
})
