package master_test

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn"
	"github.com/NVIDIA/aismaster/elect"
	"github.com/NVIDIA/aismaster/master"
	"github.com/NVIDIA/aismaster/nodesvc/memnode"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordingTracker struct {
	mu       sync.Mutex
	restarts int
	gaveUp   []cluster.ServiceId
}

func (t *recordingTracker) OnRestart(cluster.ServiceId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restarts++
}

func (t *recordingTracker) OnGiveUp(service cluster.ServiceId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gaveUp = append(t.gaveUp, service)
}

func (t *recordingTracker) snapshot() (int, []cluster.ServiceId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restarts, append([]cluster.ServiceId{}, t.gaveUp...)
}

var _ = Describe("Supervisor", func() {
	BeforeEach(func() {
		cmn.Rom.Set(&cmn.Config{ElectTick: 5 * time.Millisecond})
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

	// restart a crashing child until the restart budget is exhausted, then
	// give up rather than restart it forever.
	It("gives up after exceeding MaxRestarts within the window", func() {
		tracker := &recordingTracker{}
		policy := master.RestartPolicy{MaxRestarts: 2, Window: time.Minute}
		sup := master.NewSupervisor(policy, tracker)

		var builds atomic.Int32
		factory := func() *master.Loop {
			builds.Add(1)
			registry := elect.NewMemRegistry()
			cb := &fakeCallbacks{}
			l := master.New(svc, cluster.Host{Node: "n1", PID: "p1"}, newEpoch("n1"),
				registry, &fakePeers{}, newFakeMonitor(), memnode.New(), newFakeRuntime(),
				fixedConfigStore{spec: cluster.ServiceSpec{ServiceId: svc, VersionHash: "v1"}}, cb)
			// terminate this incarnation almost immediately so the
			// supervisor's restart loop runs quickly.
			go func() {
				time.Sleep(5 * time.Millisecond)
				l.Stop()
			}()
			return l
		}

		sup.Start(svc, factory)

		Eventually(func() []cluster.ServiceId {
			_, gaveUp := tracker.snapshot()
			return gaveUp
		}, 2*time.Second).Should(ContainElement(svc))

		restarts, _ := tracker.snapshot()
		Expect(restarts).To(BeNumerically("<=", 2))
		Expect(int(builds.Load())).To(BeNumerically(">=", 3))
	})

	// Stop prevents further restarts and terminates the running incarnation.
	It("stops restarting once Stop is called", func() {
		tracker := &recordingTracker{}
		policy := master.DefaultRestartPolicy()
		sup := master.NewSupervisor(policy, tracker)

		factory := func() *master.Loop {
			registry := elect.NewMemRegistry()
			cb := &fakeCallbacks{}
			return master.New(svc, cluster.Host{Node: "n1", PID: "p1"}, newEpoch("n1"),
				registry, &fakePeers{}, newFakeMonitor(), memnode.New(), newFakeRuntime(),
				fixedConfigStore{spec: cluster.ServiceSpec{ServiceId: svc, VersionHash: "v1"}}, cb)
		}

		sup.Start(svc, factory)

		Eventually(func() bool {
			_, ok := sup.Loop(svc)
			return ok
		}, time.Second).Should(BeTrue())

		sup.Stop(svc)

		loop, ok := sup.Loop(svc)
		Expect(ok).To(BeTrue())
		Eventually(loop.Done(), time.Second).Should(BeClosed())

		restartsBefore, _ := tracker.snapshot()
		time.Sleep(50 * time.Millisecond)
		restartsAfter, _ := tracker.snapshot()
		Expect(restartsAfter).To(Equal(restartsBefore))
	})
})
