package cluster_test

import (
	"time"

	"github.com/NVIDIA/aismaster/cluster"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ActorIndex", func() {
	var (
		mon *fakeMonitor
		idx *cluster.ActorIndex
		a   cluster.ActorId
	)

	BeforeEach(func() {
		mon = newFakeMonitor()
		idx = cluster.NewActorIndex("svc", mon)
		a = cluster.ActorId{
			Service: "svc", Class: "worker", Name: "w1", Uid: "uid-1",
			Host: cluster.Host{Node: "n1", PID: "p1"},
		}
	})

	It("round-trips register/find_by_name/find_by_uid", func() {
		Expect(idx.Register(a)).To(Succeed())

		got, err := idx.FindByName("svc", cluster.NameKey{Class: "worker", Name: "w1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(a))

		byUID, err := idx.FindByUid("uid-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(byUID).To(Equal(a))
	})

	It("rejects find_by_name for a foreign service", func() {
		Expect(idx.Register(a)).To(Succeed())
		_, err := idx.FindByName("other-svc", cluster.NameKey{Class: "worker", Name: "w1"})
		Expect(cluster.IsKind(err, cluster.ActorNotFound)).To(BeTrue())
	})

	It("rejects a second registration of the same name from a different host", func() {
		Expect(idx.Register(a)).To(Succeed())
		b := a
		b.Host = cluster.Host{Node: "n2", PID: "p2"}
		b.Uid = "uid-2"
		err := idx.Register(b)
		Expect(cluster.IsKind(err, cluster.AlreadyRegistered)).To(BeTrue())
	})

	It("treats a same-host re-register as a rename", func() {
		Expect(idx.Register(a)).To(Succeed())
		renamed := a
		renamed.Name = "w1-renamed"
		Expect(idx.Register(renamed)).To(Succeed())

		_, err := idx.FindByName("svc", cluster.NameKey{Class: "worker", Name: "w1"})
		Expect(cluster.IsKind(err, cluster.ActorNotFound)).To(BeTrue())

		got, err := idx.FindByName("svc", cluster.NameKey{Class: "worker", Name: "w1-renamed"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Host).To(Equal(a.Host))
	})

	It("removes both views atomically on host death", func() {
		Expect(idx.Register(a)).To(Succeed())
		mon.Kill(a.Host)

		var dead cluster.Host
		Eventually(idx.Deaths, time.Second).Should(Receive(&dead))
		Expect(dead).To(Equal(a.Host))

		Expect(idx.RemoveByHost(dead)).To(BeTrue())
		_, err := idx.FindByUid("uid-1")
		Expect(cluster.IsKind(err, cluster.ActorNotFound)).To(BeTrue())
		_, err = idx.FindByName("svc", cluster.NameKey{Class: "worker", Name: "w1"})
		Expect(cluster.IsKind(err, cluster.ActorNotFound)).To(BeTrue())
		Expect(idx.Len()).To(Equal(0))
	})

	It("reconciliation (remove) is idempotent", func() {
		Expect(idx.Register(a)).To(Succeed())
		Expect(idx.RemoveByHost(a.Host)).To(BeTrue())
		Expect(idx.RemoveByHost(a.Host)).To(BeFalse())
	})

	It("reports a successful registration to a wired Tracker", func() {
		tracker := newFakeTracker()
		idx.SetTracker(tracker)

		Expect(idx.Register(a)).To(Succeed())
		Expect(tracker.get("actor_registrations")).To(Equal(1))

		// a rejected registration (foreign host, same name) must not count
		b := a
		b.Host = cluster.Host{Node: "n2", PID: "p2"}
		b.Uid = "uid-2"
		Expect(idx.Register(b)).To(HaveOccurred())
		Expect(tracker.get("actor_registrations")).To(Equal(1))
	})
})
