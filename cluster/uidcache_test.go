package cluster_test

import (
	"time"

	"github.com/NVIDIA/aismaster/cluster"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("UidCache", func() {
	It("looks up what was inserted and evicts on host death", func() {
		mon := newFakeMonitor()
		c := cluster.NewUidCache(mon)
		host := cluster.Host{Node: "n1", PID: "p1"}
		a := cluster.ActorId{Service: "svc", Class: "c", Name: "n", Uid: "u1", Host: host}

		c.Insert(a)
		got, ok := c.Lookup("u1")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(a))

		mon.Kill(host)
		Eventually(func() int { return c.Len() }, time.Second).Should(Equal(0))
		_, ok = c.Lookup("u1")
		Expect(ok).To(BeFalse())
	})

	It("evicts all uids sharing a host together", func() {
		mon := newFakeMonitor()
		c := cluster.NewUidCache(mon)
		host := cluster.Host{Node: "n1", PID: "p1"}
		c.Insert(cluster.ActorId{Uid: "u1", Host: host})
		c.Insert(cluster.ActorId{Uid: "u2", Host: host})
		Expect(c.Len()).To(Equal(2))

		mon.Kill(host)
		Eventually(func() int { return c.Len() }, time.Second).Should(Equal(0))
	})

	It("reports lookup hits and misses to a wired Tracker separately", func() {
		mon := newFakeMonitor()
		c := cluster.NewUidCache(mon)
		tracker := newFakeTracker()
		c.SetTracker(tracker)

		host := cluster.Host{Node: "n1", PID: "p1"}
		c.Insert(cluster.ActorId{Uid: "u1", Host: host})

		_, ok := c.Lookup("u1")
		Expect(ok).To(BeTrue())
		_, ok = c.Lookup("missing")
		Expect(ok).To(BeFalse())

		Expect(tracker.get("uid_cache_hits")).To(Equal(1))
		Expect(tracker.get("uid_cache_misses")).To(Equal(1))
	})
})
