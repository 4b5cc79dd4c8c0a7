package cos_test

import (
	"github.com/NVIDIA/aismaster/cmn/cos"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = BeforeSuite(func() {
	cos.InitShortID(1)
})

var _ = Describe("uuid", func() {
	It("generates valid, distinct UUIDs", func() {
		a, b := cos.GenUUID(), cos.GenUUID()
		Expect(a).NotTo(Equal(b))
		Expect(cos.IsValidUUID(a)).To(BeTrue())
		Expect(cos.IsValidUUID(b)).To(BeTrue())
	})

	It("validates daemon IDs", func() {
		id := cos.GenDaemonID()
		Expect(cos.ValidateDaemonID(id)).To(Succeed())
		Expect(cos.ValidateDaemonID("x")).To(HaveOccurred())
	})

	It("hashes the same node name to the same ID", func() {
		Expect(cos.HashNodeID("node-1")).To(Equal(cos.HashNodeID("node-1")))
		Expect(cos.HashNodeID("node-1")).NotTo(Equal(cos.HashNodeID("node-2")))
	})

	It("generates 3-char tie breakers", func() {
		Expect(cos.GenTie()).To(HaveLen(3))
	})
})
