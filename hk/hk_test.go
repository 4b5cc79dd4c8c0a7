package hk_test

import (
	"sync/atomic"
	"time"

	"github.com/NVIDIA/aismaster/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("housekeeper", func() {
	It("re-fires a periodic callback until it unregisters itself", func() {
		var n int32
		hk.RegisterCB("count-to-3", func() time.Duration {
			if atomic.AddInt32(&n, 1) >= 3 {
				return 0
			}
			return 10 * time.Millisecond
		}, 10*time.Millisecond)

		Eventually(func() int32 { return atomic.LoadInt32(&n) }, time.Second).Should(BeNumerically(">=", 3))
		stable := atomic.LoadInt32(&n)
		Consistently(func() int32 { return atomic.LoadInt32(&n) }, 50*time.Millisecond).Should(Equal(stable))
	})
})
