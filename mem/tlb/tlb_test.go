package tlb_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/mem/tlb"
	"github.com/sarchlab/oocsim/packet"
)

func TestTLB(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TLB Suite")
}

func stepAll(n int, ops ...func()) {
	for i := 0; i < n; i++ {
		for _, op := range ops {
			op()
		}
	}
}

var _ = Describe("Single-level TLB over a page-table walker", func() {
	It("misses once per page then hits on a second access to the same page", func() {
		registry := packet.NewRegistry()
		walker := tlb.NewWalker(4, 10, 5, 0x1000000000, registry)

		cfg := tlb.Config{
			Name: "dtlb-uut", Sets: 4, Ways: 4, PageShift: 12,
			HitLatency: 1, FillLatency: 1, MaxTagCheck: 4, QueueSize: 8,
		}
		level, err := tlb.NewLevel(cfg, registry, 1, walker)
		Expect(err).ToNot(HaveOccurred())

		caller := packet.NewChannel(99, 16)
		registry.Register(caller)

		page := uint64(0x7000) // page-aligned
		Expect(level.Issue(packet.Packet{
			VAddr: page + 0x40, Type: packet.Load, InstrID: 1,
			Returns: []packet.ChannelID{caller.ID()},
		})).To(BeTrue())

		var now uint64
		tick := func() { now++; caller.Operate(now) }
		stepAll(100, level.Operate, walker.Operate, tick)

		Expect(level.Stats().Misses).To(Equal(uint64(1)))
		pkt, ok := caller.PopReady()
		Expect(ok).To(BeTrue())
		Expect(pkt.IsTranslated).To(BeTrue())
		Expect(pkt.PAddr & 0xfff).To(Equal(uint64(0x40))) // page offset preserved

		Expect(level.Issue(packet.Packet{
			VAddr: page + 0x80, Type: packet.Load, InstrID: 2,
			Returns: []packet.ChannelID{caller.ID()},
		})).To(BeTrue())

		stepAll(20, level.Operate, walker.Operate, tick)

		Expect(level.Stats().Hits).To(Equal(uint64(1)))
		Expect(level.Stats().Misses).To(Equal(uint64(1)))

		pkt2, ok := caller.PopReady()
		Expect(ok).To(BeTrue())
		Expect(pkt2.PAddr & 0xfff).To(Equal(uint64(0x80)))
		Expect(pkt2.PAddr &^ 0xfff).To(Equal(pkt.PAddr &^ 0xfff)) // same frame
	})
})

var _ = Describe("Two-level chain (DTLB -> STLB -> walker)", func() {
	It("resolves a miss through both levels and installs the translation in each", func() {
		registry := packet.NewRegistry()
		walker := tlb.NewWalker(4, 20, 10, 0x2000000000, registry)

		stlbCfg := tlb.Config{Name: "stlb", Sets: 8, Ways: 8, PageShift: 12, HitLatency: 4, FillLatency: 1, MaxTagCheck: 4, QueueSize: 16}
		stlb, err := tlb.NewLevel(stlbCfg, registry, 2, walker)
		Expect(err).ToNot(HaveOccurred())

		dtlbCfg := tlb.Config{Name: "dtlb", Sets: 4, Ways: 4, PageShift: 12, HitLatency: 1, FillLatency: 1, MaxTagCheck: 4, QueueSize: 8}
		dtlb, err := tlb.NewLevel(dtlbCfg, registry, 3, stlb)
		Expect(err).ToNot(HaveOccurred())

		caller := packet.NewChannel(99, 16)
		registry.Register(caller)

		Expect(dtlb.Issue(packet.Packet{
			VAddr: 0x9000, Type: packet.Load, InstrID: 1,
			Returns: []packet.ChannelID{caller.ID()},
		})).To(BeTrue())

		var now uint64
		stepAll(200, dtlb.Operate, stlb.Operate, walker.Operate, func() { now++; caller.Operate(now) })

		Expect(dtlb.Stats().Misses).To(Equal(uint64(1)))
		Expect(stlb.Stats().Misses).To(Equal(uint64(1)))

		pkt, ok := caller.PopReady()
		Expect(ok).To(BeTrue())
		Expect(pkt.IsTranslated).To(BeTrue())
	})
})
