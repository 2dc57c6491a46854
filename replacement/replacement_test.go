package replacement_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/replacement"
)

func TestReplacement(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Replacement Suite")
}

var _ = Describe("LRU policy", func() {
	It("prefers an invalid way before evicting anything", func() {
		p := replacement.New(replacement.LRU)
		p.Initialize(1, 2)
		blocks := []replacement.BlockView{{Valid: true, Addr: 0x100}, {Valid: false}}
		way := p.FindVictim(0, 0, 0, 0, blocks, 0, 0x200, packet.Load)
		Expect(way).To(Equal(1))
	})

	It("evicts the least recently touched way", func() {
		p := replacement.New(replacement.LRU)
		p.Initialize(1, 2)
		blocks := []replacement.BlockView{{Valid: true, Addr: 0x100}, {Valid: true, Addr: 0x200}}
		p.UpdateState(1, 0, 0, 0, 0x100, 0, 0, packet.Load, true)
		p.UpdateState(2, 0, 0, 1, 0x200, 0, 0, packet.Load, true)
		way := p.FindVictim(3, 0, 0, 0, blocks, 0, 0x300, packet.Load)
		Expect(way).To(Equal(0))
	})
})

var _ = Describe("SRRIP policy", func() {
	It("ages all ways until one reaches the max RRPV", func() {
		p := replacement.New(replacement.SRRIP)
		p.Initialize(1, 2)
		blocks := []replacement.BlockView{{Valid: true, Addr: 0x1}, {Valid: true, Addr: 0x2}}
		// Hits drop both ways to RRPV 0, so the victim search has to age
		// every way up to rrpvMax before way 0 qualifies.
		p.UpdateState(0, 0, 0, 0, 0x1, 0, 0, packet.Load, true)
		p.UpdateState(0, 0, 0, 1, 0x2, 0, 0, packet.Load, true)
		way := p.FindVictim(0, 0, 0, 0, blocks, 0, 0x3, packet.Load)
		Expect(way).To(Equal(0))
	})
})

var _ = Describe("Bandit orchestrator", func() {
	It("broadcasts UpdateState to every arm without panicking", func() {
		o := replacement.NewOrchestrator()
		o.Initialize(4, 4)
		blocks := make([]replacement.BlockView, 4)
		for i := 0; i < 20000; i++ {
			way := o.FindVictim(uint64(i), 0, uint64(i), i%4, blocks, 0xdead, uint64(i*64), packet.Load)
			o.UpdateState(uint64(i), 0, i%4, way, uint64(i*64), 0xdead, 0, packet.Load, i%3 == 0)
		}
		Expect(o.Active().String()).ToNot(BeEmpty())
	})
})
