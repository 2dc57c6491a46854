package prefetch_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/prefetch"
)

func TestPrefetch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Prefetch Suite")
}

var _ = Describe("NextLine", func() {
	It("requests the following block on every new access", func() {
		p := &prefetch.NextLine{BlockSize: 64, Fill: packet.FillL2}
		reqs := p.CacheOperate(0, 0x1000, 0xbeef, false, packet.Load)
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Addr).To(Equal(uint64(0x1040)))
	})

	It("does not reissue the same next-line target repeatedly", func() {
		p := &prefetch.NextLine{BlockSize: 64, Fill: packet.FillL2}
		p.CacheOperate(0, 0x1000, 0xbeef, false, packet.Load)
		reqs := p.CacheOperate(1, 0x1000, 0xbeef, false, packet.Load)
		Expect(reqs).To(BeEmpty())
	})
})

var _ = Describe("Berti", func() {
	It("learns a constant stride and bursts ahead of it", func() {
		p := prefetch.NewBerti(64, 4096, packet.FillL2)
		base := uint64(0x7f0000000000)
		var last []prefetch.Request
		for i := 0; i < 6; i++ {
			last = p.CacheOperate(uint64(i*10), base+uint64(i)*128, 0x400000, false, packet.Load)
		}
		Expect(last).ToNot(BeEmpty())
	})

	It("never proposes a request crossing a page boundary", func() {
		p := prefetch.NewBerti(64, 4096, packet.FillL2)
		base := uint64(0x7f0000000000)
		pageEnd := base + 4096 - 64
		for i := 0; i < 4; i++ {
			p.CacheOperate(uint64(i*5), base+uint64(i)*64, 0x1, false, packet.Load)
		}
		reqs := p.CacheOperate(100, pageEnd, 0x1, false, packet.Load)
		for _, r := range reqs {
			Expect(r.Addr >= base && r.Addr < base+4096).To(BeTrue())
		}
	})
})
