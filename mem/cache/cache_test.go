package cache_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/mem/cache"
	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/prefetch"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cache Suite")
}

func baseConfig(name string) cache.Config {
	return cache.Config{
		Name:                 name,
		Sets:                 1,
		Ways:                 8,
		BlockSize:            64,
		RQSize:               32,
		WQSize:               32,
		PQSize:               32,
		MSHRSize:             16,
		HitLatency:           4,
		FillLatency:          1,
		MaxTagCheck:          8,
		FillBandwidth:        2,
		PrefetchActivateMask: 1<<packet.Load | 1<<packet.Prefetch,
		FreqScale:            1,
	}
}

func stepAll(n int, ops ...func()) {
	for i := 0; i < n; i++ {
		for _, op := range ops {
			op()
		}
	}
}

var _ = Describe("Fill bandwidth", func() {
	It("gates how many outstanding misses retire per cycle", func() {
		registry := packet.NewRegistry()
		mem := cache.NewMemory(20, registry)
		cfg := baseConfig("404-uut")
		c, err := cache.New(cfg, registry, 1, mem)
		Expect(err).ToNot(HaveOccurred())

		caller := packet.NewChannel(99, 32)
		registry.Register(caller)

		const n = 5
		base := uint64(0xdeadbeef) &^ 63
		for i := 0; i < n; i++ {
			Expect(c.Issue(packet.Packet{
				VAddr: base + uint64(i)*64, PAddr: base + uint64(i)*64, IsTranslated: true,
				Type: packet.Load, InstrID: uint64(i), Returns: []packet.ChannelID{caller.ID()},
			})).To(BeTrue())
		}

		var now uint64
		var arrivals []uint64
		stepAll(200, c.Operate, mem.Operate, func() {
			now++
			caller.Operate(now)
			for {
				if _, ok := caller.PopReady(); !ok {
					break
				}
				arrivals = append(arrivals, now)
			}
		})

		Expect(c.Stats().Misses).To(Equal(uint64(n)))
		Expect(c.Stats().Evictions).To(Equal(uint64(0)))

		// All five misses return from memory together; FillBandwidth 2
		// lets at most two of them complete per cycle.
		Expect(arrivals).To(HaveLen(n))
		for k := range arrivals {
			Expect(arrivals[k]).To(Equal(arrivals[0] + uint64(k/2)))
		}
	})
})

var _ = Describe("Fill eviction", func() {
	It("evicts the resident block when a second address misses", func() {
		registry := packet.NewRegistry()
		mem := cache.NewMemory(3, registry)
		cfg := baseConfig("405-uut")
		cfg.Sets, cfg.Ways = 1, 1
		c, err := cache.New(cfg, registry, 1, mem)
		Expect(err).ToNot(HaveOccurred())

		caller := packet.NewChannel(99, 32)
		registry.Register(caller)

		Expect(c.Issue(packet.Packet{
			VAddr: 0xdeadbeef, PAddr: 0xdeadbeef, IsTranslated: true,
			Type: packet.Store, InstrID: 1, Returns: []packet.ChannelID{caller.ID()},
		})).To(BeTrue())

		for i := 0; i < 20; i++ {
			c.Operate()
			mem.Operate()
			caller.Operate(0)
		}
		Expect(c.Stats().Misses).To(Equal(uint64(1)))

		Expect(c.Issue(packet.Packet{
			VAddr: 0xcafebabe, PAddr: 0xcafebabe, IsTranslated: true,
			Type: packet.Load, InstrID: 2, Returns: []packet.ChannelID{caller.ID()},
		})).To(BeTrue())

		for i := 0; i < 20; i++ {
			c.Operate()
			mem.Operate()
			caller.Operate(0)
		}

		Expect(c.Stats().Evictions).To(Equal(uint64(1)))
		Expect(c.Stats().Writebacks).To(BeNumerically(">=", 1))
	})
})

var _ = Describe("Next-line prefetching", func() {
	It("issues exactly one adjacent-block prefetch per demand access", func() {
		registry := packet.NewRegistry()
		mem := cache.NewMemory(3, registry)
		cfg := baseConfig("451-uut")
		c, err := cache.New(cfg, registry, 1, mem)
		Expect(err).ToNot(HaveOccurred())
		c.SetPrefetcher(&prefetch.NextLine{BlockSize: cfg.BlockSize, Fill: packet.FillL1})

		caller := packet.NewChannel(99, 32)
		registry.Register(caller)

		Expect(c.Issue(packet.Packet{
			VAddr: 0xffff003f &^ 63, PAddr: 0xffff003f &^ 63, IsTranslated: true,
			Type: packet.Load, InstrID: 1, Returns: []packet.ChannelID{caller.ID()},
		})).To(BeTrue())

		stepAll(100, c.Operate, mem.Operate, func() { caller.Operate(0) })

		Expect(c.Stats().Prefetches).To(Equal(uint64(1)))
		Expect(c.Stats().Misses).To(Equal(uint64(2))) // demand + the prefetch
	})
})

// stubTranslator is a minimal LowerLevel + clock.Operable that completes
// every translation request after a fixed latency, producing a physical
// address offset from the virtual one, mirroring 412-queue-translation-miss.
type stubTranslator struct {
	latency  uint64
	registry *packet.Registry
	cycle    uint64
	pending  []struct {
		pkt packet.Packet
		at  uint64
	}
}

func newStubTranslator(latency uint64, registry *packet.Registry) *stubTranslator {
	return &stubTranslator{latency: latency, registry: registry}
}

func (s *stubTranslator) Issue(pkt packet.Packet) bool {
	s.pending = append(s.pending, struct {
		pkt packet.Packet
		at  uint64
	}{pkt, s.cycle + s.latency})
	return true
}

func (s *stubTranslator) Operate() {
	s.cycle++
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if p.at > s.cycle {
			remaining = append(remaining, p)
			continue
		}
		p.pkt.PAddr = p.pkt.VAddr + 0x333337000000
		p.pkt.IsTranslated = true
		for _, chID := range p.pkt.Returns {
			if ch, ok := s.registry.Lookup(chID); ok {
				ch.Schedule(p.pkt, s.cycle)
			}
		}
	}
	s.pending = remaining
}

var _ = Describe("Translation detour", func() {
	It("routes an untranslated packet to the translator and restarts the tag lookup", func() {
		registry := packet.NewRegistry()
		mem := cache.NewMemory(3, registry)
		cfg := baseConfig("412-uut")
		c, err := cache.New(cfg, registry, 1, mem)
		Expect(err).ToNot(HaveOccurred())

		translator := newStubTranslator(20, registry)
		c.SetTranslator(translator, 50)

		caller := packet.NewChannel(99, 32)
		registry.Register(caller)

		Expect(c.Issue(packet.Packet{
			VAddr: 0xdeadbeef, IsTranslated: false,
			Type: packet.Load, InstrID: 1, Returns: []packet.ChannelID{caller.ID()},
		})).To(BeTrue())

		var now uint64
		stepAll(200, c.Operate, translator.Operate, mem.Operate, func() { now++; caller.Operate(now) })

		Expect(c.Stats().TranslationReq).To(Equal(uint64(1)))
		Expect(c.Stats().Misses).To(Equal(uint64(1)))

		pkt, ok := caller.PopReady()
		Expect(ok).To(BeTrue())
		Expect(pkt.VAddr).To(Equal(uint64(0xdeadbeef)))
	})
})
