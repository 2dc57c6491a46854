package trace_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/trace"
)

func TestTrace(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Trace Suite")
}

var _ = Describe("Generator", func() {
	It("is deterministic for a fixed seed", func() {
		cfg := trace.GeneratorConfig{Seed: 42, Count: 50, Stride: 64, BranchEvery: 10}
		a := trace.NewGenerator(cfg)
		b := trace.NewGenerator(cfg)

		for i := 0; i < 50; i++ {
			ra, oka := a.Next()
			rb, okb := b.Next()
			Expect(oka).To(BeTrue())
			Expect(okb).To(BeTrue())
			Expect(ra).To(Equal(rb))
		}
	})

	It("signals end-of-trace after Count records", func() {
		g := trace.NewGenerator(trace.GeneratorConfig{Seed: 1, Count: 3})
		for i := 0; i < 3; i++ {
			_, ok := g.Next()
			Expect(ok).To(BeTrue())
		}
		_, ok := g.Next()
		Expect(ok).To(BeFalse())
	})

	It("never reuses register id 0", func() {
		g := trace.NewGenerator(trace.GeneratorConfig{Seed: 7, Count: 100})
		for i := 0; i < 100; i++ {
			rec, ok := g.Next()
			Expect(ok).To(BeTrue())
			Expect(rec.DestRegs[0]).ToNot(BeZero())
		}
	})

	It("produces a constant-stride memory pattern", func() {
		g := trace.NewGenerator(trace.GeneratorConfig{Seed: 3, Count: 5, Stride: 128})
		prev, _ := g.Next()
		for i := 0; i < 4; i++ {
			rec, ok := g.Next()
			Expect(ok).To(BeTrue())
			Expect(rec.SrcMemory[0] - prev.SrcMemory[0]).To(Equal(uint64(128)))
			prev = rec
		}
	})

	It("emits a branch exactly every BranchEvery instructions", func() {
		g := trace.NewGenerator(trace.GeneratorConfig{Seed: 9, Count: 20, BranchEvery: 4})
		count := 0
		for i := 0; i < 20; i++ {
			rec, _ := g.Next()
			if rec.IsBranch {
				count++
			}
		}
		Expect(count).To(Equal(5))
	})
})

var _ = Describe("Pregenerate", func() {
	It("is reproducible across different worker counts", func() {
		cfg := trace.GeneratorConfig{Seed: 99, Stride: 64, BranchEvery: 7}

		got, err := trace.Pregenerate(cfg, 37, 4)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(HaveLen(37))

		gotAgain, err := trace.Pregenerate(cfg, 37, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(gotAgain).To(Equal(got))
	})
})
