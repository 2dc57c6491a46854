package core_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/config"
	"github.com/sarchlab/oocsim/core"
	"github.com/sarchlab/oocsim/mem/cache"
	"github.com/sarchlab/oocsim/mem/tlb"
	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/predictor"
	"github.com/sarchlab/oocsim/trace"
)

func TestCore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Core Suite")
}

// fakeTrace replays a fixed slice of records, the way a recorded
// instruction trace file would, without needing a file on disk.
type fakeTrace struct {
	recs []trace.Record
	i    int
}

func (f *fakeTrace) Next() (trace.Record, bool) {
	if f.i >= len(f.recs) {
		return trace.Record{}, false
	}
	r := f.recs[f.i]
	f.i++
	return r, true
}

// harness wires a minimal but real memory hierarchy (L1I/L1D over a flat
// Memory, ITLB/DTLB over a Walker) so core.Core's tests exercise the
// genuine channel/packet round trip rather than a hand-rolled double.
// Every component needs its own Operate() called each cycle alongside the
// core's, the same way a clock.Driver would step them in registration order.
type harness struct {
	core     *core.Core
	registry *packet.Registry
	parts    []interface{ Operate() }
}

func (h *harness) step() {
	for _, p := range h.parts {
		p.Operate()
	}
	h.core.Operate()
}

func (h *harness) run(maxCycles int) {
	for i := 0; i < maxCycles && !h.core.Halted(); i++ {
		h.step()
	}
}

func newHarness(cfg *config.Config, recs []trace.Record) *harness {
	registry := packet.NewRegistry()
	backing := cache.NewMemory(10, registry)

	l1i, err := cache.New(cache.Config{
		Name: "L1I", Sets: 4, Ways: 4, BlockSize: 64,
		RQSize: 8, WQSize: 8, PQSize: 8, MSHRSize: 8,
		HitLatency: 2, FillLatency: 1, MaxTagCheck: 4, FillBandwidth: 2,
	}, registry, 1, backing)
	Expect(err).ToNot(HaveOccurred())

	l1d, err := cache.New(cache.Config{
		Name: "L1D", Sets: 4, Ways: 4, BlockSize: 64,
		RQSize: 8, WQSize: 8, PQSize: 8, MSHRSize: 8,
		HitLatency: 2, FillLatency: 1, MaxTagCheck: 4, FillBandwidth: 2,
	}, registry, 2, backing)
	Expect(err).ToNot(HaveOccurred())

	walker := tlb.NewWalker(2, 1, 1, 0x1000_0000, registry)
	itlb, err := tlb.NewLevel(tlb.Config{
		Name: "ITLB", Sets: 4, Ways: 4, PageShift: 12,
		HitLatency: 1, FillLatency: 1, MaxTagCheck: 4, QueueSize: 8,
	}, registry, 3, walker)
	Expect(err).ToNot(HaveOccurred())

	dtlb, err := tlb.NewLevel(tlb.Config{
		Name: "DTLB", Sets: 4, Ways: 4, PageShift: 12,
		HitLatency: 1, FillLatency: 1, MaxTagCheck: 4, QueueSize: 8,
	}, registry, 4, walker)
	Expect(err).ToNot(HaveOccurred())

	c, err := core.New(cfg, &fakeTrace{recs: recs}, registry, 10, l1i, l1d, itlb, dtlb)
	Expect(err).ToNot(HaveOccurred())

	return &harness{
		core:     c,
		registry: registry,
		parts: []interface{ Operate() }{
			backing, l1i, l1d, walker, itlb, dtlb,
		},
	}
}

func tinyConfig() *config.Config {
	cfg := config.Default()
	cfg.ROBSize = 16
	cfg.LQSize, cfg.SQSize = 8, 8
	cfg.IFetchBufferSize, cfg.DecodeBufferSize, cfg.DispatchBufferSize = 8, 8, 8
	cfg.FetchWidth, cfg.DecodeWidth, cfg.DispatchWidth = 4, 4, 4
	cfg.ScheduleWidth, cfg.ExecuteWidth, cfg.LQWidth, cfg.SQWidth, cfg.RetireWidth = 4, 4, 2, 2, 4
	cfg.DIBSets, cfg.DIBWays, cfg.DIBWindow = 8, 4, 4
	cfg.DecodeLatency, cfg.DispatchLatency, cfg.ScheduleLatency, cfg.ExecuteLatency = 1, 1, 1, 1
	cfg.MispredictPenalty = 5
	return cfg
}

var _ = Describe("Core retirement", func() {
	It("retires every fetched instruction, in fetch order", func() {
		cfg := tinyConfig()
		var recs []trace.Record
		for i := 0; i < 20; i++ {
			recs = append(recs, trace.Record{PC: uint64(0x1000 + 4*i), DestRegs: [2]uint8{uint8(i%30 + 1)}})
		}
		h := newHarness(cfg, recs)

		h.run(5000)

		Expect(h.core.Halted()).To(BeTrue())
		Expect(h.core.HaltReason()).To(Equal(core.TraceExhausted))
		Expect(h.core.NumRetired()).To(Equal(uint64(20)))
	})

	It("resolves a register RAW dependency across two instructions", func() {
		cfg := tinyConfig()
		recs := []trace.Record{
			{PC: 0x1000, DestRegs: [2]uint8{5}},
			{PC: 0x1004, SrcRegs: [4]uint8{5}, DestRegs: [2]uint8{6}},
		}
		h := newHarness(cfg, recs)

		h.run(2000)

		Expect(h.core.NumRetired()).To(Equal(uint64(2)))
	})
})

var _ = Describe("Branch mispredict recovery", func() {
	It("stalls fetch between the mispredicting branch entering the ROB and its retirement, then resumes", func() {
		cfg := tinyConfig()
		cfg.BranchPredictor = predictor.AlwaysTaken // guarantees a misprediction below

		recs := []trace.Record{
			{PC: 0x1000, DestRegs: [2]uint8{1}},
			{PC: 0x1004, IsBranch: true, Taken: false}, // predicted taken, actually not-taken: mispredict
			{PC: 0x1008, DestRegs: [2]uint8{2}},
			{PC: 0x100c, DestRegs: [2]uint8{3}},
		}
		h := newHarness(cfg, recs)

		h.run(2000)

		Expect(h.core.Halted()).To(BeTrue())
		Expect(h.core.NumRetired()).To(Equal(uint64(4)))
		Expect(h.core.Stats().Mispredicts).To(Equal(uint64(1)))
		Expect(h.core.Stats().FetchStallCycles).To(BeNumerically(">", uint64(0)))
	})
})

var _ = Describe("Load/store ordering", func() {
	It("forwards a store's value to a younger load at the same address instead of waiting on L1D", func() {
		cfg := tinyConfig()
		recs := []trace.Record{
			{PC: 0x2000, DestMemory: [2]uint64{0x9000}},
			{PC: 0x2004, SrcMemory: [4]uint64{0x9000}, DestRegs: [2]uint8{7}},
		}
		h := newHarness(cfg, recs)

		h.run(2000)

		Expect(h.core.NumRetired()).To(Equal(uint64(2)))
	})
})
