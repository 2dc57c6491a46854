package predictor_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/predictor"
)

func TestPredictor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Predictor Suite")
}

var _ = Describe("Bimodal", func() {
	var bp predictor.Predictor

	BeforeEach(func() {
		bp = predictor.New(predictor.Bimodal, 16, 8)
	})

	It("initially predicts taken (biased)", func() {
		pred := bp.PredictBranch(0x1000)
		Expect(pred.Taken).To(BeTrue())
		Expect(pred.TargetKnown).To(BeFalse())
	})

	It("learns a strongly-taken branch and its target", func() {
		pc, target := uint64(0x1000), uint64(0x2000)
		for i := 0; i < 10; i++ {
			bp.LastBranchResult(pc, target, true, predictor.Conditional)
		}

		pred := bp.PredictBranch(pc)
		Expect(pred.Taken).To(BeTrue())
		Expect(pred.TargetKnown).To(BeTrue())
		Expect(pred.Target).To(Equal(target))
	})

	It("learns a not-taken pattern", func() {
		pc := uint64(0x1000)
		for i := 0; i < 10; i++ {
			bp.LastBranchResult(pc, 0, false, predictor.Conditional)
		}
		Expect(bp.PredictBranch(pc).Taken).To(BeFalse())
	})

	It("counts mispredictions per branch type", func() {
		pc := uint64(0x4000)
		bp.LastBranchResult(pc, 0, false, predictor.Return) // counter starts at 2 (taken) so this mispredicts
		stats := bp.Stats()
		Expect(stats.Mispredictions).To(Equal(uint64(1)))
		Expect(stats.ByType[predictor.Return].Mispredictions).To(Equal(uint64(1)))
	})
})

var _ = Describe("AlwaysTaken", func() {
	It("always predicts taken and never resolves a BTB target", func() {
		bp := predictor.New(predictor.AlwaysTaken, 0, 0)
		pred := bp.PredictBranch(0x8000)
		Expect(pred.Taken).To(BeTrue())
		Expect(pred.TargetKnown).To(BeFalse())
	})
})

var _ = Describe("Instruction prefetcher stub", func() {
	It("accepts the full capability set without panicking", func() {
		ip := predictor.NewInstructionPrefetcher()
		ip.BranchOperate(0x1000, predictor.Conditional, 0x2000)
		ip.CycleOperate(1)
		ip.CacheOperate(0x1000, 0x2000, true)
		ip.CacheFill(0x1000, 0, 0, false, 0)
		Expect(ip.FinalStats()).To(Equal(predictor.InstructionPrefetchStats{}))
	})
})
