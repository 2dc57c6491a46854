// Package predictor implements the branch predictor / BTB / instruction
// prefetcher module selected at core construction, generalizing
// timing/pipeline/branch_predictor.go's single bimodal-plus-BTB design into
// a named module-id variant behind a common interface, the way a
// replacement.Policy or prefetch.Prefetcher is selected elsewhere in this
// module.
package predictor

// BranchType classifies a resolved branch the way original_source's
// ooo_cpu.h distinguishes conditional, indirect, call, and return branches
// for per-type misprediction accounting.
type BranchType uint8

const (
	NotBranch BranchType = iota
	DirectJump
	IndirectBranch
	Conditional
	DirectCall
	IndirectCall
	Return
)

func (t BranchType) String() string {
	switch t {
	case DirectJump:
		return "DIRECT_JUMP"
	case IndirectBranch:
		return "INDIRECT_BRANCH"
	case Conditional:
		return "CONDITIONAL"
	case DirectCall:
		return "DIRECT_CALL"
	case IndirectCall:
		return "INDIRECT_CALL"
	case Return:
		return "RETURN"
	default:
		return "NOT_BRANCH"
	}
}

// ID names a branch predictor variant, selected by config.Config the same
// way replacement.ID selects a cache's victim policy.
type ID uint8

const (
	// Bimodal is the 2-bit saturating counter design generalized from
	// timing/pipeline/branch_predictor.go.
	Bimodal ID = iota
	// AlwaysTaken is a trivial stub variant: every branch predicts taken,
	// no BTB lookup ever hits. Useful as a worst-case baseline in tests.
	AlwaysTaken
)

func (id ID) String() string {
	switch id {
	case AlwaysTaken:
		return "always-taken"
	default:
		return "bimodal"
	}
}

// Prediction is the result of a predict_branch call.
type Prediction struct {
	Taken       bool
	Target      uint64
	TargetKnown bool
}

// Stats mirrors timing/pipeline/branch_predictor.go's BranchPredictorStats,
// extended with per-BranchType counters per spec.md's statistics surface.
type Stats struct {
	Predictions    uint64
	Correct        uint64
	Mispredictions uint64
	BTBHits        uint64
	BTBMisses      uint64

	ByType [7]TypeStats
}

// TypeStats holds per-BranchType prediction/misprediction counts.
type TypeStats struct {
	Count          uint64
	Mispredictions uint64
}

func (s Stats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predictions) * 100
}

func (s Stats) MispredictionRate() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Predictions) * 100
}

func (s Stats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(total) * 100
}

// Predictor is the capability set a core.Core drives: predict ahead of
// fetch, then train on the resolved outcome at retire.
type Predictor interface {
	PredictBranch(ip uint64) Prediction
	LastBranchResult(ip, target uint64, taken bool, branchType BranchType)
	Stats() Stats
	Reset()
}

// InstructionPrefetcher is the L7 instruction-side prefetcher capability
// set named by spec.md §4.6: branch_operate/cycle_operate/cache_operate/
// cache_fill/final_stats. core.Core does not hold or call an
// InstructionPrefetcher; none of these hooks is invoked during simulation.
type InstructionPrefetcher interface {
	BranchOperate(ip uint64, branchType BranchType, target uint64)
	CycleOperate(cycle uint64)
	CacheOperate(addr, ip uint64, cacheHit bool)
	CacheFill(addr uint64, setIdx, wayIdx int, prefetch bool, evictedAddr uint64)
	FinalStats() InstructionPrefetchStats
}

// InstructionPrefetchStats is the minimal counter set final_stats reports.
type InstructionPrefetchStats struct {
	Issued uint64
	Useful uint64
}

// New constructs the Predictor named by id.
func New(id ID, bhtSize, btbSize uint32) Predictor {
	switch id {
	case AlwaysTaken:
		return &alwaysTaken{}
	default:
		return NewBimodal(bhtSize, btbSize)
	}
}

// NewInstructionPrefetcher constructs a no-op instruction prefetcher; this
// module does not specify a concrete instruction-side prefetch algorithm
// beyond the capability set, matching spec.md's scope (Berti, §4.7, is
// data-side only, package prefetch).
func NewInstructionPrefetcher() InstructionPrefetcher { return noneIP{} }

type noneIP struct{}

func (noneIP) BranchOperate(uint64, BranchType, uint64)         {}
func (noneIP) CycleOperate(uint64)                              {}
func (noneIP) CacheOperate(uint64, uint64, bool)                {}
func (noneIP) CacheFill(uint64, int, int, bool, uint64)         {}
func (noneIP) FinalStats() InstructionPrefetchStats             { return InstructionPrefetchStats{} }

// alwaysTaken is a trivial Predictor: every branch predicts taken with no
// known target, training has no effect on future predictions. Useful as a
// deliberately-bad baseline to exercise mispredict-recovery paths in tests.
type alwaysTaken struct {
	stats Stats
}

func (a *alwaysTaken) PredictBranch(uint64) Prediction {
	a.stats.Predictions++
	a.stats.BTBMisses++
	return Prediction{Taken: true}
}

func (a *alwaysTaken) LastBranchResult(_, _ uint64, taken bool, bt BranchType) {
	if taken {
		a.stats.Correct++
	} else {
		a.stats.Mispredictions++
	}
	if int(bt) < len(a.stats.ByType) {
		a.stats.ByType[bt].Count++
		if !taken {
			a.stats.ByType[bt].Mispredictions++
		}
	}
}

func (a *alwaysTaken) Stats() Stats { return a.stats }
func (a *alwaysTaken) Reset()       { a.stats = Stats{} }

var _ Predictor = (*alwaysTaken)(nil)
