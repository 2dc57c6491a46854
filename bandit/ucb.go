// Package bandit implements the upper-confidence-bound multi-armed bandit
// primitive used to drive the replacement-policy Orchestrator (spec.md §9),
// grounded on original_source/replacement/micro-armed-bandit/orchestrator.hpp:
// each arm accumulates a discounted reward and pull count, and Select picks
// the arm maximizing mean-reward plus an exploration bonus that shrinks
// with the arm's own pull count.
package bandit

import "math"

// Default exploration/decay constants, matching orchestrator.hpp's
// UCB_EXPLORE_COEF and REWARD_DECAY.
const (
	DefaultExploreCoef = 0.04
	DefaultDecay       = 0.975
)

// UCB tracks per-arm discounted reward sums and pull counts.
type UCB struct {
	arms int

	exploreCoef float64
	decay       float64

	rewardSum []float64
	pulls     []float64
	totalPulls uint64
}

// New constructs a UCB bandit over the given number of arms.
func New(arms int, exploreCoef, decay float64) *UCB {
	return &UCB{
		arms:        arms,
		exploreCoef: exploreCoef,
		decay:       decay,
		rewardSum:   make([]float64, arms),
		pulls:       make([]float64, arms),
	}
}

// Select returns the arm with the highest UCB score. Arms never pulled are
// always preferred, in increasing arm-index order, so every arm is tried
// once before exploitation begins.
func (u *UCB) Select() int {
	for i := 0; i < u.arms; i++ {
		if u.pulls[i] == 0 {
			return i
		}
	}
	best, bestScore := 0, math.Inf(-1)
	logTotal := math.Log(float64(u.totalPulls))
	for i := 0; i < u.arms; i++ {
		mean := u.rewardSum[i] / u.pulls[i]
		bonus := u.exploreCoef * math.Sqrt(2*logTotal/u.pulls[i])
		score := mean + bonus
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// Update records a reward observation for arm, decaying every arm's
// accumulated statistics first so stale measurements lose influence over
// time (orchestrator.hpp's exponential reward decay).
func (u *UCB) Update(arm int, reward float64) {
	for i := range u.rewardSum {
		u.rewardSum[i] *= u.decay
		u.pulls[i] *= u.decay
	}
	u.rewardSum[arm] += reward
	u.pulls[arm]++
	u.totalPulls++
}

// Pulls reports the (decayed) pull count for arm, for diagnostics.
func (u *UCB) Pulls(arm int) float64 { return u.pulls[arm] }
