package replacement

import (
	"github.com/sarchlab/oocsim/bandit"
	"github.com/sarchlab/oocsim/packet"
)

// orchestratorPeriod is how many accesses the active arm runs before its
// reward is measured and the bandit reconsiders, matching orchestrator.hpp's
// periodic re-evaluation window.
const orchestratorPeriod = 8192

// Orchestrator wraps LRU/SRRIP/DRRIP/SHIP/RLR as bandit arms, as described
// in original_source/replacement/micro-armed-bandit/orchestrator.hpp: one
// arm is "active" (its FindVictim decision is the one actually used) while
// every arm's UpdateState runs on every access, so a benched arm's internal
// state never goes stale and can be switched back into immediately.
//
// Reward is the active arm's hit rate over the last orchestratorPeriod
// accesses; the original drives this from system IPC, which this package
// has no visibility into at the per-cache granularity, so hit rate is used
// as a locally-computable proxy (see DESIGN.md).
type Orchestrator struct {
	arms   []Policy
	ucb    *bandit.UCB
	active int

	accesses int
	hits     int
}

// NewOrchestrator constructs the bandit orchestrator over the fixed LRU,
// SRRIP, DRRIP, SHIP, RLR arm set.
func NewOrchestrator() *Orchestrator {
	arms := []Policy{
		newLRUPolicy(),
		newSRRIPPolicy(false),
		newSRRIPPolicy(true),
		newSHIPPolicy(),
		newRLRPolicy(),
	}
	return &Orchestrator{
		arms: arms,
		ucb:  bandit.New(len(arms), bandit.DefaultExploreCoef, bandit.DefaultDecay),
	}
}

func (o *Orchestrator) Initialize(sets, ways int) {
	for _, a := range o.arms {
		a.Initialize(sets, ways)
	}
}

func (o *Orchestrator) FindVictim(cycle uint64, cpu uint32, instrID uint64, set int, blocks []BlockView, ip, addr uint64, reqType packet.RequestType) int {
	return o.arms[o.active].FindVictim(cycle, cpu, instrID, set, blocks, ip, addr, reqType)
}

func (o *Orchestrator) UpdateState(cycle uint64, cpu uint32, set, way int, addr, ip, victimAddr uint64, reqType packet.RequestType, hit bool) {
	for _, a := range o.arms {
		a.UpdateState(cycle, cpu, set, way, addr, ip, victimAddr, reqType, hit)
	}

	o.accesses++
	if hit {
		o.hits++
	}
	if o.accesses < orchestratorPeriod {
		return
	}

	reward := float64(o.hits) / float64(o.accesses)
	o.ucb.Update(o.active, reward)
	o.active = o.ucb.Select()
	o.accesses, o.hits = 0, 0
}

// Active reports which arm is currently driving FindVictim, for stats.
func (o *Orchestrator) Active() ID {
	switch o.active {
	case 0:
		return LRU
	case 1:
		return SRRIP
	case 2:
		return DRRIP
	case 3:
		return SHIP
	default:
		return RLR
	}
}
