// Package replacement implements the pluggable cache replacement policies
// named in spec.md §4.3/§9: LRU, SRRIP, DRRIP, SHIP and RLR, plus the
// multi-armed-bandit Orchestrator that switches among them at runtime
// (grounded on original_source/replacement/micro-armed-bandit/orchestrator.hpp).
//
// A cache's default tag array drives LRU recency through akita's own
// directory/victim-finder (see mem/cache's akitaTagArray), exercising
// github.com/sarchlab/akita/v4/mem/cache directly the way the teacher's
// timing/cache/cache.go does. Every other policy here owns its own
// per-(set,way) metadata, because akita's Block type has no slot for an
// RRPV counter, a SHIP signature table entry, or a bandit arm id — the
// cache's customTagArray calls into these instead.
package replacement

import "github.com/sarchlab/oocsim/packet"

// ID names one of the selectable replacement policies.
type ID int

const (
	LRU ID = iota
	SRRIP
	DRRIP
	SHIP
	RLR
	Bandit
)

func (id ID) String() string {
	switch id {
	case LRU:
		return "lru"
	case SRRIP:
		return "srrip"
	case DRRIP:
		return "drrip"
	case SHIP:
		return "ship"
	case RLR:
		return "rlr"
	case Bandit:
		return "bandit"
	default:
		return "unknown"
	}
}

// BlockView is the read-only snapshot of one way's tag-array state a Policy
// needs to choose a victim: whether it currently holds valid data and, if
// so, the block address it holds.
type BlockView struct {
	Valid bool
	Addr  uint64
}

// Policy is the interface every replacement policy variant implements. It
// mirrors the three champsim hook points (initialize_replacement,
// find_victim, update_replacement_state) by name.
type Policy interface {
	// Initialize is called once, before first use, with this cache's
	// geometry.
	Initialize(sets, ways int)

	// FindVictim chooses a way within set to evict for an incoming request
	// addressed at addr. blocks has one BlockView per way, already ordered
	// by way index.
	FindVictim(cycle uint64, cpu uint32, instrID uint64, set int, blocks []BlockView, ip uint64, addr uint64, reqType packet.RequestType) int

	// UpdateState is called after every access that read or wrote a way's
	// tag (a hit, or the fill that follows a chosen victim). victimAddr is
	// meaningful only when hit is false.
	UpdateState(cycle uint64, cpu uint32, set, way int, addr, ip, victimAddr uint64, reqType packet.RequestType, hit bool)
}

// New constructs the Policy named by id.
func New(id ID) Policy {
	switch id {
	case LRU:
		return newLRUPolicy()
	case SRRIP:
		return newSRRIPPolicy(false)
	case DRRIP:
		return newSRRIPPolicy(true)
	case SHIP:
		return newSHIPPolicy()
	case RLR:
		return newRLRPolicy()
	case Bandit:
		return NewOrchestrator()
	default:
		return newLRUPolicy()
	}
}
