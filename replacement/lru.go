package replacement

import "github.com/sarchlab/oocsim/packet"

// lruPolicy is a self-contained software LRU, used when the Policy
// interface is exercised directly (tests, the bandit orchestrator's LRU
// arm). The cache's default tag array path does not go through this type;
// it drives recency through akita's own DirectoryImpl + LRUVictimFinder
// instead, to actually exercise that dependency (see mem/cache).
type lruPolicy struct {
	stamps [][]uint64
	clock  uint64
}

func newLRUPolicy() *lruPolicy {
	return &lruPolicy{}
}

func (p *lruPolicy) Initialize(sets, ways int) {
	p.stamps = make([][]uint64, sets)
	for i := range p.stamps {
		p.stamps[i] = make([]uint64, ways)
	}
}

func (p *lruPolicy) FindVictim(_ uint64, _ uint32, _ uint64, set int, blocks []BlockView, _ uint64, _ uint64, _ packet.RequestType) int {
	for way, b := range blocks {
		if !b.Valid {
			return way
		}
	}
	oldest, oldestWay := ^uint64(0), 0
	for way, stamp := range p.stamps[set] {
		if stamp < oldest {
			oldest, oldestWay = stamp, way
		}
	}
	return oldestWay
}

func (p *lruPolicy) UpdateState(_ uint64, _ uint32, set, way int, _, _, _ uint64, _ packet.RequestType, _ bool) {
	p.clock++
	p.stamps[set][way] = p.clock
}
