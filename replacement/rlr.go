package replacement

import "github.com/sarchlab/oocsim/packet"

// rlrPolicy is a rereference-locality replacement policy: a lightweight
// reuse-distance predictor keyed on (ip, region-of-address) rather than ip
// alone, distinguishing an instruction that streams through a large region
// (low reuse) from one that revisits a small working set (high reuse).
type rlrPolicy struct {
	rrpv [][]uint8
	key  [][]uint32

	table map[uint32]uint8
}

const rlrRegionShift = 12 // 4KiB region granularity for the reuse key.

func newRLRPolicy() *rlrPolicy {
	return &rlrPolicy{table: make(map[uint32]uint8)}
}

func (p *rlrPolicy) Initialize(sets, ways int) {
	p.rrpv = make([][]uint8, sets)
	p.key = make([][]uint32, sets)
	for i := 0; i < sets; i++ {
		p.rrpv[i] = make([]uint8, ways)
		p.key[i] = make([]uint32, ways)
		for w := 0; w < ways; w++ {
			p.rrpv[i][w] = rrpvMax
		}
	}
}

func (p *rlrPolicy) reuseKey(ip, addr uint64) uint32 {
	return uint32((ip^(addr>>rlrRegionShift))&shipSignatureMask) | 1<<31
}

func (p *rlrPolicy) FindVictim(_ uint64, _ uint32, _ uint64, set int, blocks []BlockView, _ uint64, _ uint64, _ packet.RequestType) int {
	for way, b := range blocks {
		if !b.Valid {
			return way
		}
	}
	for {
		for way := range p.rrpv[set] {
			if p.rrpv[set][way] == rrpvMax {
				return way
			}
		}
		for way := range p.rrpv[set] {
			p.rrpv[set][way]++
		}
	}
}

func (p *rlrPolicy) UpdateState(_ uint64, _ uint32, set, way int, addr, ip, _ uint64, _ packet.RequestType, hit bool) {
	key := p.reuseKey(ip, addr)
	if hit {
		p.rrpv[set][way] = 0
		if p.table[key] < shipCounterMax {
			p.table[key]++
		}
		return
	}
	outgoing := p.key[set][way]
	if c, ok := p.table[outgoing]; ok && c > 0 {
		p.table[outgoing] = c - 1
	}
	p.key[set][way] = key
	if p.table[key] >= shipCounterMid {
		p.rrpv[set][way] = rrpvMax - 1
	} else {
		p.rrpv[set][way] = rrpvMax
	}
}
