package replacement

import "github.com/sarchlab/oocsim/packet"

const (
	shipSignatureBits  = 14
	shipSignatureMask  = (1 << shipSignatureBits) - 1
	shipCounterMax     = 7
	shipCounterMid     = 3
	shipOutcomeThresh  = 1
)

// shipPolicy is signature-based hit prediction layered on top of SRRIP
// aging: a PC-indexed table of saturating counters predicts whether a line
// fetched by a given instruction tends to be reused, biasing its insertion
// rrpv. Each resident block remembers the signature and outcome bit that
// produced it so UpdateState can train the table on eviction and on hit.
type shipPolicy struct {
	rrpv [][]uint8
	sig  [][]uint16
	used [][]bool

	table []uint8
}

func newSHIPPolicy() *shipPolicy {
	return &shipPolicy{table: make([]uint8, 1<<shipSignatureBits)}
}

func (p *shipPolicy) Initialize(sets, ways int) {
	p.rrpv = make([][]uint8, sets)
	p.sig = make([][]uint16, sets)
	p.used = make([][]bool, sets)
	for i := 0; i < sets; i++ {
		p.rrpv[i] = make([]uint8, ways)
		p.sig[i] = make([]uint16, ways)
		p.used[i] = make([]bool, ways)
		for w := 0; w < ways; w++ {
			p.rrpv[i][w] = rrpvMax
		}
	}
	for i := range p.table {
		p.table[i] = shipCounterMid
	}
}

func (p *shipPolicy) FindVictim(_ uint64, _ uint32, _ uint64, set int, blocks []BlockView, _ uint64, _ uint64, _ packet.RequestType) int {
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

func signatureOf(ip uint64) uint16 {
	return uint16(ip & shipSignatureMask)
}

func (p *shipPolicy) UpdateState(_ uint64, _ uint32, set, way int, _, ip, _ uint64, _ packet.RequestType, hit bool) {
	if hit {
		p.rrpv[set][way] = 0
		p.used[set][way] = true
		sig := p.sig[set][way]
		if p.table[sig] < shipCounterMax {
			p.table[sig]++
		}
		return
	}
	// This call is the fill that follows a chosen victim: first retire the
	// outgoing block's training signal, then install the new one.
	if way < len(p.used[set]) {
		outgoing := p.sig[set][way]
		if !p.used[set][way] && p.table[outgoing] > 0 {
			p.table[outgoing]--
		}
	}
	sig := signatureOf(ip)
	p.sig[set][way] = sig
	p.used[set][way] = false
	if p.table[sig] >= shipOutcomeThresh {
		p.rrpv[set][way] = rrpvMax - 1
	} else {
		p.rrpv[set][way] = rrpvMax
	}
}
