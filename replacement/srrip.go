package replacement

import "github.com/sarchlab/oocsim/packet"

const rrpvMax = 3 // 2-bit re-reference prediction value, per the SRRIP scheme.

// srripPolicy implements static and dynamic re-reference interval
// prediction. A miss inserts at a long re-reference interval (far from
// reuse, rrpvMax-1 for SRRIP); a hit promotes to immediate re-reference
// (rrpv 0). find_victim looks for an rrpvMax line, aging every line by one
// step at a time until one is found, exactly as in the original SRRIP
// victim-selection loop.
//
// When dueling is enabled this becomes DRRIP: a small set-dueling monitor
// picks, via a saturating policy-selector counter, whether new sets insert
// with the SRRIP long interval or the BRRIP bimodal-long interval (mostly
// rrpvMax, occasionally rrpvMax-1).
type srripPolicy struct {
	dueling bool

	rrpv [][]uint8

	psel     int16
	leaderSR map[int]bool
	leaderBR map[int]bool
	bimodal  uint32
}

const (
	druPselMax    = 1023
	druPselMid    = druPselMax / 2
	bipInsertFreq = 32
)

func newSRRIPPolicy(dueling bool) *srripPolicy {
	return &srripPolicy{dueling: dueling, psel: druPselMid}
}

func (p *srripPolicy) Initialize(sets, ways int) {
	p.rrpv = make([][]uint8, sets)
	for i := range p.rrpv {
		p.rrpv[i] = make([]uint8, ways)
		for w := range p.rrpv[i] {
			p.rrpv[i][w] = rrpvMax
		}
	}
	if p.dueling {
		p.leaderSR = make(map[int]bool)
		p.leaderBR = make(map[int]bool)
		for s := 0; s < sets; s += 32 {
			p.leaderSR[s] = true
			if s+16 < sets {
				p.leaderBR[s+16] = true
			}
		}
	}
}

func (p *srripPolicy) FindVictim(_ uint64, _ uint32, _ uint64, set int, blocks []BlockView, _ uint64, _ uint64, _ packet.RequestType) int {
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

func (p *srripPolicy) UpdateState(_ uint64, _ uint32, set, way int, _, _, _ uint64, _ packet.RequestType, hit bool) {
	if hit {
		p.rrpv[set][way] = 0
		return
	}
	insert := uint8(rrpvMax - 1)
	if p.dueling {
		useBRRIP := p.psel > druPselMid
		if p.leaderSR[set] {
			useBRRIP = false
		} else if p.leaderBR[set] {
			useBRRIP = true
		}
		if useBRRIP {
			insert = rrpvMax
			p.bimodal++
			if p.bimodal%bipInsertFreq == 0 {
				insert = rrpvMax - 1
			}
		}
		if p.leaderSR[set] {
			p.rrpv[set][way] = rrpvMax - 1
			p.bumpPSEL(-1)
			return
		}
		if p.leaderBR[set] {
			p.rrpv[set][way] = insert
			p.bumpPSEL(1)
			return
		}
	}
	p.rrpv[set][way] = insert
}

func (p *srripPolicy) bumpPSEL(delta int16) {
	p.psel += delta
	if p.psel < 0 {
		p.psel = 0
	}
	if p.psel > druPselMax {
		p.psel = druPselMax
	}
}
