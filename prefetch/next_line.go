package prefetch

import "github.com/sarchlab/oocsim/packet"

// NextLine is the simplest data prefetcher: on every triggering demand
// access it requests the block immediately following the one just
// touched, one block ahead of the demand stream, unless that block is the
// one it requested on its previous call.
type NextLine struct {
	BlockSize int
	Fill      packet.FillLevel

	lastIssued uint64
	hasLast    bool
}

func (n *NextLine) CacheOperate(_ uint64, addr, ip uint64, _ bool, reqType packet.RequestType) []Request {
	if reqType == packet.Prefetch {
		// Never chain off of a prefetch's own access, or a one-block-ahead
		// policy would cascade forward through the entire address space.
		return nil
	}
	blockAddr := (addr / uint64(n.BlockSize)) * uint64(n.BlockSize)
	next := blockAddr + uint64(n.BlockSize)
	if n.hasLast && next == n.lastIssued {
		return nil
	}
	n.lastIssued = next
	n.hasLast = true
	return []Request{{Addr: next, Fill: n.Fill, PC: ip}}
}

func (n *NextLine) CacheFill(uint64, uint64, int, int, uint64, bool) []Request { return nil }
func (n *NextLine) CycleOperate(uint64)                                       {}
