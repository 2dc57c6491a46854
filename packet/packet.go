// Package packet defines the universal memory request/response type that
// flows between pipeline stages, caches, and the page-table walker, and the
// channel primitive caches use to notify upstream listeners.
package packet

// RequestType classifies what a Packet is asking the memory hierarchy to do.
type RequestType uint8

const (
	// Load is a demand read.
	Load RequestType = iota
	// Store is a demand write (also called WRITE in the original design).
	Store
	// RFO is a read-for-ownership: a write that missed and must first pull
	// the block in before it can complete.
	RFO
	// Prefetch is a speculative read issued by a data or instruction prefetcher.
	Prefetch
	// Writeback carries a dirty evicted block down to the next level.
	Writeback
	// Translation is a page-table-walk request produced by detouring an
	// untranslated packet to a cache's translator side channel.
	Translation
)

func (t RequestType) String() string {
	switch t {
	case Load:
		return "LOAD"
	case Store:
		return "STORE"
	case RFO:
		return "RFO"
	case Prefetch:
		return "PREFETCH"
	case Writeback:
		return "WRITEBACK"
	case Translation:
		return "TRANSLATION"
	default:
		return "UNKNOWN"
	}
}

// ChannelID names a Channel for inclusion in a Packet's return-channel list.
type ChannelID uint64

// FillLevel is a hint about which cache level ultimately satisfied (or
// should satisfy) a request; prefetchers use it to request a specific
// insertion point in the hierarchy.
type FillLevel uint8

const (
	// FillL1 inserts the prefetched/filled block at the L1 the issuer sits behind.
	FillL1 FillLevel = iota
	// FillL2 inserts at L2.
	FillL2
	// FillLLC inserts at the last-level cache.
	FillLLC
)

// Packet is the value-typed request/response carried between a producer
// (an upper level) and a consumer (a lower level). Identity for dedup and
// MSHR-merge purposes is (Address, Type, InstrID) — see Equal.
type Packet struct {
	VAddr        uint64
	PAddr        uint64
	IsTranslated bool

	Type RequestType

	CPU      uint32
	InstrID  uint64
	PC       uint64
	Fill     FillLevel

	// Returns accumulates the channels of every upstream listener that must
	// be notified once this packet (or the MSHR entry it merged into)
	// completes. A packet entering a cache starts with its producer's
	// channel id appended; a merge into an existing MSHR appends the new
	// listener rather than allocating a second downstream request.
	Returns []ChannelID

	IssueCycle  uint64
	EventCycle  uint64
	ReturnCycle uint64
}

// Address returns the address to use for tag lookup: the physical address
// once translated, the virtual address otherwise (matching the spec's
// "physical address may equal virtual until translated").
func (p Packet) Address() uint64 {
	if p.IsTranslated {
		return p.PAddr
	}
	return p.VAddr
}

// Matches reports whether two packets address the same block. It compares
// block addresses only; request-type compatibility is checked by the
// caller (queue.PacketQueue). A PREFETCH into a pending LOAD is absorbed
// silently; a LOAD into a pending LOAD attaches as a second listener.
func (p Packet) Matches(other Packet, blockMask uint64) bool {
	return (p.Address()&^blockMask) == (other.Address()&^blockMask)
}

// WithReturn returns a copy of p with ch appended to its return list, unless
// already present.
func (p Packet) WithReturn(ch ChannelID) Packet {
	for _, existing := range p.Returns {
		if existing == ch {
			return p
		}
	}
	out := p
	out.Returns = append(append([]ChannelID{}, p.Returns...), ch)
	return out
}
