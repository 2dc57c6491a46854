package queue

import "github.com/sarchlab/oocsim/packet"

// PacketQueue is the fixed-capacity, coalescing queue a cache uses for its
// RQ, WQ and PQ (spec.md §4.2). Add coalesces an incoming packet into an
// existing entry of compatible type addressing the same block: a LOAD into
// a pending LOAD attaches the caller to the return list; a PREFETCH into an
// existing LOAD (or LOAD into existing PREFETCH, promoting it) is absorbed
// silently.
type PacketQueue struct {
	capacity  int
	blockMask uint64
	entries   []packet.Packet
}

// NewPacketQueue creates a PacketQueue with the given capacity. blockSize
// must be the cache's line size in bytes; it is used to compute the mask
// for block-address coalescing.
func NewPacketQueue(capacity int, blockSize int) *PacketQueue {
	return &PacketQueue{capacity: capacity, blockMask: uint64(blockSize - 1)}
}

// Occupancy returns the number of distinct (post-coalescing) entries.
func (q *PacketQueue) Occupancy() int { return len(q.entries) }

// Capacity returns the configured maximum occupancy.
func (q *PacketQueue) Capacity() int { return q.capacity }

// Full reports whether the queue is at capacity.
func (q *PacketQueue) Full() bool { return len(q.entries) >= q.capacity }

// AddResult reports what Add did with an incoming packet.
type AddResult int

const (
	// Rejected means the queue was full and the packet was dropped.
	Rejected AddResult = iota
	// Admitted means a new entry was created.
	Admitted
	// Coalesced means the packet merged into an existing entry; its
	// listeners (if a demand request) were attached to it.
	Coalesced
)

// Add inserts pkt, coalescing into a matching existing entry when possible.
func (q *PacketQueue) Add(pkt packet.Packet) AddResult {
	for i, existing := range q.entries {
		if !existing.Matches(pkt, q.blockMask) {
			continue
		}
		if !compatible(existing.Type, pkt.Type) {
			continue
		}
		merged := existing
		for _, ch := range pkt.Returns {
			merged = merged.WithReturn(ch)
		}
		// A demand request promotes an absorbed prefetch entry so the
		// eventual fill still notifies the demand's listeners.
		if existing.Type == packet.Prefetch && pkt.Type != packet.Prefetch {
			merged.Type = pkt.Type
			merged.PC = pkt.PC
			merged.InstrID = pkt.InstrID
		}
		q.entries[i] = merged
		return Coalesced
	}

	if q.Full() {
		return Rejected
	}
	q.entries = append(q.entries, pkt)
	return Admitted
}

// compatible reports whether an incoming packet of type `incoming` may
// coalesce into an existing entry of type `existing`.
func compatible(existing, incoming packet.RequestType) bool {
	switch {
	case existing == incoming:
		return true
	case existing == packet.Prefetch || incoming == packet.Prefetch:
		// Any demand type absorbs/extends a pending prefetch, and a
		// prefetch is silently absorbed into any pending demand.
		return true
	default:
		return false
	}
}

// Front returns the oldest entry without removing it.
func (q *PacketQueue) Front() (packet.Packet, bool) {
	if len(q.entries) == 0 {
		return packet.Packet{}, false
	}
	return q.entries[0], true
}

// RemoveFront removes and returns the oldest entry.
func (q *PacketQueue) RemoveFront() (packet.Packet, bool) {
	p, ok := q.Front()
	if !ok {
		return p, false
	}
	q.entries = q.entries[1:]
	return p, true
}

// Each iterates from oldest to newest; fn returning false stops iteration.
func (q *PacketQueue) Each(fn func(i int, p packet.Packet) bool) {
	for i, p := range q.entries {
		if !fn(i, p) {
			return
		}
	}
}
