// Package prefetch implements the pluggable data/instruction prefetchers
// named in spec.md §4.3/§9: a simple next-line prefetcher and the Berti
// per-page best-delta prefetcher, grounded on
// original_source/prefetcher/berti/berti.cc.
package prefetch

import "github.com/sarchlab/oocsim/packet"

// Request is one block address a prefetcher wants installed into the
// cache hierarchy, at the given fill level, tagged with the PC that
// triggered it (for downstream accounting).
type Request struct {
	Addr uint64
	Fill packet.FillLevel
	PC   uint64
}

// Prefetcher is the interface a cache's prefetch hook drives. It mirrors
// champsim's three prefetcher entry points by name: a per-access callback
// that may propose new requests, a fill callback invoked once a (possibly
// prefetched) block installs, and a once-per-cycle callback for prefetchers
// that need their own background bookkeeping independent of any particular
// access.
type Prefetcher interface {
	CacheOperate(cycle uint64, addr, ip uint64, cacheHit bool, reqType packet.RequestType) []Request
	CacheFill(cycle uint64, addr uint64, setIdx, wayIdx int, evictedAddr uint64, prefetch bool) []Request
	CycleOperate(cycle uint64)
}

// None is a no-op Prefetcher, used when a cache level has prefetching
// disabled.
type None struct{}

func (None) CacheOperate(uint64, uint64, uint64, bool, packet.RequestType) []Request { return nil }
func (None) CacheFill(uint64, uint64, int, int, uint64, bool) []Request              { return nil }
func (None) CycleOperate(uint64)                                                     {}
