// Package cache implements the generic set-associative cache component
// described in spec.md §4.3: MSHRs, RQ/WQ/PQ, a tag array, a replacement
// hook, a prefetcher hook, a fill-bandwidth gate and a virtual-to-physical
// translation detour. Every data/instruction cache level in the hierarchy
// (L1I, L1D, L2, LLC) is one instance of this component, configured
// differently — as champsim reuses a single CACHE class at every level
// (original_source/inc/ooo_cpu.h references CACHE* for every level). The
// translation levels (ITLB, DTLB, STLB) are not built from this component;
// they are mem/tlb.Level instances.
package cache

import (
	"fmt"

	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/replacement"
)

// Config holds the construction-time parameters for one cache level.
type Config struct {
	Name string

	Sets      int
	Ways      int
	BlockSize int

	RQSize   int
	WQSize   int
	PQSize   int
	MSHRSize int

	HitLatency  uint64
	FillLatency uint64

	MaxTagCheck   int
	FillBandwidth int

	// VirtualTag is the virtually-tagged cache option. It is carried in the
	// configuration only: no code reads it, and the tag array is always
	// keyed on the translated (physical) address once one is known.
VirtualTag bool

	// PrefetchActivateMask selects which packet.RequestType values trigger
	// the prefetcher's cache_operate hook, as a bitmask over RequestType
	// values (1<<packet.Load | 1<<packet.Prefetch, etc).
	PrefetchActivateMask uint32

	// ReplacementID selects the victim-selection policy. replacement.LRU
	// (the default) is backed directly by akita's DirectoryImpl; every
	// other value uses a self-contained tag array (see tagarray.go).
	ReplacementID replacement.ID

	// FreqScale is this cache's clock.Ticker frequency scale relative to
	// the global tick (spec.md §4.1).
	FreqScale float64
}

// Validate checks the size configuration faults enumerated in spec.md §7,
// caught at construction. Topology is not checked: a Cache built with a
// nil lower level is accepted.
func (c Config) Validate() error {
	if c.Sets <= 0 || (c.Sets&(c.Sets-1)) != 0 {
		return fmt.Errorf("cache %q: sets must be a power of two, got %d", c.Name, c.Sets)
	}
	if c.Ways <= 0 {
		return fmt.Errorf("cache %q: ways must be > 0", c.Name)
	}
	if c.BlockSize <= 0 || (c.BlockSize&(c.BlockSize-1)) != 0 {
		return fmt.Errorf("cache %q: block size must be a power of two, got %d", c.Name, c.BlockSize)
	}
	if c.RQSize <= 0 || c.WQSize <= 0 || c.PQSize <= 0 {
		return fmt.Errorf("cache %q: rq/wq/pq sizes must be > 0", c.Name)
	}
	if c.MSHRSize <= 0 {
		return fmt.Errorf("cache %q: mshr size must be > 0", c.Name)
	}
	if c.HitLatency == 0 {
		return fmt.Errorf("cache %q: hit latency must be > 0", c.Name)
	}
	if c.FillLatency == 0 {
		return fmt.Errorf("cache %q: fill latency must be > 0", c.Name)
	}
	if c.MaxTagCheck <= 0 {
		return fmt.Errorf("cache %q: max tag check must be > 0", c.Name)
	}
	if c.FillBandwidth <= 0 {
		return fmt.Errorf("cache %q: fill bandwidth must be > 0", c.Name)
	}
	return nil
}

// activates reports whether t should trigger the prefetcher for this cache.
func (c Config) activates(t packet.RequestType) bool {
	return c.PrefetchActivateMask&(1<<uint(t)) != 0
}

// Statistics holds the per-cache performance counters in the statistics
// surface described in spec.md §6.
type Statistics struct {
	Loads          uint64
	Hits           uint64
	Misses         uint64
	Prefetches     uint64
	PrefetchHits   uint64
	Writebacks     uint64
	MSHRMerges     uint64
	Evictions      uint64
	TranslationReq uint64
}

// replacementFor constructs the replacement.Policy named by id, used by
// the non-LRU tag array backend. See replacement.New.
func replacementFor(id replacement.ID) replacement.Policy {
	return replacement.New(id)
}
