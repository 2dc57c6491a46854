// Package stats implements the per-phase statistics surface spec.md §6
// names (cycles, instructions retired, IPC, per-branch-type counts and
// mispredicts, per-cache counters), with a String/Report renderer in the
// teacher's fmt.Printf-table style (runTiming in cmd/m2sim/main.go).
package stats

import (
	"fmt"
	"io"

	"github.com/sarchlab/oocsim/predictor"
)

// CacheCounters is the per-cache statistics block spec.md §6 lists:
// loads/hits/misses/prefetches/prefetch-hits/writebacks/MSHR-merges.
type CacheCounters struct {
	Name          string
	Loads         uint64
	Hits          uint64
	Misses        uint64
	Prefetches    uint64
	PrefetchHits  uint64
	Writebacks    uint64
	MSHRMerges    uint64
	Evictions     uint64
}

// MissRate returns misses/loads as a percentage, 0 if there were no loads.
func (c CacheCounters) MissRate() float64 {
	if c.Loads == 0 {
		return 0
	}
	return float64(c.Misses) / float64(c.Loads) * 100
}

// Phase is one reporting period's statistics (warmup or simulation, per
// spec.md's "per phase (warmup, simulation)" surface). cmd/oocsim builds
// and reports only the simulation-phase Phase; warmup counters are reset
// at the phase boundary and never assembled into a Phase, in the spirit
// of ChampSim's begin_sim_cycle/begin_sim_instr split (see SPEC_FULL.md's
// supplemented-features list).
type Phase struct {
	Name string

	Cycles    uint64
	Retired   uint64
	Branches  predictor.Stats
	Caches    []CacheCounters
}

// IPC returns retired instructions per cycle, 0 if no cycles elapsed.
func (p Phase) IPC() float64 {
	if p.Cycles == 0 {
		return 0
	}
	return float64(p.Retired) / float64(p.Cycles)
}

// String renders the phase the way cmd/m2sim/main.go's runTiming prints
// its timing report: a short header block followed by a breakdown table.
func (p Phase) String() string {
	s := fmt.Sprintf("Phase: %s\n", p.Name)
	s += fmt.Sprintf("  Cycles:      %d\n", p.Cycles)
	s += fmt.Sprintf("  Instructions: %d\n", p.Retired)
	s += fmt.Sprintf("  IPC:         %.3f\n", p.IPC())
	s += fmt.Sprintf("  Branch accuracy:   %.2f%% (%d mispredicts / %d predictions)\n",
		p.Branches.Accuracy(), p.Branches.Mispredictions, p.Branches.Predictions)
	s += fmt.Sprintf("  BTB hit rate:      %.2f%%\n", p.Branches.BTBHitRate())
	for _, c := range p.Caches {
		s += fmt.Sprintf("  %-6s loads=%-8d hits=%-8d misses=%-8d (miss rate %5.2f%%) prefetches=%-6d pf_hits=%-6d writebacks=%-6d mshr_merges=%-6d evictions=%-6d\n",
			c.Name, c.Loads, c.Hits, c.Misses, c.MissRate(), c.Prefetches, c.PrefetchHits, c.Writebacks, c.MSHRMerges, c.Evictions)
	}
	return s
}

// Report writes p's String() form to w, returning any write error the way
// the teacher's fmt.Printf calls would if redirected through an io.Writer.
func (p Phase) Report(w io.Writer) error {
	_, err := fmt.Fprint(w, p.String())
	return err
}
