// Package main provides the entry point for oocsim, the out-of-order,
// trace-driven cache-hierarchy simulator. Command-line handling and the
// warmup/simulation phase split follow cmd/m2sim/main.go's own shape:
// flag.Bool/flag.String for options, a config file optionally overriding
// defaults, and a final fmt.Printf-rendered report (here, stats.Phase's
// own String/Report instead of a hand-rolled breakdown table).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/oocsim/clock"
	"github.com/sarchlab/oocsim/config"
	"github.com/sarchlab/oocsim/core"
	"github.com/sarchlab/oocsim/mem/cache"
	"github.com/sarchlab/oocsim/mem/tlb"
	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/stats"
	"github.com/sarchlab/oocsim/trace"
)

var (
	configPath = flag.String("config", "", "Path to simulator configuration JSON file")
	tracePath  = flag.String("trace", "", "Path to an instruction trace (unused: no trace-file reader is shipped; falls back to the synthetic generator)")
	seed       = flag.Uint64("seed", 1, "Synthetic trace generator seed")
	stride     = flag.Uint64("stride", 64, "Synthetic trace generator memory stride")
	verbose    = flag.Bool("v", false, "Verbose output")
)

// Channel id layout: caches and TLBs each need one return channel, the
// core needs four. Assigning fixed, non-overlapping ranges keeps the
// registry wiring readable without a dynamic allocator.
const (
	chL1I packet.ChannelID = iota + 1
	chL1D
	chL2I
	chL2D
	chLLC
	chITLB
	chDTLB
	chSTLB
	chCoreBase // consumes chCoreBase..chCoreBase+3
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if *tracePath != "" {
		fmt.Fprintf(os.Stderr, "warning: -trace is accepted but no trace-file reader is built in; using the synthetic generator instead\n")
	}

	registry := packet.NewRegistry()
	mem := cache.NewMemory(cfg.MemoryLatency, registry)

	llc, err := buildCache("LLC", cfg.LLC, registry, chLLC, mem, packet.FillLLC)
	must(err)
	l2i, err := buildCache("L2I", cfg.L2, registry, chL2I, llc, packet.FillL2)
	must(err)
	l2d, err := buildCache("L2D", cfg.L2, registry, chL2D, llc, packet.FillL2)
	must(err)

	l1i, err := buildCache("L1I", cfg.L1I, registry, chL1I, l2i, packet.FillL1)
	must(err)
	l1d, err := buildCache("L1D", cfg.L1D, registry, chL1D, l2d, packet.FillL1)
	must(err)

	walker := tlb.NewWalker(cfg.PTWLevels, cfg.PTWLatency, cfg.PTWLatency, 0x8000_0000_0000, registry)
	stlb, err := buildTLB("STLB", cfg.STLB, registry, chSTLB, walker)
	must(err)
	itlb, err := buildTLB("ITLB", cfg.ITLB, registry, chITLB, stlb)
	must(err)
	dtlb, err := buildTLB("DTLB", cfg.DTLB, registry, chDTLB, stlb)
	must(err)

	gen := trace.NewGenerator(trace.GeneratorConfig{
		Seed:   *seed,
		Count:  cfg.WarmupInstructions + cfg.SimulationInstructions,
		Stride: *stride,
	})

	c, err := core.New(cfg, gen, registry, chCoreBase, l1i, l1d, itlb, dtlb)
	must(err)

	driver := clock.NewDriver(cfg.DeadlockCycle)
	driver.Register("core", 1, c)
	driver.Register("l1i", 1, l1i)
	driver.Register("l1d", 1, l1d)
	driver.Register("l2i", 1, l2i)
	driver.Register("l2d", 1, l2d)
	driver.Register("llc", 1, llc)
	driver.Register("itlb", 1, itlb)
	driver.Register("dtlb", 1, dtlb)
	driver.Register("stlb", 1, stlb)
	driver.Register("walker", 1, walker)
	driver.Register("memory", 1, mem)
	driver.Initialize()

	c.SetInstructionLimit(cfg.WarmupInstructions)
	runPhase(driver, c)
	if *verbose {
		fmt.Printf("warmup complete: %d instructions, %d cycles\n", c.NumRetired(), c.Cycle())
	}
	driver.EndPhase(0)
	driver.BeginPhase()

	c.SetInstructionLimit(cfg.SimulationInstructions)
	startCycle, startRetired := c.Cycle(), c.NumRetired()
	runPhase(driver, c)
	driver.EndPhase(1)

	phase := stats.Phase{
		Name:     "simulation",
		Cycles:   c.Cycle() - startCycle,
		Retired:  c.NumRetired() - startRetired,
		Branches: c.BranchStats(),
		Caches: []stats.CacheCounters{
			cacheCounters(l1i), cacheCounters(l1d),
			cacheCounters(l2i), cacheCounters(l2d),
			cacheCounters(llc),
		},
	}
	if err := phase.Report(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
}

// runPhase drives driver/core until the core halts (trace exhaustion or
// the current instruction limit), the way clock.Driver's own caller is
// expected to loop Tick until its Inspectable components stop progressing.
func runPhase(driver *clock.Driver, c *core.Core) {
	for !c.Halted() {
		driver.Tick()
	}
}

func buildCache(name string, cc config.CacheConfig, registry *packet.Registry, id packet.ChannelID, lower cache.LowerLevel, fill packet.FillLevel) (*cache.Cache, error) {
	ca, err := cache.New(cache.Config{
		Name: name,
		Sets: cc.Sets, Ways: cc.Ways, BlockSize: cc.BlockSize,
		RQSize: cc.RQSize, WQSize: cc.WQSize, PQSize: cc.PQSize, MSHRSize: cc.MSHRSize,
		HitLatency: cc.HitLatency, FillLatency: cc.FillLatency,
		MaxTagCheck: cc.MaxTagCheck, FillBandwidth: cc.FillBandwidth,
		PrefetchActivateMask: cc.PrefetchActivateMask,
		ReplacementID:        cc.Replacement,
		FreqScale:            orOne(cc.FreqScale),
	}, registry, id, lower)
	if err != nil {
		return nil, fmt.Errorf("building cache %s: %w", name, err)
	}
	ca.SetPrefetcher(cc.Prefetcher.New(cc.BlockSize, 1<<12, fill))
	return ca, nil
}

func buildTLB(name string, tc config.TLBConfig, registry *packet.Registry, id packet.ChannelID, lower tlb.LowerLevel) (*tlb.Level, error) {
	lvl, err := tlb.NewLevel(tlb.Config{
		Name: name,
		Sets: tc.Sets, Ways: tc.Ways, PageShift: tc.PageShift,
		HitLatency: tc.HitLatency, FillLatency: tc.FillLatency,
		MaxTagCheck: tc.MaxTagCheck, QueueSize: tc.QueueSize,
	}, registry, id, lower)
	if err != nil {
		return nil, fmt.Errorf("building tlb %s: %w", name, err)
	}
	return lvl, nil
}

func cacheCounters(c *cache.Cache) stats.CacheCounters {
	s := c.Stats()
	return stats.CacheCounters{
		Name: c.Name(), Loads: s.Loads, Hits: s.Hits, Misses: s.Misses,
		Prefetches: s.Prefetches, PrefetchHits: s.PrefetchHits,
		Writebacks: s.Writebacks, MSHRMerges: s.MSHRMerges, Evictions: s.Evictions,
	}
}

func orOne(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
