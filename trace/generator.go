package trace

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Generator is a synthetic, deterministic trace.Source: a stand-in for a
// real trace-file reader (explicitly out of scope, per spec.md), used by
// this module's own tests and by benchmarks that need a reproducible
// instruction stream without shipping a trace file. It produces a
// constant-stride memory-access pattern (to exercise the data
// prefetchers in package prefetch meaningfully) and periodic branches
// with a configurable taken-rate, all derived from a seeded linear
// congruential generator so two Generators built with the same
// parameters yield byte-identical streams.
type Generator struct {
	seed uint64
	cfg  GeneratorConfig

	state     uint64
	pc        uint64
	addr      uint64
	emitted   uint64
	branchCtr uint64
}

// GeneratorConfig parametrizes the synthetic stream.
type GeneratorConfig struct {
	// Seed drives the deterministic LCG; two Generators with the same
	// Seed and Config produce the same Record sequence.
	Seed uint64
	// Count bounds how many records Next will yield before signaling
	// end-of-trace; zero means unbounded.
	Count uint64
	// Stride is the memory address delta between consecutive accesses
	// (a constant-stride synthetic pattern, the simplest case Berti and
	// NextLine are both expected to learn).
	Stride uint64
	// BranchEvery emits a conditional branch every BranchEvery
	// instructions (0 disables branches entirely).
	BranchEvery uint64
	// BranchTakenRate is the fraction (out of 256) of emitted branches
	// that are taken; deterministic via the LCG, not a true coin flip.
	BranchTakenRate uint8
}

// NewGenerator constructs a Generator. A zero Stride defaults to 64
// (one cache line), and a zero BranchTakenRate defaults to biased-taken
// (192/256), matching the bimodal predictor's own reset bias.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Stride == 0 {
		cfg.Stride = 64
	}
	if cfg.BranchTakenRate == 0 {
		cfg.BranchTakenRate = 192
	}
	return &Generator{
		seed:  cfg.Seed,
		cfg:   cfg,
		state: cfg.Seed | 1, // LCG requires an odd/non-zero seed to cycle fully
		pc:    0x400000,
		addr:  0x7f0000000000,
	}
}

// next63 advances the LCG and returns 63 bits of output, using Knuth's
// MMIX 64-bit multiplier/increment, a common choice for a small
// deterministic PRNG with no external dependency.
func (g *Generator) next63() uint64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return g.state >> 1
}

// Next yields the next synthetic Record, or ok=false once Count records
// have been emitted.
func (g *Generator) Next() (Record, bool) {
	if g.cfg.Count != 0 && g.emitted >= g.cfg.Count {
		return Record{}, false
	}

	rec := Record{PC: g.pc}
	rec.SrcMemory[0] = g.addr
	g.addr += g.cfg.Stride
	rec.DestRegs[0] = uint8(1 + g.emitted%30) // never 0 ("none")

	g.pc += 4
	g.branchCtr++
	if g.cfg.BranchEvery != 0 && g.branchCtr >= g.cfg.BranchEvery {
		g.branchCtr = 0
		rec.IsBranch = true
		taken := uint8(g.next63()&0xff) < g.cfg.BranchTakenRate
		rec.Taken = taken
		if taken {
			rec.Target = g.pc + 64
			g.pc = rec.Target
		}
	}

	g.emitted++
	return rec, true
}

var _ Source = (*Generator)(nil)

// Pregenerate materializes n records up front, split across workers
// parallel goroutines coordinated by golang.org/x/sync/errgroup. Each
// worker advances an independent Generator seeded deterministically from
// (cfg.Seed, chunk index) so the concatenated result is identical
// regardless of how many workers ran it or their scheduling order —
// parallelism here is purely a pre-generation speedup, never a source of
// nondeterminism in the replayed trace.
func Pregenerate(cfg GeneratorConfig, n int, workers int) ([]Record, error) {
	if workers <= 0 {
		workers = 1
	}
	if n <= 0 {
		return nil, nil
	}
	if workers > n {
		workers = n
	}

	// Chunk boundaries are fixed, independent of workers, so each chunk's
	// seed and records never depend on how many goroutines ran.
	const chunkSize = 1024
	chunks := (n + chunkSize - 1) / chunkSize
	out := make([]Record, n)

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for w := 0; w < chunks; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		chunkCfg := cfg
		chunkCfg.Seed = cfg.Seed ^ (uint64(w) * 0x9e3779b97f4a7c15)
		chunkCfg.Count = uint64(end - start)
		g.Go(func() error {
			gen := NewGenerator(chunkCfg)
			for i := start; i < end; i++ {
				rec, ok := gen.Next()
				if !ok {
					break
				}
				out[i] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
