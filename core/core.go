// Package core implements the out-of-order pipeline engine described in
// spec.md §4.5: an 11-stage, reverse-order Operate() in the style of
// timing/pipeline/pipeline.go's Tick (writeback-to-fetch, one pipeline
// register pair at a time), driving a trace.Source through fetch, decode,
// dispatch, schedule, execute and retire against the memory hierarchy
// (mem/cache, mem/tlb) and the branch predictor (package predictor).
package core

import (
	"fmt"

	"github.com/sarchlab/oocsim/config"
	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/predictor"
	"github.com/sarchlab/oocsim/queue"
	"github.com/sarchlab/oocsim/trace"
)

// MemIssuer is satisfied by anything a core can hand a request to and
// expect an eventual response on a registered return channel: an
// *mem/cache.Cache or an *mem/tlb.Level, decoupling core from both
// packages' concrete types the same way cache.LowerLevel does.
type MemIssuer interface {
	Issue(pkt packet.Packet) bool
}

// HaltReason names why Run/RunCycles stopped driving a core, matching
// spec.md §7's "trace exhaustion is not an error" distinction.
type HaltReason int

const (
	// Running means the core has not halted.
	Running HaltReason = iota
	// TraceExhausted means the trace collaborator signaled end-of-trace
	// and every in-flight instruction has retired.
	TraceExhausted
	// InstructionLimitReached means the configured instruction budget for
	// the current phase has been retired.
	InstructionLimitReached
)

// regRef names the in-flight producer of an architectural register: the
// arena slot and the generation it was allocated at, so a later schedule
// check can tell a still-live producer from a stale, recycled index.
type regRef struct {
	idx   int
	gen   uint64
	valid bool
}

// Core is one out-of-order pipeline instance: fetch/decode/dispatch
// buffers, a reorder buffer with paired load/store queues, a branch
// predictor, and the four memory-hierarchy entry points (L1I/L1D/ITLB/
// DTLB) it issues requests to. Only a single hardware thread is modeled;
// spec.md's process-wide per-cpu state collapses to this one Core's own
// fields (see DESIGN.md).
type Core struct {
	cfg *config.Config
	cpu uint32

	src        trace.Source
	traceEnded bool

	pred predictor.Predictor
	dib  *dib

	l1i, l1d, itlb, dtlb MemIssuer

	fetchRet *packet.Channel
	memRet   *packet.Channel
	itlbRet  *packet.Channel
	dtlbRet  *packet.Channel

	arena    *arena
	regOwner [256]regRef

	rob            *queue.Ring[int]
	lq, sq         *queue.Ring[int]
	ifetchBuffer   *queue.Ring[int]
	decodeBuffer   *queue.DelayRing[int]
	dispatchBuffer *queue.DelayRing[int]

	pendingFetch map[uint64]int // UniqueID -> arena idx, awaiting L1I response
	pendingLoad  map[uint64]int
	pendingITLB  map[uint64]int
	pendingDTLB  map[uint64]int

	cycle        uint64
	nextUniqueID uint64
	numRetired   uint64
	numFetched   uint64

	fetchStalled       bool
	fetchResumeCycle   uint64
	blockingMispredict int // arena idx of the oldest unretired mispredicted branch, -1 if none

	instrLimit uint64 // 0 means unbounded
	halt       HaltReason

	stats Statistics
}

// Statistics is the pipeline-level counter set a Core exposes alongside
// its memory hierarchy's own per-cache stats (assembled into a
// stats.Phase by the caller, e.g. cmd/oocsim).
type Statistics struct {
	Retired        uint64
	Mispredicts    uint64
	FetchStallCycles uint64
}

// New constructs a Core. l1i/l1d/itlb/dtlb are this core's immediate
// memory-hierarchy entry points (already wired to whatever sits below
// them); registry is the shared channel registry the whole simulation
// uses, and baseChannelID names four consecutive, otherwise-unused
// channel ids this Core registers its own return channels under.
func New(cfg *config.Config, src trace.Source, registry *packet.Registry, baseChannelID packet.ChannelID,
	l1i, l1d, itlb, dtlb MemIssuer) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Core{
		cfg:  cfg,
		src:  src,
		pred: predictor.New(cfg.BranchPredictor, cfg.BHTSize, cfg.BTBSize),
		dib:  newDIB(cfg.DIBSets, cfg.DIBWays, cfg.DIBWindow),

		l1i: l1i, l1d: l1d, itlb: itlb, dtlb: dtlb,

		// The arena must hold every instruction that can be live at once:
		// everything in the ROB plus everything still working its way
		// through fetch/decode/dispatch ahead of it.
		arena: newArena(cfg.ROBSize + cfg.IFetchBufferSize + cfg.DecodeBufferSize + cfg.DispatchBufferSize),

		rob:            queue.NewRing[int](cfg.ROBSize),
		lq:             queue.NewRing[int](cfg.LQSize),
		sq:             queue.NewRing[int](cfg.SQSize),
		ifetchBuffer:   queue.NewRing[int](cfg.IFetchBufferSize),
		decodeBuffer:   queue.NewDelayRing[int](cfg.DecodeBufferSize, cfg.DecodeLatency),
		dispatchBuffer: queue.NewDelayRing[int](cfg.DispatchBufferSize, cfg.DispatchLatency),

		pendingFetch: make(map[uint64]int),
		pendingLoad:  make(map[uint64]int),
		pendingITLB:  make(map[uint64]int),
		pendingDTLB:  make(map[uint64]int),

		blockingMispredict: -1,
	}

	c.fetchRet = packet.NewChannel(baseChannelID, cfg.ROBSize)
	c.memRet = packet.NewChannel(baseChannelID+1, cfg.ROBSize)
	c.itlbRet = packet.NewChannel(baseChannelID+2, cfg.ROBSize)
	c.dtlbRet = packet.NewChannel(baseChannelID+3, cfg.ROBSize)
	registry.Register(c.fetchRet)
	registry.Register(c.memRet)
	registry.Register(c.itlbRet)
	registry.Register(c.dtlbRet)

	return c, nil
}

// SetInstructionLimit bounds how many instructions Run/RunCycles retires
// before halting with InstructionLimitReached; 0 (the default) means
// unbounded, relying on trace exhaustion instead.
func (c *Core) SetInstructionLimit(n uint64) { c.instrLimit = n }

// Halted reports whether the core has stopped advancing.
func (c *Core) Halted() bool { return c.halt != Running }

// HaltReason reports why the core stopped, or Running if it hasn't.
func (c *Core) HaltReason() HaltReason { return c.halt }

// NumRetired returns the total instructions retired so far.
func (c *Core) NumRetired() uint64 { return c.numRetired }

// Stats returns a copy of this core's own pipeline-level counters.
func (c *Core) Stats() Statistics { return c.stats }

// BranchStats returns the branch predictor's accuracy counters.
func (c *Core) BranchStats() predictor.Stats { return c.pred.Stats() }

// Cycle returns the core's own local cycle count.
func (c *Core) Cycle() uint64 { return c.cycle }

// Initialize satisfies clock.Operable.
func (c *Core) Initialize() {}

// BeginPhase satisfies clock.Operable; retained counters reset so a
// warmup phase's statistics don't bleed into the simulation phase's
// report (spec.md §6's per-phase statistics surface). An
// InstructionLimitReached halt from the previous phase is cleared so the
// next phase actually runs; a TraceExhausted halt is terminal and is left
// alone, since there are no more records left for any phase to fetch.
func (c *Core) BeginPhase() {
	c.stats = Statistics{}
	c.numRetired = 0
	c.numFetched = 0
	c.pred.Reset()
	if c.halt == InstructionLimitReached {
		c.halt = Running
	}
}

// EndPhase satisfies clock.Operable.
func (c *Core) EndPhase(int) {}

// Progress satisfies clock.Inspectable: num_retired, so a core stuck
// forever on the same instruction (a deadlocked memory hierarchy, an
// unresolvable dependency cycle) is caught by the driver's deadlock
// detector even though the core's own cycle count keeps advancing.
func (c *Core) Progress() uint64 { return c.numRetired }

// PrintDeadlock satisfies clock.Operable.
func (c *Core) PrintDeadlock() string {
	return fmt.Sprintf("core: cycle=%d retired=%d rob=%d/%d lq=%d/%d sq=%d/%d fetch_stalled=%v",
		c.cycle, c.numRetired, c.rob.Occupancy(), c.rob.Capacity(),
		c.lq.Occupancy(), c.lq.Capacity(), c.sq.Occupancy(), c.sq.Capacity(), c.fetchStalled)
}

// Operate advances the core by one cycle: the 11 stages of spec.md §4.5,
// called in their named (reverse-pipeline) order so each stage observes
// the state its upstream neighbor left at the end of the previous cycle,
// exactly as timing/pipeline/pipeline.go's Tick calls doWriteback before
// doFetch.
func (c *Core) Operate() {
	if c.Halted() {
		return
	}
	c.cycle++
	c.fetchRet.Operate(c.cycle)
	c.memRet.Operate(c.cycle)
	c.itlbRet.Operate(c.cycle)
	c.dtlbRet.Operate(c.cycle)

	c.retireROB()
	c.completeInflightInstructions()
	c.executeInstructions()
	c.scheduleInstructions()
	c.dispatchInstructions()
	c.decodeInstructions()
	c.promoteToDecode()
	c.fetchInstructions()
	c.translateFetch()
	c.checkDIB()
	c.initInstruction()

	if c.fetchStalled {
		c.stats.FetchStallCycles++
	}

	if c.halt == Running && c.traceEnded && c.rob.Empty() && c.lq.Empty() && c.sq.Empty() &&
		c.ifetchBuffer.Empty() && c.decodeBuffer.Occupancy() == 0 && c.dispatchBuffer.Occupancy() == 0 {
		c.halt = TraceExhausted
	}
}

// Run drives the core until it halts.
func (c *Core) Run() HaltReason {
	for !c.Halted() {
		c.Operate()
	}
	return c.halt
}

// RunCycles drives the core for up to n cycles, stopping early if it
// halts. It reports whether the core is still running afterward.
func (c *Core) RunCycles(n uint64) bool {
	for i := uint64(0); i < n && !c.Halted(); i++ {
		c.Operate()
	}
	return !c.Halted()
}
