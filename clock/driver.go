package clock

import (
	"fmt"
	"strings"

	"github.com/rs/xid"
)

// Inspectable is implemented by components the deadlock detector should
// watch: Progress returns a monotonically-increasing counter (e.g. a core's
// num_retired, or a cache's oldest in-flight event_cycle) that must advance
// within every DeadlockCycle window.
type Inspectable interface {
	Progress() uint64
}

type registration struct {
	name   string
	ticker *Ticker
	op     Operable
}

// Driver advances every registered component once per global tick, in
// registration order, the way champsim's main loop calls _operate() on each
// operable in turn. Determinism depends on registration order being stable
// across runs, per spec.md §4.1.
type Driver struct {
	runID xid.ID

	components    []registration
	deadlockCycle uint64

	globalTick     uint64
	lastDeadlockAt uint64
	lastProgress   map[string]uint64
}

// NewDriver creates a Driver. deadlockCycle is the period (in global ticks)
// at which the deadlock detector samples component progress; 0 disables it.
func NewDriver(deadlockCycle uint64) *Driver {
	return &Driver{
		runID:         xid.New(),
		deadlockCycle: deadlockCycle,
		lastProgress:  make(map[string]uint64),
	}
}

// RunID is a unique, sortable identifier for this simulation run, used to
// label deadlock dumps so multiple runs can be told apart.
func (d *Driver) RunID() string { return d.runID.String() }

// Register adds a component to the driver at the given frequency scale and
// returns its Ticker so the component can report its own CurrentCycle().
// Registration order is preserved and is the ordering used by Tick.
func (d *Driver) Register(name string, freqScale float64, op Operable) *Ticker {
	ticker := NewTicker(freqScale)
	d.components = append(d.components, registration{name: name, ticker: ticker, op: op})
	return ticker
}

// Initialize calls Initialize and BeginPhase on every registered component,
// in registration order.
func (d *Driver) Initialize() {
	for _, r := range d.components {
		r.op.Initialize()
	}
	d.BeginPhase()
}

// BeginPhase notifies every component that a new phase (warmup or
// simulation) has started.
func (d *Driver) BeginPhase() {
	for _, r := range d.components {
		r.op.BeginPhase()
	}
}

// EndPhase notifies every component that phaseID has ended.
func (d *Driver) EndPhase(phaseID int) {
	for _, r := range d.components {
		r.op.EndPhase(phaseID)
	}
}

// Tick advances the global clock by one, calling _operate (Ticker.Step
// wrapping Operate) on every component in registration order. It panics
// with a formatted deadlock dump if any Inspectable component reports the
// same Progress value at two consecutive checks, one deadlock window apart.
func (d *Driver) Tick() {
	for _, r := range d.components {
		r.ticker.Step(r.op.Operate)
	}
	d.globalTick++

	if d.deadlockCycle == 0 {
		return
	}
	if d.globalTick-d.lastDeadlockAt < d.deadlockCycle {
		return
	}
	d.checkDeadlock()
	d.lastDeadlockAt = d.globalTick
}

func (d *Driver) checkDeadlock() {
	stuck := make([]registration, 0)
	for _, r := range d.components {
		insp, ok := r.op.(Inspectable)
		if !ok {
			continue
		}
		progress := insp.Progress()
		if prev, seen := d.lastProgress[r.name]; seen && prev == progress {
			stuck = append(stuck, r)
		}
		d.lastProgress[r.name] = progress
	}

	if len(stuck) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "deadlock detected at global cycle %d (run %s):\n", d.globalTick, d.runID.String())
	for _, r := range stuck {
		fmt.Fprintf(&b, "  %s: %s\n", r.name, r.op.PrintDeadlock())
	}
	panic(b.String())
}

// GlobalTick returns the number of ticks this Driver has advanced.
func (d *Driver) GlobalTick() uint64 { return d.globalTick }
