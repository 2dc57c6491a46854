package tlb

import "github.com/sarchlab/oocsim/packet"

// Walker is the synthetic multi-level page-table walker terminating the
// translation chain (spec.md §4.4): it always resolves, after a latency
// that scales with the number of table levels it must traverse, so the
// core must tolerate translation latency being arbitrary regardless of
// how many TLB levels sit above it.
type Walker struct {
	// Levels is how many page-table levels this walk traverses (4 for a
	// typical four-level x86-64-style table); each contributes LevelLatency
	// cycles on top of BaseLatency.
	Levels       int
	BaseLatency  uint64
	LevelLatency uint64

	// FrameOffset distinguishes the physical address space from the
	// virtual one, the same way mem/cache's test stub offsets translated
	// addresses; a synthetic walker has no real page table to consult, so
	// it only needs a deterministic, injective vpn->ppn function.
	FrameOffset uint64

	registry *packet.Registry
	cycle    uint64
	inflight []scheduledWalk
}

type scheduledWalk struct {
	pkt packet.Packet
	at  uint64
}

// NewWalker constructs a Walker backed by registry.
func NewWalker(levels int, baseLatency, levelLatency, frameOffset uint64, registry *packet.Registry) *Walker {
	if levels <= 0 {
		levels = 1
	}
	return &Walker{
		Levels: levels, BaseLatency: baseLatency, LevelLatency: levelLatency,
		FrameOffset: frameOffset, registry: registry,
	}
}

// Issue satisfies LowerLevel: every translation request resolves after the
// full multi-level walk latency, with the original pkt.VAddr preserved so
// the requesting Level can still key its MSHR off the page it asked about.
func (w *Walker) Issue(pkt packet.Packet) bool {
	pkt.PAddr = w.translate(pkt.VAddr)
	pkt.IsTranslated = true
	latency := w.BaseLatency + uint64(w.Levels)*w.LevelLatency
	w.inflight = append(w.inflight, scheduledWalk{pkt: pkt, at: w.cycle + latency})
	return true
}

// translate is a deterministic, injective virtual-page->physical-frame
// mapping: there is no real page table backing a synthetic walker, only a
// latency model, so any bijection on the page number is sufficient.
func (w *Walker) translate(vaddr uint64) uint64 {
	return vaddr + w.FrameOffset
}

func (w *Walker) Initialize()      {}
func (w *Walker) BeginPhase()      {}
func (w *Walker) EndPhase(int)     {}
func (w *Walker) Progress() uint64 { return w.cycle }

func (w *Walker) PrintDeadlock() string {
	return "page table walker: terminating level, cannot deadlock"
}

// Operate delivers every walk whose latency has elapsed.
func (w *Walker) Operate() {
	w.cycle++
	remaining := w.inflight[:0]
	for _, sw := range w.inflight {
		if sw.at > w.cycle {
			remaining = append(remaining, sw)
			continue
		}
		for _, ch := range sw.pkt.Returns {
			if dst, ok := w.registry.Lookup(ch); ok {
				dst.Schedule(sw.pkt, w.cycle)
			}
		}
	}
	w.inflight = remaining
}
