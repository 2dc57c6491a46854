// Package tlb implements the page-table walker and the per-level
// translation caches (ITLB, DTLB, STLB) named by spec.md §4.4: each level
// is a small cache keyed on virtual page number rather than block address,
// storing the resolved physical frame once learned, chained down to a
// synthetic multi-level page-table Walker that always eventually resolves.
//
// A Level is deliberately not a mem/cache.Cache: a data cache tracks only
// validity/dirty bits for a block whose contents live elsewhere, but a
// translation cache's entry *is* the value (the physical frame) the next
// lookup needs, so each level keeps its own small tag+value array instead
// of reusing mem/cache's tag array abstraction.
package tlb

import (
	"fmt"

	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/queue"
	"github.com/sarchlab/oocsim/replacement"
)

// LowerLevel is satisfied by the next level down in the translation chain:
// another *Level, or the terminating *Walker.
type LowerLevel interface {
	Issue(pkt packet.Packet) bool
}

// Config parametrizes one translation-cache level.
type Config struct {
	Name        string
	Sets        int
	Ways        int
	PageShift   uint // log2(page size); 12 for 4KiB pages
	HitLatency  uint64
	FillLatency uint64
	MaxTagCheck int
	QueueSize   int
}

// Validate reports a configuration fault the way mem/cache.Config.Validate
// and timing/latency/config.go's Validate do: wrapped, named errors, never
// a panic, since this runs at construction before the simulation starts.
func (c Config) Validate() error {
	if c.Sets <= 0 || c.Sets&(c.Sets-1) != 0 {
		return fmt.Errorf("tlb %s: sets must be a power of two, got %d", c.Name, c.Sets)
	}
	if c.Ways <= 0 {
		return fmt.Errorf("tlb %s: ways must be positive, got %d", c.Name, c.Ways)
	}
	if c.PageShift == 0 {
		return fmt.Errorf("tlb %s: page shift must be positive", c.Name)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("tlb %s: queue size must be positive, got %d", c.Name, c.QueueSize)
	}
	return nil
}

// Statistics mirrors mem/cache.Statistics' shape, restricted to what a
// translation level tracks.
type Statistics struct {
	Loads   uint64
	Hits    uint64
	Misses  uint64
	Evictions uint64
}

type entry struct {
	valid bool
	vpn   uint64
	ppn   uint64
}

type mshrEntry struct {
	vpn    uint64
	orig   []packet.Packet // original packets, replied to individually on fill
	issued uint64
}

// Level is one translation-cache level (ITLB, DTLB, or STLB).
type Level struct {
	name string
	cfg  Config

	pageShift uint
	pageMask  uint64

	rq    *queue.PacketQueue
	mshr  []mshrEntry
	tags  [][]entry // [set][way]
	order replacement.Policy

	registry *packet.Registry
	myReturn *packet.Channel
	lower    LowerLevel

	stats Statistics
	cycle uint64
}

// NewLevel constructs a translation cache level. myChannelID is the
// channel this level schedules its own responses on, toward its upstream
// listeners. lower is the next level down (another *Level, or a *Walker).
func NewLevel(cfg Config, registry *packet.Registry, myChannelID packet.ChannelID, lower LowerLevel) (*Level, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tags := make([][]entry, cfg.Sets)
	for s := range tags {
		tags[s] = make([]entry, cfg.Ways)
	}

	l := &Level{
		name:      cfg.Name,
		cfg:       cfg,
		pageShift: cfg.PageShift,
		pageMask:  (uint64(1) << cfg.PageShift) - 1,
		rq:        queue.NewPacketQueue(cfg.QueueSize, 1<<cfg.PageShift),
		tags:      tags,
		order:     replacement.New(replacement.LRU),
		registry:  registry,
		lower:     lower,
	}
	l.order.Initialize(cfg.Sets, cfg.Ways)
	l.myReturn = packet.NewChannel(myChannelID, cfg.QueueSize*2)
	registry.Register(l.myReturn)
	return l, nil
}

func (l *Level) vpn(addr uint64) uint64  { return addr >> l.pageShift }
func (l *Level) setOf(vpn uint64) int    { return int(vpn % uint64(len(l.tags))) }

// Issue admits a translation request into the level's queue.
func (l *Level) Issue(pkt packet.Packet) bool {
	return l.rq.Add(pkt) != queue.Rejected
}

func (l *Level) Initialize()      {}
func (l *Level) BeginPhase()      {}
func (l *Level) EndPhase(int)     {}
func (l *Level) Progress() uint64 { return l.cycle }

func (l *Level) PrintDeadlock() string {
	return fmt.Sprintf("tlb %s: rq=%d/%d mshr=%d cycle=%d",
		l.name, l.rq.Occupancy(), l.rq.Capacity(), len(l.mshr), l.cycle)
}

// Operate advances the level one cycle: drain ready fills from the lower
// level first, then perform up to MaxTagCheck lookups, matching
// mem/cache.Cache's per-cycle ordering.
func (l *Level) Operate() {
	l.cycle++
	l.myReturn.Operate(l.cycle)
	l.drainFills()

	for i := 0; i < l.cfg.MaxTagCheck; i++ {
		if !l.tagCheckOne() {
			break
		}
	}
}

func (l *Level) drainFills() {
	for {
		pkt, ok := l.myReturn.PopReady()
		if !ok {
			return
		}
		l.onFill(pkt)
	}
}

func (l *Level) tagCheckOne() bool {
	pkt, ok := l.rq.Front()
	if !ok {
		return false
	}

	vpn := l.vpn(pkt.VAddr)
	set := l.setOf(vpn)
	if way, hit := l.lookup(set, vpn); hit {
		l.rq.RemoveFront()
		l.stats.Loads++
		l.stats.Hits++
		l.order.UpdateState(l.cycle, pkt.CPU, set, way, pkt.VAddr, pkt.PC, 0, pkt.Type, true)

		resp := pkt
		resp.PAddr = (l.tags[set][way].ppn << l.pageShift) | (pkt.VAddr & l.pageMask)
		resp.IsTranslated = true
		returnAt := l.cycle + l.cfg.HitLatency
		for _, ch := range pkt.Returns {
			if dst, ok := l.registry.Lookup(ch); ok {
				dst.Schedule(resp, returnAt)
			}
		}
		return true
	}

	// Miss: merge into an existing MSHR for this VPN, or allocate one and
	// issue a request to the next level down.
	for i := range l.mshr {
		if l.mshr[i].vpn != vpn {
			continue
		}
		l.mshr[i].orig = append(l.mshr[i].orig, pkt)
		l.rq.RemoveFront()
		return true
	}

	if len(l.mshr) >= l.cfg.QueueSize {
		// Structural hazard: leave the request at the queue head and retry
		// next cycle once an MSHR entry frees up.
		return false
	}

	l.rq.RemoveFront()
	l.stats.Loads++
	l.stats.Misses++
	l.mshr = append(l.mshr, mshrEntry{
		vpn:    vpn,
		orig:   []packet.Packet{pkt},
		issued: l.cycle,
	})
	l.lower.Issue(packet.Packet{
		VAddr:   vpn << l.pageShift,
		Type:    packet.Translation,
		CPU:     pkt.CPU,
		InstrID: pkt.InstrID,
		PC:      pkt.PC,
		Returns: []packet.ChannelID{l.myReturn.ID()},
	})
	return true
}

func (l *Level) lookup(set int, vpn uint64) (int, bool) {
	for way, e := range l.tags[set] {
		if e.valid && e.vpn == vpn {
			return way, true
		}
	}
	return 0, false
}

// onFill installs a resolved translation returning from the lower level
// and replies to every original requester merged into this VPN's MSHR.
func (l *Level) onFill(pkt packet.Packet) {
	vpn := l.vpn(pkt.VAddr) // the original request's page, preserved through the walk
	ppn := l.vpn(pkt.PAddr) // the frame the walker resolved it to
	idx := -1
	for i := range l.mshr {
		if l.mshr[i].vpn == vpn {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	m := l.mshr[idx]
	l.mshr = append(l.mshr[:idx], l.mshr[idx+1:]...)

	set := l.setOf(vpn)
	views := make([]replacement.BlockView, len(l.tags[set]))
	for w, e := range l.tags[set] {
		views[w] = replacement.BlockView{Valid: e.valid, Addr: e.vpn << l.pageShift}
	}
	way := l.order.FindVictim(l.cycle, 0, 0, set, views, 0, vpn<<l.pageShift, packet.Translation)
	if l.tags[set][way].valid {
		l.stats.Evictions++
	}
	l.tags[set][way] = entry{valid: true, vpn: vpn, ppn: ppn}
	l.order.UpdateState(l.cycle, 0, set, way, vpn<<l.pageShift, 0, 0, packet.Translation, false)

	returnAt := l.cycle + l.cfg.FillLatency
	for _, orig := range m.orig {
		resp := orig
		resp.PAddr = (ppn << l.pageShift) | (orig.VAddr & l.pageMask)
		resp.IsTranslated = true
		for _, ch := range orig.Returns {
			if dst, ok := l.registry.Lookup(ch); ok {
				dst.Schedule(resp, returnAt)
			}
		}
	}
}

func (l *Level) Stats() Statistics { return l.stats }
