package cache

import (
	"fmt"

	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/prefetch"
)

// LowerLevel is the interface a cache uses to issue a request to whatever
// sits below it: another Cache, or a flat terminating Memory. Decoupling
// through this interface (rather than a concrete *Cache pointer) is what
// lets a cache's lower level be swapped for a page-table walker or a
// synthetic fixed-latency memory without the cache itself caring.
type LowerLevel interface {
	Issue(pkt packet.Packet) bool
}

// mshrEntry tracks one outstanding miss: the block address requested, the
// type of request that caused the allocation, and every upstream listener
// (possibly merged from several coalesced misses) waiting on its fill.
type mshrEntry struct {
	addr    uint64
	vaddr   uint64
	reqType packet.RequestType
	ip      uint64
	cpu     uint32
	instrID uint64
	returns []packet.ChannelID
	issued  uint64
}

// Cache is the generic set-associative cache component described in
// spec.md §4.3. One instance models one cache level of the memory
// hierarchy (L1I, L1D, L2 or LLC; TLB levels are mem/tlb.Level); the
// hierarchy is built by wiring one Cache's lower level/translator to the
// next.
type Cache struct {
	name string
	cfg  Config

	rq, wq, pq *queueState

	mshr []mshrEntry

	tags tagArray

	registry *packet.Registry
	myReturn *packet.Channel

	translatorReturn *packet.Channel
	translator       LowerLevel

	lower LowerLevel

	pendingFills      []packet.Packet
	pendingTranslated map[uint64]packet.Packet

	prefetcher prefetch.Prefetcher

	stats Statistics

	cycle uint64
}

// New constructs a Cache. registry is the shared channel registry the
// whole hierarchy uses to resolve upstream listener ids; myChannelID names
// the Channel this cache itself listens on for responses from its own
// lower level.
func New(cfg Config, registry *packet.Registry, myChannelID packet.ChannelID, lower LowerLevel) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		name:     cfg.Name,
		cfg:      cfg,
		rq:       newQueueState(cfg.RQSize, cfg.BlockSize),
		wq:       newQueueState(cfg.WQSize, cfg.BlockSize),
		pq:       newQueueState(cfg.PQSize, cfg.BlockSize),
		mshr:     make([]mshrEntry, 0, cfg.MSHRSize),
		tags:     newTagArray(cfg),
		registry:          registry,
		myReturn:          packet.NewChannel(myChannelID, cfg.MSHRSize),
		pendingTranslated: make(map[uint64]packet.Packet),
		lower:             lower,
		prefetcher:        prefetch.None{},
	}
	registry.Register(c.myReturn)
	return c, nil
}

// SetPrefetcher installs the data/instruction prefetcher this cache drives
// its cache_operate/cache_fill hooks through.
func (c *Cache) SetPrefetcher(p prefetch.Prefetcher) { c.prefetcher = p }

// SetTranslator attaches a LowerLevel (normally a TLB or the page-table
// walker) this cache detours untranslated packets to, and the channel on
// which the translator returns completed translations.
func (c *Cache) SetTranslator(t LowerLevel, returnID packet.ChannelID) {
	c.translator = t
	c.translatorReturn = packet.NewChannel(returnID, c.cfg.MSHRSize)
	c.registry.Register(c.translatorReturn)
}

// Stats returns a copy of this cache's performance counters.
func (c *Cache) Stats() Statistics { return c.stats }

// Name returns the cache's configured name, for deadlock/stat reporting.
func (c *Cache) Name() string { return c.name }

// Issue admits pkt into the appropriate request queue (spec.md §4.3's
// "admit new requests from upstream channels"), routing by request type:
// demand reads and translations go to RQ, writes/writebacks to WQ,
// prefetches to PQ. It reports whether the packet was accepted.
func (c *Cache) Issue(pkt packet.Packet) bool {
	switch pkt.Type {
	case packet.Store, packet.Writeback:
		return c.wq.add(pkt)
	case packet.Prefetch:
		return c.pq.add(pkt)
	default:
		return c.rq.add(pkt)
	}
}

// Initialize satisfies clock.Operable; the cache has no warmup-specific
// construction step.
func (c *Cache) Initialize() {}

// BeginPhase satisfies clock.Operable.
func (c *Cache) BeginPhase() {}

// EndPhase satisfies clock.Operable.
func (c *Cache) EndPhase(int) {}

// Progress satisfies clock.Inspectable: the cycle of the oldest
// outstanding MSHR entry, or the cache's own cycle count if nothing is
// outstanding, so an MSHR entry that never fills holds Progress constant
// and is reported by the driver's deadlock check.
func (c *Cache) Progress() uint64 {
	if len(c.mshr) == 0 {
		return c.cycle
	}
	return c.mshr[0].issued
}

// PrintDeadlock satisfies clock.Operable.
func (c *Cache) PrintDeadlock() string {
	return fmt.Sprintf("%s: cycle=%d rq=%d wq=%d pq=%d mshr=%d/%d",
		c.name, c.cycle, c.rq.q.Occupancy(), c.wq.q.Occupancy(), c.pq.q.Occupancy(), len(c.mshr), c.cfg.MSHRSize)
}

// Operate advances the cache by one of its own cycles: drain completed
// fills and translations (bandwidth-gated), then perform up to
// MaxTagCheck tag-array lookups against the RQ/WQ/PQ heads.
func (c *Cache) Operate() {
	c.cycle++
	c.myReturn.Operate(c.cycle)
	c.drainFills()
	if c.translatorReturn != nil {
		c.translatorReturn.Operate(c.cycle)
		c.drainTranslations()
	}
	c.prefetcher.CycleOperate(c.cycle)

	checks := 0
	for checks < c.cfg.MaxTagCheck {
		if !c.tagCheckOne(c.rq) && !c.tagCheckOne(c.wq) && !c.tagCheckOne(c.pq) {
			break
		}
		checks++
	}
}

// drainFills moves newly-ready responses from myReturn into the
// fill-bandwidth-gated pending list and retires up to FillBandwidth of
// them this cycle.
func (c *Cache) drainFills() {
	for {
		pkt, ok := c.myReturn.PopReady()
		if !ok {
			break
		}
		c.pendingFills = append(c.pendingFills, pkt)
	}

	n := c.cfg.FillBandwidth
	if n > len(c.pendingFills) {
		n = len(c.pendingFills)
	}
	for i := 0; i < n; i++ {
		c.doFill(c.pendingFills[i])
	}
	c.pendingFills = c.pendingFills[n:]
}

// drainTranslations re-admits packets returned from the translator back
// into their original queue, now carrying a physical address, so they
// re-enter the tag-check pipeline. The translator's response only knows
// to notify this cache's translatorReturn channel, so the original
// packet's upstream listener list is restored from pendingTranslated,
// keyed by its (unmodified) virtual address.
func (c *Cache) drainTranslations() {
	for {
		pkt, ok := c.translatorReturn.PopReady()
		if !ok {
			break
		}
		orig, found := c.pendingTranslated[pkt.VAddr]
		if !found {
			continue
		}
		delete(c.pendingTranslated, pkt.VAddr)
		orig.PAddr = pkt.PAddr
		orig.IsTranslated = true
		c.Issue(orig)
	}
}

// tagCheckOne inspects q's head packet and either completes it (hit),
// allocates or merges an MSHR entry (miss), detours it to the translator,
// or leaves it in place (MSHR full, a structural hazard). It reports
// whether it made any progress.
func (c *Cache) tagCheckOne(q *queueState) bool {
	pkt, ok := q.q.Front()
	if !ok {
		return false
	}

	if !pkt.IsTranslated && c.translator != nil {
		q.q.RemoveFront()
		c.stats.TranslationReq++
		tpkt := pkt
		tpkt.Type = packet.Translation
		tpkt.Returns = []packet.ChannelID{c.translatorReturn.ID()}
		tpkt.IssueCycle = c.cycle
		c.pendingTranslated[pkt.VAddr] = pkt
		c.translator.Issue(tpkt)
		return true
	}

	if pkt.Type == packet.Writeback {
		q.q.RemoveFront()
		if c.lower != nil {
			c.lower.Issue(pkt)
		}
		c.stats.Writebacks++
		return true
	}

	addr := pkt.Address()
	if pkt.Type == packet.Load || pkt.Type == packet.Prefetch {
		c.stats.Loads++
	}

	set, way, hit := c.tags.lookup(addr)
	if c.cfg.activates(pkt.Type) {
		reqs := c.prefetcher.CacheOperate(c.cycle, addr, pkt.PC, hit, pkt.Type)
		c.issuePrefetchRequests(reqs)
	}

	if hit {
		q.q.RemoveFront()
		c.stats.Hits++
		if pkt.Type == packet.Prefetch {
			c.stats.PrefetchHits++
		}
		if pkt.Type == packet.Store || pkt.Type == packet.RFO {
			c.tags.markDirty(set, way)
		}
		c.tags.recordHit(c.cycle, pkt.CPU, set, way, addr, pkt.PC, pkt.Type)
		m := c.tags.meta(set, way)
		m.LastAccess = c.cycle
		c.respond(pkt, c.cycle+c.cfg.HitLatency)
		return true
	}

	c.stats.Misses++

	if idx := c.findMSHR(addr); idx >= 0 {
		q.q.RemoveFront()
		c.mshr[idx].returns = appendReturns(c.mshr[idx].returns, pkt.Returns)
		c.stats.MSHRMerges++
		return true
	}

	if len(c.mshr) >= c.cfg.MSHRSize {
		// Structural hazard: leave the request at the head to retry.
		return false
	}

	q.q.RemoveFront()
	reqType := pkt.Type
	if reqType == packet.Store {
		reqType = packet.RFO
	}
	c.mshr = append(c.mshr, mshrEntry{
		addr:    addr &^ uint64(c.cfg.BlockSize-1),
		vaddr:   pkt.VAddr,
		reqType: reqType,
		ip:      pkt.PC,
		cpu:     pkt.CPU,
		instrID: pkt.InstrID,
		returns: pkt.Returns,
		issued:  c.cycle,
	})
	if c.lower != nil {
		c.lower.Issue(packet.Packet{
			VAddr:        addr &^ uint64(c.cfg.BlockSize-1),
			PAddr:        addr &^ uint64(c.cfg.BlockSize-1),
			IsTranslated: true,
			Type:         reqType,
			CPU:          pkt.CPU,
			InstrID:      pkt.InstrID,
			PC:           pkt.PC,
			Returns:      []packet.ChannelID{c.myReturn.ID()},
			IssueCycle:   c.cycle,
		})
	}
	return true
}

// issuePrefetchRequests admits prefetcher-generated requests into PQ,
// silently dropping any that don't fit — prefetches never apply
// backpressure on the demand stream.
func (c *Cache) issuePrefetchRequests(reqs []prefetch.Request) {
	for _, r := range reqs {
		c.pq.add(packet.Packet{
			VAddr:        r.Addr,
			PAddr:        r.Addr,
			IsTranslated: true,
			Type:         packet.Prefetch,
			PC:           r.PC,
			Fill:         r.Fill,
			IssueCycle:   c.cycle,
		})
		c.stats.Prefetches++
	}
}

func (c *Cache) findMSHR(addr uint64) int {
	blockAddr := addr &^ uint64(c.cfg.BlockSize-1)
	for i := range c.mshr {
		if c.mshr[i].addr == blockAddr {
			return i
		}
	}
	return -1
}

// doFill completes one MSHR entry once its fill packet has returned from
// the lower level: it chooses a victim, writes back a dirty one if
// necessary, installs the new block, and notifies every upstream listener
// that was waiting on it.
func (c *Cache) doFill(pkt packet.Packet) {
	addr := pkt.Address()
	idx := -1
	for i := range c.mshr {
		if c.mshr[i].addr == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	entry := c.mshr[idx]
	c.mshr = append(c.mshr[:idx], c.mshr[idx+1:]...)

	set, way, hadValid, evictedAddr, wasDirty := c.tags.victim(c.cycle, entry.cpu, entry.instrID, entry.ip, addr, entry.reqType)
	if hadValid {
		c.stats.Evictions++
		if wasDirty {
			c.stats.Writebacks++
			if c.lower != nil {
				c.lower.Issue(packet.Packet{
					VAddr: evictedAddr, PAddr: evictedAddr, IsTranslated: true,
					Type: packet.Writeback, IssueCycle: c.cycle,
				})
			}
		}
	}

	dirty := entry.reqType == packet.RFO || entry.reqType == packet.Store
	c.tags.install(set, way, addr, dirty)
	c.tags.recordFill(c.cycle, entry.cpu, set, way, addr, entry.ip, evictedAddr, entry.reqType)

	m := c.tags.meta(set, way)
	m.PrefetchOrigin = entry.reqType == packet.Prefetch
	m.VAddr = pkt.VAddr
	m.PC = entry.ip
	m.LastAccess = c.cycle

	fillReqs := c.prefetcher.CacheFill(c.cycle, addr, set, way, evictedAddr, m.PrefetchOrigin)
	c.issuePrefetchRequests(fillReqs)

	returnAt := c.cycle + c.cfg.FillLatency
	response := pkt
	response.VAddr = entry.vaddr
	response.Type = entry.reqType
	response.PC = entry.ip
	response.CPU = entry.cpu
	response.InstrID = entry.instrID
	for _, chID := range entry.returns {
		if ch, ok := c.registry.Lookup(chID); ok {
			ch.Schedule(response, returnAt)
		}
	}
}

func (c *Cache) respond(pkt packet.Packet, returnAt uint64) {
	for _, chID := range pkt.Returns {
		if ch, ok := c.registry.Lookup(chID); ok {
			ch.Schedule(pkt, returnAt)
		}
	}
}

func appendReturns(base []packet.ChannelID, extra []packet.ChannelID) []packet.ChannelID {
	out := base
	for _, id := range extra {
		found := false
		for _, existing := range out {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}
