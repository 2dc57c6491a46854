package prefetch

import "github.com/sarchlab/oocsim/packet"

// Berti is the per-page best-request-time delta prefetcher from the Third
// Data Prefetching Championship (Ros, "Berti: A Per-Page Best-Request-Time
// Delta Prefetcher"), grounded on
// original_source/prefetcher/berti/berti.cc. For every page currently
// being accessed it tracks which deltas (offsets relative to the
// triggering access) arrived soon enough after a previous request to have
// been useful, and on every new access bursts the best few of those
// deltas ahead of the demand stream.
type Berti struct {
	BlockSize int
	PageSize  int
	Fill      packet.FillLevel

	currentPages []bertiPageEntry
	recordPages  []bertiRecordEntry

	prevRequests []bertiPrevRequest
	prevHead     int

	prevPrefetches   []bertiPrevPrefetch
	prevPrefetchHead int

	// ipTable groups instruction pointers that access the same page
	// pattern: it points an IP at the recordPages slot its own evicted
	// pages summarize into, so a brand-new page touched by a familiar IP
	// can be predicted before it has any history of its own.
	ipTable map[uint64]int

	clock uint64 // monotonic recency counter for current-page LRU
}

const (
	bertiNumDeltas         = 10
	bertiDeltasPerAccess   = 7
	bertiMaxBurst          = 3
	bertiMedHighConfidence = 2
	bertiCurrentPagesSize  = 64
	bertiRecordPagesSize   = 128
	bertiPrevRequestsSize  = 1024
	bertiPrevPrefetchSize  = 512
	bertiTimeBits          = 16
	bertiTimeOverflow      = 1 << bertiTimeBits
	bertiTimeMask          = bertiTimeOverflow - 1
)

type bertiDelta struct {
	value int
	ctr   uint
}

type bertiPageEntry struct {
	valid       bool
	pageAddr    uint64
	ip          uint64
	uVector     uint64
	firstOffset uint64
	deltas      [bertiNumDeltas]bertiDelta
	lastBurst   []uint64 // burst targets deferred by a previous access's per-access cap
	recency     uint64
}

type bertiRecordEntry struct {
	valid       bool
	pageAddr    uint64
	firstOffset uint64
	delta       int
}

type bertiPrevRequest struct {
	pageSlot int // index into currentPages, or -1 if free
	offset   uint64
	time     uint64
}

// bertiPrevPrefetch is Berti's previous-prefetches table: a ring buffer
// recording, per in-flight prefetch, whether it has completed yet and
// either the cycle it was issued (not yet completed) or the fill latency
// it measured (completed). CacheFill reads it to learn the deltas that
// were timely enough to have mattered.
type bertiPrevPrefetch struct {
	pageSlot  int
	offset    uint64
	timeLat   uint64
	completed bool
}

// NewBerti constructs a Berti prefetcher for a cache with the given block
// and page size (bytes).
func NewBerti(blockSize, pageSize int, fill packet.FillLevel) *Berti {
	b := &Berti{BlockSize: blockSize, PageSize: pageSize, Fill: fill}
	b.currentPages = make([]bertiPageEntry, bertiCurrentPagesSize)
	b.recordPages = make([]bertiRecordEntry, bertiRecordPagesSize)
	b.prevRequests = make([]bertiPrevRequest, bertiPrevRequestsSize)
	for i := range b.prevRequests {
		b.prevRequests[i].pageSlot = -1
	}
	b.prevPrefetches = make([]bertiPrevPrefetch, bertiPrevPrefetchSize)
	for i := range b.prevPrefetches {
		b.prevPrefetches[i].pageSlot = -1
	}
	b.ipTable = make(map[uint64]int)
	return b
}

func (b *Berti) pageOffset(addr uint64) (uint64, uint64) {
	blocksPerPage := uint64(b.PageSize / b.BlockSize)
	blockAddr := addr / uint64(b.BlockSize)
	return (blockAddr / blocksPerPage) * blocksPerPage * uint64(b.BlockSize), blockAddr % blocksPerPage
}

// latency is the masked, overflow-safe cycle delta: the live branch in the
// original source is a dead `return cycle - cycle_prev` above an
// unreachable masked computation; this prefetcher uses the masked form, as
// it is the one actually intended to survive timer wraparound.
func latency(cycle, prevCycle uint64) uint64 {
	cm := cycle & bertiTimeMask
	pm := prevCycle & bertiTimeMask
	if pm > cm {
		return (cm + bertiTimeOverflow) - pm
	}
	return cm - pm
}

func (b *Berti) findPage(pageAddr uint64) int {
	for i := range b.currentPages {
		if b.currentPages[i].valid && b.currentPages[i].pageAddr == pageAddr {
			return i
		}
	}
	return -1
}

func (b *Berti) touchRecency(slot int) {
	b.clock++
	b.currentPages[slot].recency = b.clock
}

func (b *Berti) evictPageSlot() int {
	oldest, oldestRecency := 0, ^uint64(0)
	for i := range b.currentPages {
		if !b.currentPages[i].valid {
			return i
		}
		if b.currentPages[i].recency < oldestRecency {
			oldest, oldestRecency = i, b.currentPages[i].recency
		}
	}
	return oldest
}

// resetPointers invalidates every previous-request and previous-prefetch
// entry still pointing at slot, so a page evicted from the current-pages
// table doesn't leave stale history for whatever page is installed next.
func (b *Berti) resetPointers(slot int) {
	for i := range b.prevRequests {
		if b.prevRequests[i].pageSlot == slot {
			b.prevRequests[i].pageSlot = -1
		}
	}
	for i := range b.prevPrefetches {
		if b.prevPrefetches[i].pageSlot == slot {
			b.prevPrefetches[i].pageSlot = -1
		}
	}
}

// findRecordSlot returns the single recordPages slot page addr hashes to.
// The table is direct-mapped, so a new page addr simply overwrites
// whatever was recorded there before.
func (b *Berti) findRecordSlot(pageAddr uint64) int {
	return int(pageAddr % uint64(len(b.recordPages)))
}

// recordBestDelta saves the single highest-confidence delta of an evicted
// page entry into the record-pages table, so a page revisited soon after
// eviction (or a brand-new page touched by the same IP) can seed its
// delta prediction immediately instead of re-learning from scratch. It
// prefers the slot the entry's IP is already linked to, so repeated
// visits from the same code location accumulate into one record.
func (b *Berti) recordBestDelta(e bertiPageEntry) {
	best, bestCtr := 0, uint(0)
	for _, d := range e.deltas {
		if d.ctr > bestCtr {
			best, bestCtr = d.value, d.ctr
		}
	}
	if best == 0 {
		return
	}
	idx, ok := b.ipTable[e.ip]
	if !ok {
		idx = b.findRecordSlot(e.pageAddr)
		b.ipTable[e.ip] = idx
	}
	b.recordPages[idx] = bertiRecordEntry{valid: true, pageAddr: e.pageAddr, firstOffset: e.firstOffset, delta: best}
}

// lookupRecord reports the recorded delta for an exact (page, first
// access offset) match — the highest-confidence prediction Berti can
// make, since it means this exact access pattern has been seen before.
func (b *Berti) lookupRecord(pageAddr, firstOffset uint64) (int, bool) {
	idx := b.findRecordSlot(pageAddr)
	e := b.recordPages[idx]
	if e.valid && e.pageAddr == pageAddr && e.firstOffset == firstOffset {
		return e.delta, true
	}
	return 0, false
}

// linkIP ties an instruction pointer to the record slot its current page
// already matches (exact page+offset), or, failing that, to the slot its
// own page would hash to, so recordBestDelta has somewhere consistent to
// file this IP's pattern away when the page is eventually evicted.
func (b *Berti) linkIP(slot int, ip uint64) {
	e := b.currentPages[slot]
	idx := b.findRecordSlot(e.pageAddr)
	rec := b.recordPages[idx]
	if rec.valid && rec.pageAddr == e.pageAddr && rec.firstOffset == e.firstOffset {
		b.ipTable[ip] = idx
		return
	}
	if _, exists := b.ipTable[ip]; !exists {
		b.ipTable[ip] = idx
	}
}

// ipConfidence reports the delta recorded for ip's linked record slot, and
// whether that slot's first-access offset exactly matches the page
// currently being opened (an IP+first_offset match, high confidence) or
// not (an IP-only match across a different access pattern, medium
// confidence).
func (b *Berti) ipConfidence(ip, firstOffset uint64) (delta int, exact bool, ok bool) {
	idx, exists := b.ipTable[ip]
	if !exists {
		return 0, false, false
	}
	e := b.recordPages[idx]
	if !e.valid {
		return 0, false, false
	}
	return e.delta, e.firstOffset == firstOffset, true
}

type confidenceLevel int

const (
	confidenceLow confidenceLevel = iota
	confidenceMedium
	confidenceHigh
)

// matchConfidence grades how much to trust bursting ahead of the stream
// right now: an exact (page,first_offset) or (ip,first_offset) record
// match is high confidence; an IP match against a different access
// pattern is medium; anything else is low, and falls back to whatever the
// slot's own counters have locally confirmed.
func (b *Berti) matchConfidence(slot int, ip uint64) confidenceLevel {
	e := b.currentPages[slot]
	if _, ok := b.lookupRecord(e.pageAddr, e.firstOffset); ok {
		return confidenceHigh
	}
	if _, exact, ok := b.ipConfidence(ip, e.firstOffset); ok {
		if exact {
			return confidenceHigh
		}
		return confidenceMedium
	}
	return confidenceLow
}

func (b *Berti) openPage(pageAddr, ip, offset uint64) int {
	slot := b.evictPageSlot()
	if b.currentPages[slot].valid {
		b.recordBestDelta(b.currentPages[slot])
		b.resetPointers(slot)
	}
	b.currentPages[slot] = bertiPageEntry{
		valid:       true,
		pageAddr:    pageAddr,
		ip:          ip,
		uVector:     1 << offset,
		firstOffset: offset,
	}
	if delta, ok := b.lookupRecord(pageAddr, offset); ok {
		b.currentPages[slot].deltas[0] = bertiDelta{value: delta, ctr: 1}
	}
	b.linkIP(slot, ip)
	b.touchRecency(slot)
	return slot
}

func (b *Berti) addDelta(slot int, delta int) {
	if delta == 0 {
		return // a zero stride is never informative; never recorded.
	}
	e := &b.currentPages[slot]
	for i := range e.deltas {
		if e.deltas[i].ctr == 0 {
			e.deltas[i] = bertiDelta{value: delta, ctr: 1}
			return
		}
		if e.deltas[i].value == delta {
			e.deltas[i].ctr++
			return
		}
	}
}

func (b *Berti) recordPrevRequest(slot int, offset, cycle uint64) {
	for _, pr := range b.prevRequests {
		if pr.pageSlot == slot && pr.offset == offset {
			return
		}
	}
	b.prevRequests[b.prevHead] = bertiPrevRequest{pageSlot: slot, offset: offset, time: cycle & bertiTimeMask}
	b.prevHead = (b.prevHead + 1) % len(b.prevRequests)
}

// recordPrevPrefetch notes that a prefetch for (slot,offset) was just
// issued, so a later cache_fill for that address can look its latency up
// and credit the deltas that predicted it.
func (b *Berti) recordPrevPrefetch(slot int, offset, cycle uint64) {
	for i := range b.prevPrefetches {
		if b.prevPrefetches[i].pageSlot == slot && b.prevPrefetches[i].offset == offset {
			return
		}
	}
	b.prevPrefetches[b.prevPrefetchHead] = bertiPrevPrefetch{pageSlot: slot, offset: offset, timeLat: cycle & bertiTimeMask}
	b.prevPrefetchHead = (b.prevPrefetchHead + 1) % len(b.prevPrefetches)
}

// takeLatencyPrevPrefetch looks up the previous-prefetches entry for
// (slot,offset) and, the first time it's asked after the prefetch
// completes, freezes its elapsed time into a latency. Returns 0 if no
// matching prefetch was ever issued.
func (b *Berti) takeLatencyPrevPrefetch(slot int, offset, cycle uint64) uint64 {
	for i := range b.prevPrefetches {
		p := &b.prevPrefetches[i]
		if p.pageSlot == slot && p.offset == offset {
			if !p.completed {
				p.timeLat = latency(cycle, p.timeLat)
				p.completed = true
			}
			return p.timeLat
		}
	}
	return 0
}

// latencyPrevRequest reports how long ago (slot,offset) was last demand
// requested, or 0 if it never was.
func (b *Berti) latencyPrevRequest(slot int, offset, cycle uint64) uint64 {
	for _, pr := range b.prevRequests {
		if pr.pageSlot == slot && pr.offset == offset {
			return latency(cycle, pr.time)
		}
	}
	return 0
}

// stridesSince collects up to bertiDeltasPerAccess strides between offset
// and every other request to slot made at or before cutoff, the same
// backward scan the access-time miner does but anchored at a cycle in the
// past rather than now — used by CacheFill to credit the deltas that were
// actually timely enough to have produced this fill.
func (b *Berti) stridesSince(slot int, offset, cutoff uint64) []int {
	cutoffMasked := cutoff & bertiTimeMask
	var strides []int
	for _, pr := range b.prevRequests {
		if pr.pageSlot != slot || pr.time > cutoffMasked {
			continue
		}
		strides = append(strides, int(offset)-int(pr.offset))
		if len(strides) >= bertiDeltasPerAccess {
			break
		}
	}
	return strides
}

func (b *Berti) strongestDelta(slot int) (int, bool) {
	e := b.currentPages[slot]
	best, bestCtr := 0, uint(0)
	for _, d := range e.deltas {
		if d.ctr > bestCtr {
			best, bestCtr = d.value, d.ctr
		}
	}
	if bestCtr >= bertiMedHighConfidence {
		return best, true
	}
	return 0, false
}

// bestDeltas returns up to bertiDeltasPerAccess deltas ranked by
// confidence, highest first; ties prefer the smaller absolute delta and,
// among those, the positive one — a best-effort tie-break, since low and
// high strides of equal confidence are otherwise indistinguishable.
func (b *Berti) bestDeltas(slot int) []int {
	e := b.currentPages[slot]
	type scored struct {
		delta int
		ctr   uint
	}
	var candidates []scored
	for _, d := range e.deltas {
		if d.ctr > 0 {
			candidates = append(candidates, scored{d.value, d.ctr})
		}
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, c := candidates[i], candidates[j]
			swap := false
			if c.ctr > a.ctr {
				swap = true
			} else if c.ctr == a.ctr {
				aAbs, cAbs := abs(a.delta), abs(c.delta)
				if cAbs < aAbs || (cAbs == aAbs && c.delta > a.delta) {
					swap = true
				}
			}
			if swap {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if len(candidates) > bertiDeltasPerAccess {
		candidates = candidates[:bertiDeltasPerAccess]
	}
	out := make([]int, len(candidates))
	for i, c := range candidates {
		out[i] = c.delta
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// CacheOperate implements Prefetcher: on every triggering access it records
// the offset as requested, mines a delta against every previous request to
// the same page still within the learning window, and bursts ahead of the
// stream. The burst list itself is confidence-gated: a high-confidence
// (exact page or IP plus first-offset) match bursts every ranked delta, a
// medium-confidence (IP-only) match uses only the top-ranked delta, and
// otherwise only the slot's own locally-confirmed delta (if its counter
// has repeated enough to count as medium-high confidence) is used, up to
// bertiMaxBurst requests per access.
func (b *Berti) CacheOperate(cycle uint64, addr, ip uint64, _ bool, _ packet.RequestType) []Request {
	pageAddr, offset := b.pageOffset(addr)
	slot := b.findPage(pageAddr)
	if slot < 0 {
		slot = b.openPage(pageAddr, ip, offset)
	} else {
		if b.currentPages[slot].uVector&(1<<offset) != 0 {
			return nil // already requested this offset; nothing new to learn or prefetch.
		}
		b.currentPages[slot].uVector |= 1 << offset
		b.touchRecency(slot)
	}

	for i := range b.prevRequests {
		pr := b.prevRequests[i]
		if pr.pageSlot != slot {
			continue
		}
		if latency(cycle, pr.time) == 0 {
			continue
		}
		stride := int(offset) - int(pr.offset)
		b.addDelta(slot, stride)
	}
	b.recordPrevRequest(slot, offset, cycle)

	var deltas []int
	switch b.matchConfidence(slot, ip) {
	case confidenceHigh:
		deltas = b.bestDeltas(slot)
	case confidenceMedium:
		if ranked := b.bestDeltas(slot); len(ranked) > 0 {
			deltas = ranked[:1]
		}
	default:
		if d, ok := b.strongestDelta(slot); ok {
			deltas = []int{d}
		}
	}

	blocksPerPage := uint64(b.PageSize / b.BlockSize)
	var reqs []Request
	var deferred []uint64
	issue := func(target uint64) {
		if len(reqs) >= bertiMaxBurst {
			deferred = append(deferred, target)
			return
		}
		reqs = append(reqs, Request{Addr: pageAddr + target*uint64(b.BlockSize), Fill: b.Fill, PC: ip})
		b.recordPrevPrefetch(slot, target, cycle)
	}

	// drain any burst targets deferred by a previous access's cap before
	// mining new ones.
	for _, target := range b.currentPages[slot].lastBurst {
		if b.currentPages[slot].uVector&(1<<target) != 0 {
			continue // already requested this offset within the page.
		}
		issue(target)
	}
	for _, delta := range deltas {
		target := int(offset) + delta
		if target < 0 || uint64(target) >= blocksPerPage {
			continue // would cross a page boundary; Berti never prefetches across pages.
		}
		t := uint64(target)
		if b.currentPages[slot].uVector&(1<<t) != 0 {
			continue // already requested this offset within the page.
		}
		issue(t)
	}
	b.currentPages[slot].lastBurst = deferred
	return reqs
}

// CacheFill implements Prefetcher's fill-time learning hook: if the
// filled block's page is still being tracked, it recovers how long ago
// the fill's prefetch (if any) and its triggering demand were issued,
// and credits the deltas measured that far back against the present
// offset — the same strides CacheOperate would have mined had it known
// then what the fill now confirms. It also retires whatever current-page
// entry the evicted line's page belongs to, summarizing it into the
// record table first.
func (b *Berti) CacheFill(cycle uint64, addr uint64, _ int, _ int, evictedAddr uint64, _ bool) []Request {
	pageAddr, offset := b.pageOffset(addr)
	if slot := b.findPage(pageAddr); slot >= 0 {
		prefLatency := b.takeLatencyPrevPrefetch(slot, offset, cycle)
		demandLatency := b.latencyPrevRequest(slot, offset, cycle)
		if prefLatency == 0 {
			prefLatency = demandLatency
		}
		if demandLatency != 0 {
			back := cycle - (prefLatency + demandLatency)
			for _, stride := range b.stridesSince(slot, offset, back) {
				b.addDelta(slot, stride)
			}
		}
	}

	evictedPage, _ := b.pageOffset(evictedAddr)
	if victim := b.findPage(evictedPage); victim >= 0 {
		b.recordBestDelta(b.currentPages[victim])
		b.resetPointers(victim)
		b.currentPages[victim] = bertiPageEntry{}
	}
	return nil
}

func (b *Berti) CycleOperate(uint64) {}
