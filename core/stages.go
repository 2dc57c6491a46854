package core

import (
	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/predictor"
)

// retireROB is spec.md §4.5 step 1: from the ROB head, retire up to
// RetireWidth entries that have executed and (if they own a store) have
// successfully drained it into L1D. A store that can't yet be admitted to
// L1D is a structural hazard that stalls retirement of everything behind
// it, same as a real in-order retire stage.
func (c *Core) retireROB() {
	n := 0
	for n < c.cfg.RetireWidth {
		idx, ok := c.rob.Front()
		if !ok {
			break
		}
		ins := c.arena.get(idx)
		if !ins.Executed {
			break
		}

		if ins.HasStore && !ins.StoreRetired {
			pkt := packet.Packet{
				VAddr: ins.StoreAddr, PAddr: ins.MemPAddr, IsTranslated: ins.AddrTranslated,
				Type: packet.Store, CPU: c.cpu, InstrID: ins.UniqueID, PC: ins.rec.PC,
				IssueCycle: c.cycle,
			}
			if !c.l1d.Issue(pkt) {
				break
			}
			ins.StoreRetired = true
		}

		c.rob.PopFront()
		if ins.HasStore {
			c.freeRingSlot(c.sq, idx)
		}

		for _, d := range ins.rec.DestRegs {
			if d == 0 {
				continue
			}
			if ref := c.regOwner[d]; ref.valid && ref.idx == idx && ref.gen == ins.generation {
				c.regOwner[d] = regRef{}
			}
		}

		if ins.rec.IsBranch {
			c.pred.LastBranchResult(ins.rec.PC, ins.rec.Target, ins.rec.Taken, ins.BranchType)
		}
		if idx == c.blockingMispredict {
			c.fetchResumeCycle = c.cycle + c.cfg.MispredictPenalty
			c.blockingMispredict = -1
		}

		ins.RetiredCycle = c.cycle
		c.numRetired++
		c.stats.Retired++
		c.arena.release(idx)
		n++

		if c.instrLimit != 0 && c.numRetired >= c.instrLimit {
			c.halt = InstructionLimitReached
		}
	}
}

// completeInflightInstructions is spec.md §4.5 step 2: drain completions
// that arrived asynchronously from the memory hierarchy (DTLB and L1D
// responses), then mark any non-memory instruction whose scheduled
// EventCycle has arrived as executed, releasing every dependent waiting
// on its destination registers (resolved lazily, by the schedule stage
// checking Instr.Executed directly, rather than pushed eagerly).
func (c *Core) completeInflightInstructions() {
	for {
		pkt, ok := c.dtlbRet.PopReady()
		if !ok {
			break
		}
		idx, found := c.pendingDTLB[pkt.InstrID]
		if !found {
			continue
		}
		delete(c.pendingDTLB, pkt.InstrID)
		ins := c.arena.get(idx)
		ins.AddrTranslated = true
		ins.MemPAddr = pkt.PAddr
		if ins.HasStore {
			// A store is ready to retire-drain as soon as its address is
			// known; the actual L1D write happens at retirement.
			ins.Executed = true
			ins.EventCycle = c.cycle
		}
	}

	for {
		pkt, ok := c.memRet.PopReady()
		if !ok {
			break
		}
		idx, found := c.pendingLoad[pkt.InstrID]
		if !found {
			continue
		}
		delete(c.pendingLoad, pkt.InstrID)
		ins := c.arena.get(idx)
		ins.LoadDone = true
		ins.Executed = true
		ins.EventCycle = c.cycle
		c.freeRingSlot(c.lq, idx)
	}

	c.rob.Each(func(_ int, idx int) bool {
		ins := c.arena.get(idx)
		if ins.Executed || ins.HasLoad || ins.HasStore {
			return true
		}
		if ins.EventCycle != 0 && ins.EventCycle <= c.cycle {
			ins.Executed = true
			c.detectMispredict(idx, ins)
		}
		return true
	})
}

// detectMispredict compares a just-resolved branch's actual outcome
// (already known from the trace) against the prediction made at fetch
// time. A mismatch blocks further trace ingestion from this cycle on
// (spec.md §4.5's fetch-bubble model): instructions already fetched past
// the branch keep running to completion and retirement, but fetch itself
// doesn't resume until the branch retires, MispredictPenalty cycles
// later. Only the oldest outstanding mispredict blocks fetch; a second
// mispredicted branch discovered while the first is still unretired
// doesn't move the resume point.
func (c *Core) detectMispredict(idx int, ins *Instr) {
	if !ins.rec.IsBranch {
		return
	}
	mispredicted := ins.Predicted.Taken != ins.rec.Taken ||
		(ins.rec.Taken && (!ins.Predicted.TargetKnown || ins.Predicted.Target != ins.rec.Target))
	if !mispredicted {
		return
	}
	ins.Mispredicted = true
	c.stats.Mispredicts++
	if c.blockingMispredict == -1 {
		c.fetchStalled = true
		c.blockingMispredict = idx
	}
}

// executeInstructions is spec.md §4.5 step 3: issue DTLB translations for
// memory instructions whose address isn't yet known, issue loads to L1D
// (after checking store-to-load forwarding against the SQ), and schedule
// non-memory instructions' completion EventCycle. All three only apply to
// instructions the schedule stage has already cleared for execution.
func (c *Core) executeInstructions() {
	aluIssued, loadIssued, translateIssued := 0, 0, 0
	translateBudget := c.cfg.LQWidth + c.cfg.SQWidth

	c.rob.Each(func(_ int, idx int) bool {
		ins := c.arena.get(idx)
		if ins.Executed || !ins.ScheduledForExec {
			return true
		}

		if ins.HasLoad || ins.HasStore {
			if !ins.AddrTranslated {
				if ins.MemTranslationRequested || translateIssued >= translateBudget {
					return true
				}
				addr := ins.LoadAddr
				if ins.HasStore {
					addr = ins.StoreAddr
				}
				pkt := packet.Packet{
					VAddr: addr, Type: packet.Translation, CPU: c.cpu, InstrID: ins.UniqueID, PC: ins.rec.PC,
					Returns: []packet.ChannelID{c.dtlbRet.ID()}, IssueCycle: c.cycle,
				}
				if c.dtlb.Issue(pkt) {
					ins.MemTranslationRequested = true
					c.pendingDTLB[ins.UniqueID] = idx
					translateIssued++
				}
				return true
			}

			if ins.HasLoad && !ins.LoadIssued {
				if loadIssued >= c.cfg.LQWidth {
					return true
				}
				if c.findStoreForward(ins.LoadAddr, ins.UniqueID) {
					ins.LoadDone = true
					ins.ForwardedFromSQ = true
					c.freeRingSlot(c.lq, idx)
					ins.Executed = true
					ins.EventCycle = c.cycle + c.cfg.ExecuteLatency
					loadIssued++
					return true
				}
				pkt := packet.Packet{
					VAddr: ins.LoadAddr, PAddr: ins.MemPAddr, IsTranslated: true, Type: packet.Load,
					CPU: c.cpu, InstrID: ins.UniqueID, PC: ins.rec.PC,
					Returns: []packet.ChannelID{c.memRet.ID()}, IssueCycle: c.cycle,
				}
				if c.l1d.Issue(pkt) {
					ins.LoadIssued = true
					c.pendingLoad[ins.UniqueID] = idx
					loadIssued++
				}
			}
			return true
		}

		if ins.EventCycle != 0 || aluIssued >= c.cfg.ExecuteWidth {
			return true
		}
		ins.EventCycle = c.cycle + c.cfg.ExecuteLatency
		aluIssued++
		return true
	})
}

// findStoreForward reports whether an outstanding, address-known store
// older than loadUniqueID targets the same virtual address as a load
// about to issue, per spec.md §4.5's store-to-load forwarding note.
func (c *Core) findStoreForward(vaddr uint64, loadUniqueID uint64) bool {
	found := false
	c.sq.Each(func(_ int, idx int) bool {
		s := c.arena.get(idx)
		if s.HasStore && s.StoreAddr == vaddr && s.UniqueID < loadUniqueID {
			found = true
			return false
		}
		return true
	})
	return found
}

// scheduleInstructions is spec.md §4.5 step 4: consider up to
// ScheduleWidth ROB entries not yet cleared for execution, resolving
// each source register against the producer captured at dispatch time.
func (c *Core) scheduleInstructions() {
	considered := 0
	c.rob.Each(func(_ int, idx int) bool {
		if considered >= c.cfg.ScheduleWidth {
			return false
		}
		ins := c.arena.get(idx)
		if ins.ScheduledForExec {
			return true
		}
		considered++

		ready := true
		for i := 0; i < len(ins.SrcProducer); i++ {
			if !c.arena.producerResolved(ins.SrcProducer[i], ins.SrcProducerGen[i]) {
				ready = false
				break
			}
		}
		if ready {
			ins.ScheduledForExec = true
		}
		return true
	})
}

// dispatchInstructions is spec.md §4.5 step 5: move entries from the
// dispatch buffer into the ROB at DispatchWidth, allocating LQ/SQ slots
// and snapshotting each source register's current producer. Overflow of
// the ROB, LQ, or SQ stalls dispatch as a structural hazard.
func (c *Core) dispatchInstructions() {
	n := 0
	for n < c.cfg.DispatchWidth {
		idx, ok := c.dispatchBuffer.Front(c.cycle)
		if !ok {
			break
		}
		ins := c.arena.get(idx)
		if c.rob.Full() || (ins.HasLoad && c.lq.Full()) || (ins.HasStore && c.sq.Full()) {
			break
		}
		c.dispatchBuffer.PopFront(c.cycle)

		for i, r := range ins.rec.SrcRegs {
			if r == 0 {
				ins.SrcProducer[i] = -1
				continue
			}
			if ref := c.regOwner[r]; ref.valid {
				ins.SrcProducer[i] = ref.idx
				ins.SrcProducerGen[i] = ref.gen
			} else {
				ins.SrcProducer[i] = -1
			}
		}
		for _, d := range ins.rec.DestRegs {
			if d == 0 {
				continue
			}
			c.regOwner[d] = regRef{idx: idx, gen: ins.generation, valid: true}
		}

		if ins.HasLoad {
			c.lq.PushBack(idx)
		}
		if ins.HasStore {
			c.sq.PushBack(idx)
		}
		ins.DispatchedCycle = c.cycle
		c.rob.PushBack(idx)
		n++
	}
}

// decodeInstructions is spec.md §4.5 step 6: move entries that have
// cleared the decode buffer's visibility delay into the dispatch buffer.
func (c *Core) decodeInstructions() {
	n := 0
	for n < c.cfg.DecodeWidth {
		idx, ok := c.decodeBuffer.Front(c.cycle)
		if !ok || c.dispatchBuffer.Full() {
			break
		}
		c.decodeBuffer.PopFront(c.cycle)
		c.dispatchBuffer.PushBack(idx, c.cycle)
		n++
	}
}

// promoteToDecode is spec.md §4.5 step 7: move fetched IFETCH_BUFFER
// entries into the decode buffer, except a DIB hit, which bypasses the
// decode buffer's visibility delay entirely and goes straight to the
// dispatch buffer.
func (c *Core) promoteToDecode() {
	n := 0
	for n < c.cfg.DecodeWidth {
		idx, ok := c.ifetchBuffer.Front()
		if !ok {
			break
		}
		ins := c.arena.get(idx)
		if !ins.FetchDone {
			break
		}
		if ins.DIBHit {
			if c.dispatchBuffer.Full() {
				break
			}
			c.ifetchBuffer.PopFront()
			c.dispatchBuffer.PushBack(idx, c.cycle)
		} else {
			if c.decodeBuffer.Full() {
				break
			}
			c.ifetchBuffer.PopFront()
			c.decodeBuffer.PushBack(idx, c.cycle)
		}
		n++
	}
}

// fetchInstructions is spec.md §4.5 step 8: drain completed L1I reads,
// then issue L1I reads for translated IFETCH_BUFFER entries not yet
// issued. Same-cache-line contiguous fetches are coalesced for free by
// L1I's own request-queue Matches logic rather than grouped here.
func (c *Core) fetchInstructions() {
	for {
		pkt, ok := c.fetchRet.PopReady()
		if !ok {
			break
		}
		idx, found := c.pendingFetch[pkt.InstrID]
		if !found {
			continue
		}
		delete(c.pendingFetch, pkt.InstrID)
		c.arena.get(idx).FetchDone = true
	}

	issued := 0
	c.ifetchBuffer.Each(func(_ int, idx int) bool {
		if issued >= c.cfg.FetchWidth {
			return false
		}
		ins := c.arena.get(idx)
		if !ins.FetchTranslated || ins.FetchIssued || ins.FetchDone {
			return true
		}
		pkt := packet.Packet{
			VAddr: ins.rec.PC, PAddr: ins.FetchPAddr, IsTranslated: true, Type: packet.Load,
			CPU: c.cpu, InstrID: ins.UniqueID, PC: ins.rec.PC,
			Returns: []packet.ChannelID{c.fetchRet.ID()}, IssueCycle: c.cycle,
		}
		if c.l1i.Issue(pkt) {
			ins.FetchIssued = true
			c.pendingFetch[ins.UniqueID] = idx
			issued++
		}
		return true
	})
}

// translateFetch is spec.md §4.5 step 9: drain completed ITLB
// translations, then issue ITLB requests for untranslated IFETCH_BUFFER
// entries.
func (c *Core) translateFetch() {
	for {
		pkt, ok := c.itlbRet.PopReady()
		if !ok {
			break
		}
		idx, found := c.pendingITLB[pkt.InstrID]
		if !found {
			continue
		}
		delete(c.pendingITLB, pkt.InstrID)
		ins := c.arena.get(idx)
		ins.FetchTranslated = true
		ins.FetchPAddr = pkt.PAddr
	}

	issued := 0
	c.ifetchBuffer.Each(func(_ int, idx int) bool {
		if issued >= c.cfg.FetchWidth {
			return false
		}
		ins := c.arena.get(idx)
		if ins.FetchTranslated {
			return true
		}
		if _, pending := c.pendingITLB[ins.UniqueID]; pending {
			return true
		}
		pkt := packet.Packet{
			VAddr: ins.rec.PC, Type: packet.Translation, CPU: c.cpu, InstrID: ins.UniqueID, PC: ins.rec.PC,
			Returns: []packet.ChannelID{c.itlbRet.ID()}, IssueCycle: c.cycle,
		}
		if c.itlb.Issue(pkt) {
			c.pendingITLB[ins.UniqueID] = idx
			issued++
		}
		return true
	})
}

// checkDIB is spec.md §4.5 step 10: mark IFETCH_BUFFER entries hit in the
// decoded-instruction buffer, installing newly-seen PC windows.
func (c *Core) checkDIB() {
	c.ifetchBuffer.Each(func(_ int, idx int) bool {
		ins := c.arena.get(idx)
		if ins.DIBHit {
			return true
		}
		if c.dib.Hit(ins.rec.PC) {
			ins.DIBHit = true
		} else {
			c.dib.Install(ins.rec.PC)
		}
		return true
	})
}

// initInstruction is spec.md §4.5 step 11: pull up to FetchWidth records
// from the trace collaborator per cycle, predicting any branch ahead of
// fetch. Fetch itself stalls only once a mispredict is detected at
// execute (see detectMispredict); this stage's own job is just to stop
// asking the trace for more once that happens, and to resume once the
// mispredicting branch has retired (fetchResumeCycle set by retireROB).
func (c *Core) initInstruction() {
	if c.traceEnded {
		return
	}
	if c.fetchStalled {
		if c.fetchResumeCycle == 0 || c.cycle < c.fetchResumeCycle {
			return
		}
		c.fetchStalled = false
		c.fetchResumeCycle = 0
	}

	n := 0
	for n < c.cfg.FetchWidth {
		if c.ifetchBuffer.Full() {
			break
		}
		if c.instrLimit != 0 && c.numFetched >= c.instrLimit {
			break
		}
		rec, ok := c.src.Next()
		if !ok {
			c.traceEnded = true
			break
		}

		idx := c.arena.alloc()
		if idx < 0 {
			break
		}
		ins := c.arena.get(idx)
		ins.UniqueID = c.nextUniqueID
		c.nextUniqueID++
		ins.rec = instrRecord{
			PC: rec.PC, IsBranch: rec.IsBranch, Taken: rec.Taken, Target: rec.Target,
			DestRegs: rec.DestRegs, SrcRegs: rec.SrcRegs,
		}
		if rec.SrcMemory[0] != 0 {
			ins.HasLoad = true
			ins.LoadAddr = rec.SrcMemory[0]
		}
		if rec.DestMemory[0] != 0 {
			ins.HasStore = true
			ins.StoreAddr = rec.DestMemory[0]
		}

		if rec.IsBranch {
			ins.BranchType = predictor.Conditional
			ins.Predicted = c.pred.PredictBranch(rec.PC)
		}

		c.ifetchBuffer.PushBack(idx)
		c.numFetched++
		n++
	}
}

// freeRingSlot removes arenaIdx from ring, wherever it currently sits
// (loads and stores may complete out of FIFO order).
func (c *Core) freeRingSlot(ring interface {
	Each(func(int, int) bool)
	RemoveAt(int) bool
}, arenaIdx int) {
	pos := -1
	ring.Each(func(i int, v int) bool {
		if v == arenaIdx {
			pos = i
			return false
		}
		return true
	})
	if pos >= 0 {
		ring.RemoveAt(pos)
	}
}
