package packet

// Channel is a typed conduit between a producer (upper level) and a
// consumer (lower level). The producer owns the Channel; the consumer
// keeps a list of upstream Channel ids (or pointers, as here) so it can
// notify arbitrary upstream listeners without a circular upper/lower
// pointer pair. See design notes in SPEC_FULL.md / spec.md §9.
type Channel struct {
	id ChannelID

	capacity int
	inflight []scheduledReturn

	ready []Packet
}

type scheduledReturn struct {
	pkt Packet
	at  uint64
}

// NewChannel creates a Channel identified by id with the given return-side
// capacity (bounding how many in-flight responses may be scheduled at once,
// mirroring ChampSim's CacheBus sizing its PROCESSED buffer to rob_size).
func NewChannel(id ChannelID, capacity int) *Channel {
	return &Channel{id: id, capacity: capacity}
}

// ID returns the channel's identity.
func (c *Channel) ID() ChannelID { return c.id }

// Schedule enqueues pkt to be delivered (become visible via PopReady) once
// the driving component's current_cycle reaches returnCycle. It reports
// false if the channel's in-flight capacity is exhausted.
func (c *Channel) Schedule(pkt Packet, returnCycle uint64) bool {
	if c.capacity > 0 && len(c.inflight) >= c.capacity {
		return false
	}
	pkt.ReturnCycle = returnCycle
	c.inflight = append(c.inflight, scheduledReturn{pkt: pkt, at: returnCycle})
	return true
}

// Operate moves every scheduled return whose time has come into the ready
// queue, preserving the order in which they were scheduled among ties.
func (c *Channel) Operate(currentCycle uint64) {
	if len(c.inflight) == 0 {
		return
	}
	remaining := c.inflight[:0]
	for _, sr := range c.inflight {
		if sr.at <= currentCycle {
			c.ready = append(c.ready, sr.pkt)
		} else {
			remaining = append(remaining, sr)
		}
	}
	c.inflight = remaining
}

// PopReady removes and returns the oldest ready packet, if any.
func (c *Channel) PopReady() (Packet, bool) {
	if len(c.ready) == 0 {
		return Packet{}, false
	}
	pkt := c.ready[0]
	c.ready = c.ready[1:]
	return pkt, true
}

// PeekReady reports the oldest ready packet without removing it.
func (c *Channel) PeekReady() (Packet, bool) {
	if len(c.ready) == 0 {
		return Packet{}, false
	}
	return c.ready[0], true
}

// Pending reports how many responses are scheduled but not yet ready.
func (c *Channel) Pending() int { return len(c.inflight) }

// Registry maps channel ids to channels so a cache's upstream listener list
// (a list of ids, per a packet's Returns) can be resolved to concrete
// Channels to Schedule a response on.
type Registry struct {
	channels map[ChannelID]*Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[ChannelID]*Channel)}
}

// Register adds ch to the registry, keyed by its own id.
func (r *Registry) Register(ch *Channel) {
	r.channels[ch.ID()] = ch
}

// Lookup resolves a channel id back to its Channel.
func (r *Registry) Lookup(id ChannelID) (*Channel, bool) {
	ch, ok := r.channels[id]
	return ch, ok
}
