package cache

import "github.com/sarchlab/oocsim/packet"

// Memory is the flat, fixed-latency terminating level of the hierarchy:
// it always "hits", after Latency cycles, generalizing cache/backing.go's
// BackingStore idea to a component with its own clock.Operable cycle
// instead of a synchronous Read/Write call, since every other level in
// this simulator is itself a discrete-event component.
type Memory struct {
	Latency  uint64
	registry *packet.Registry
	cycle    uint64

	inflight []scheduledReturn
}

type scheduledReturn struct {
	pkt packet.Packet
	at  uint64
}

// NewMemory constructs a Memory backed by registry, used to resolve the
// return channels named in a packet's Returns list.
func NewMemory(latency uint64, registry *packet.Registry) *Memory {
	return &Memory{Latency: latency, registry: registry}
}

// Issue satisfies LowerLevel: the request always completes after Latency
// cycles, with no notion of hit/miss or capacity.
func (m *Memory) Issue(pkt packet.Packet) bool {
	m.inflight = append(m.inflight, scheduledReturn{pkt: pkt, at: m.cycle + m.Latency})
	return true
}

func (m *Memory) Initialize()     {}
func (m *Memory) BeginPhase()     {}
func (m *Memory) EndPhase(int)    {}
func (m *Memory) Progress() uint64 { return m.cycle }
func (m *Memory) PrintDeadlock() string {
	return "memory: no queues, cannot deadlock"
}

// Operate satisfies clock.Operable: every request whose latency has
// elapsed is delivered to its listeners.
func (m *Memory) Operate() {
	m.cycle++
	remaining := m.inflight[:0]
	for _, sr := range m.inflight {
		if sr.at > m.cycle {
			remaining = append(remaining, sr)
			continue
		}
		if sr.pkt.Type == packet.Writeback {
			continue
		}
		for _, chID := range sr.pkt.Returns {
			if ch, ok := m.registry.Lookup(chID); ok {
				ch.Schedule(sr.pkt, m.cycle)
			}
		}
	}
	m.inflight = remaining
}
