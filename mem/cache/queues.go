package cache

import (
	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/queue"
)

// queueState wraps a queue.PacketQueue as the admission point for one of a
// cache's RQ/WQ/PQ.
type queueState struct {
	q *queue.PacketQueue
}

func newQueueState(capacity, blockSize int) *queueState {
	return &queueState{q: queue.NewPacketQueue(capacity, blockSize)}
}

// add admits pkt, reporting whether it was accepted (admitted or
// coalesced) as opposed to rejected for lack of space.
func (s *queueState) add(pkt packet.Packet) bool {
	return s.q.Add(pkt) != queue.Rejected
}
