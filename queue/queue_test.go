package queue_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/queue"
)

func TestQueue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Queue Suite")
}

var _ = Describe("Ring", func() {
	It("respects capacity", func() {
		r := queue.NewRing[int](2)
		Expect(r.PushBack(1)).To(BeTrue())
		Expect(r.PushBack(2)).To(BeTrue())
		Expect(r.PushBack(3)).To(BeFalse())
		Expect(r.Occupancy()).To(Equal(2))
	})

	It("pops in FIFO order", func() {
		r := queue.NewRing[string](4)
		r.PushBack("a")
		r.PushBack("b")
		v, ok := r.PopFront()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("a"))
		v, ok = r.PopFront()
		Expect(v).To(Equal("b"))
	})

	It("supports RemoveAt for out-of-order completion", func() {
		r := queue.NewRing[int](4)
		r.PushBack(10)
		r.PushBack(20)
		r.PushBack(30)
		Expect(r.RemoveAt(1)).To(BeTrue())
		v0, _ := r.At(0)
		v1, _ := r.At(1)
		Expect(v0).To(Equal(10))
		Expect(v1).To(Equal(30))
	})
})

var _ = Describe("DelayRing", func() {
	It("hides entries until their delay has elapsed", func() {
		d := queue.NewDelayRing[int](4, 3)
		d.PushBack(42, 100)

		_, ok := d.Front(101)
		Expect(ok).To(BeFalse())
		_, ok = d.Front(102)
		Expect(ok).To(BeFalse())

		v, ok := d.Front(103)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(42))
	})
})

var _ = Describe("PacketQueue", func() {
	var pq *queue.PacketQueue

	BeforeEach(func() {
		pq = queue.NewPacketQueue(2, 64)
	})

	It("admits a new block address", func() {
		res := pq.Add(packet.Packet{VAddr: 0x1000, Type: packet.Load, Returns: []packet.ChannelID{1}})
		Expect(res).To(Equal(queue.Admitted))
		Expect(pq.Occupancy()).To(Equal(1))
	})

	It("coalesces a second load to the same block", func() {
		pq.Add(packet.Packet{VAddr: 0x1000, Type: packet.Load, Returns: []packet.ChannelID{1}})
		res := pq.Add(packet.Packet{VAddr: 0x1001, Type: packet.Load, Returns: []packet.ChannelID{2}})
		Expect(res).To(Equal(queue.Coalesced))
		Expect(pq.Occupancy()).To(Equal(1))

		front, _ := pq.Front()
		Expect(front.Returns).To(ConsistOf(packet.ChannelID(1), packet.ChannelID(2)))
	})

	It("absorbs a prefetch into an existing load silently", func() {
		pq.Add(packet.Packet{VAddr: 0x2000, Type: packet.Load, Returns: []packet.ChannelID{1}})
		res := pq.Add(packet.Packet{VAddr: 0x2000, Type: packet.Prefetch})
		Expect(res).To(Equal(queue.Coalesced))
		front, _ := pq.Front()
		Expect(front.Type).To(Equal(packet.Load))
	})

	It("rejects once full with distinct addresses", func() {
		pq.Add(packet.Packet{VAddr: 0x1000, Type: packet.Load})
		pq.Add(packet.Packet{VAddr: 0x2000, Type: packet.Load})
		res := pq.Add(packet.Packet{VAddr: 0x3000, Type: packet.Load})
		Expect(res).To(Equal(queue.Rejected))
	})
})
