package clock_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/clock"
)

func TestClock(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Clock Suite")
}

type countingOp struct {
	ops      int
	progress uint64
}

func (c *countingOp) Initialize()        {}
func (c *countingOp) BeginPhase()        {}
func (c *countingOp) EndPhase(int)       {}
func (c *countingOp) PrintDeadlock() string {
	return "stuck"
}
func (c *countingOp) Operate() { c.ops++ }
func (c *countingOp) Progress() uint64 { return c.progress }

var _ = Describe("Ticker", func() {
	It("runs every tick at scale 1", func() {
		ticker := clock.NewTicker(1)
		ran := 0
		for i := 0; i < 5; i++ {
			if ticker.Step(func() { ran++ }) {
			}
		}
		Expect(ran).To(Equal(5))
		Expect(ticker.CurrentCycle()).To(Equal(uint64(5)))
	})

	It("skips ticks proportional to scale", func() {
		// scale=2 means CLOCK_SCALE=1: runs every other tick.
		ticker := clock.NewTicker(2)
		ran := 0
		for i := 0; i < 10; i++ {
			ticker.Step(func() { ran++ })
		}
		Expect(ran).To(Equal(5))
	})
})

var _ = Describe("Driver", func() {
	It("operates components in registration order, deterministically", func() {
		driver := clock.NewDriver(0)
		var order []string
		a := &orderOp{name: "a", order: &order}
		b := &orderOp{name: "b", order: &order}
		driver.Register("a", 1, a)
		driver.Register("b", 1, b)

		driver.Tick()
		Expect(order).To(Equal([]string{"a", "b"}))
	})

	It("panics with a deadlock dump when progress stalls", func() {
		driver := clock.NewDriver(2)
		stuck := &countingOp{}
		driver.Register("stuck", 1, stuck)

		Expect(func() {
			for i := 0; i < 10; i++ {
				driver.Tick()
			}
		}).To(Panic())
	})

	It("does not panic when progress keeps advancing", func() {
		driver := clock.NewDriver(2)
		moving := &advancingOp{}
		driver.Register("moving", 1, moving)

		Expect(func() {
			for i := 0; i < 10; i++ {
				driver.Tick()
			}
		}).NotTo(Panic())
	})
})

type orderOp struct {
	name  string
	order *[]string
}

func (o *orderOp) Initialize()         {}
func (o *orderOp) BeginPhase()         {}
func (o *orderOp) EndPhase(int)        {}
func (o *orderOp) PrintDeadlock() string { return o.name }
func (o *orderOp) Operate()            { *o.order = append(*o.order, o.name) }

type advancingOp struct {
	n uint64
}

func (a *advancingOp) Initialize()         {}
func (a *advancingOp) BeginPhase()         {}
func (a *advancingOp) EndPhase(int)        {}
func (a *advancingOp) PrintDeadlock() string { return "advancing" }
func (a *advancingOp) Operate()            { a.n++ }
func (a *advancingOp) Progress() uint64    { return a.n }
