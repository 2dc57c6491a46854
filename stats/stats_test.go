package stats_test

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/stats"
)

func TestStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stats Suite")
}

var _ = Describe("Phase", func() {
	It("computes IPC from cycles and retired instructions", func() {
		p := stats.Phase{Cycles: 1000, Retired: 1500}
		Expect(p.IPC()).To(BeNumerically("~", 1.5, 0.0001))
	})

	It("reports zero IPC for zero elapsed cycles", func() {
		p := stats.Phase{Cycles: 0, Retired: 0}
		Expect(p.IPC()).To(Equal(0.0))
	})

	It("renders a report containing every cache's name", func() {
		p := stats.Phase{
			Name: "simulation", Cycles: 100, Retired: 80,
			Caches: []stats.CacheCounters{
				{Name: "L1D", Loads: 50, Hits: 40, Misses: 10},
				{Name: "LLC", Loads: 10, Hits: 2, Misses: 8},
			},
		}

		var buf bytes.Buffer
		Expect(p.Report(&buf)).ToNot(HaveOccurred())
		out := buf.String()
		Expect(out).To(ContainSubstring("L1D"))
		Expect(out).To(ContainSubstring("LLC"))
		Expect(strings.Contains(out, "simulation")).To(BeTrue())
	})
})

var _ = Describe("CacheCounters", func() {
	It("computes miss rate as a percentage", func() {
		c := stats.CacheCounters{Loads: 200, Misses: 50}
		Expect(c.MissRate()).To(BeNumerically("~", 25.0, 0.0001))
	})

	It("reports zero miss rate with no loads", func() {
		c := stats.CacheCounters{}
		Expect(c.MissRate()).To(Equal(0.0))
	})
})
