package bandit_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/bandit"
)

func TestBandit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bandit Suite")
}

var _ = Describe("UCB", func() {
	It("tries every arm once before exploiting", func() {
		u := bandit.New(3, bandit.DefaultExploreCoef, bandit.DefaultDecay)
		seen := map[int]bool{}
		for i := 0; i < 3; i++ {
			arm := u.Select()
			seen[arm] = true
			u.Update(arm, 0)
		}
		Expect(seen).To(HaveLen(3))
	})

	It("converges on the consistently higher-reward arm", func() {
		u := bandit.New(2, bandit.DefaultExploreCoef, bandit.DefaultDecay)
		u.Select()
		u.Update(0, 0)
		u.Select()
		u.Update(1, 0)

		for i := 0; i < 200; i++ {
			arm := u.Select()
			if arm == 0 {
				u.Update(0, 0.1)
			} else {
				u.Update(1, 1.0)
			}
		}

		Expect(u.Select()).To(Equal(1))
	})

	It("decays older pull counts so Pulls reflects recency", func() {
		u := bandit.New(2, 0.04, 0.5)
		u.Update(0, 1)
		before := u.Pulls(0)
		u.Update(1, 1)
		Expect(u.Pulls(0)).To(BeNumerically("<", before))
	})
})
