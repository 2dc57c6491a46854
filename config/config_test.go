package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocsim/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Default", func() {
	It("validates cleanly", func() {
		Expect(config.Default().Validate()).ToNot(HaveOccurred())
	})
})

var _ = Describe("Validate", func() {
	It("rejects a non-power-of-two cache set count", func() {
		cfg := config.Default()
		cfg.L1D.Sets = 3
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects a zero ROB size", func() {
		cfg := config.Default()
		cfg.ROBSize = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects zero simulation_instructions", func() {
		cfg := config.Default()
		cfg.SimulationInstructions = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("Load/Save round trip", func() {
	It("preserves an overridden field", func() {
		dir, err := os.MkdirTemp("", "oocsim-config-test")
		Expect(err).ToNot(HaveOccurred())
		path := filepath.Join(dir, "cfg.json")

		cfg := config.Default()
		cfg.WarmupInstructions = 12345
		Expect(cfg.Save(path)).ToNot(HaveOccurred())

		loaded, err := config.Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded.WarmupInstructions).To(Equal(uint64(12345)))
	})
})
