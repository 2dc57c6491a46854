// Package config holds the top-level simulator configuration: phase
// lengths, pipeline widths and sizes, per-cache parameters, and module-id
// selections, with JSON load/save and Validate, mirroring
// timing/latency/config.go's encoding/json + fmt.Errorf-wrapped-error
// style (the teacher's own configuration package).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/oocsim/packet"
	"github.com/sarchlab/oocsim/predictor"
	"github.com/sarchlab/oocsim/prefetch"
	"github.com/sarchlab/oocsim/replacement"
)

// CacheConfig is the per-cache-instance parameter set named in spec.md §6,
// independent of mem/cache.Config so the top-level config package has no
// import-cycle dependency on mem/cache; cmd/oocsim translates one into the
// other at construction.
type CacheConfig struct {
	Sets                 int           `json:"sets"`
	Ways                 int           `json:"ways"`
	BlockSize            int           `json:"block_size"`
	RQSize               int           `json:"rq_size"`
	WQSize               int           `json:"wq_size"`
	PQSize               int           `json:"pq_size"`
	MSHRSize             int           `json:"mshr_size"`
	HitLatency           uint64        `json:"hit_latency"`
	FillLatency          uint64        `json:"fill_latency"`
	MaxTagCheck          int           `json:"max_tag_check"`
	FillBandwidth        int           `json:"fill_bandwidth"`
	PrefetchActivateMask uint32        `json:"prefetch_activate_mask"`
	Replacement          replacement.ID `json:"replacement"`
	Prefetcher           PrefetcherID  `json:"prefetcher"`
	FreqScale            float64       `json:"freq_scale"`
}

// Validate checks the size/power-of-two constraints spec.md §7 names as
// configuration faults.
func (c CacheConfig) Validate(name string) error {
	if c.Sets <= 0 || c.Sets&(c.Sets-1) != 0 {
		return fmt.Errorf("cache %s: sets must be a power of two, got %d", name, c.Sets)
	}
	if c.Ways <= 0 {
		return fmt.Errorf("cache %s: ways must be positive, got %d", name, c.Ways)
	}
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("cache %s: block_size must be a power of two, got %d", name, c.BlockSize)
	}
	if c.MSHRSize <= 0 {
		return fmt.Errorf("cache %s: mshr_size must be positive, got %d", name, c.MSHRSize)
	}
	if c.FillBandwidth <= 0 {
		return fmt.Errorf("cache %s: fill_bandwidth must be positive, got %d", name, c.FillBandwidth)
	}
	if c.MaxTagCheck <= 0 {
		return fmt.Errorf("cache %s: max_tag_check must be positive, got %d", name, c.MaxTagCheck)
	}
	return nil
}

// PrefetcherID selects a data prefetcher variant for one cache level.
type PrefetcherID int

const (
	NoPrefetcher PrefetcherID = iota
	NextLinePrefetcher
	BertiPrefetcher
)

func (id PrefetcherID) String() string {
	switch id {
	case NextLinePrefetcher:
		return "next-line"
	case BertiPrefetcher:
		return "berti"
	default:
		return "none"
	}
}

// New constructs the prefetch.Prefetcher named by id. blockSize and
// pageSize are only consulted by variants that need them.
func (id PrefetcherID) New(blockSize, pageSize int, fill packet.FillLevel) prefetch.Prefetcher {
	switch id {
	case NextLinePrefetcher:
		return &prefetch.NextLine{BlockSize: blockSize, Fill: fill}
	case BertiPrefetcher:
		return prefetch.NewBerti(blockSize, pageSize, fill)
	default:
		return prefetch.None{}
	}
}

// TLBConfig parametrizes one translation-cache level (spec.md §4.4).
type TLBConfig struct {
	Sets        int    `json:"sets"`
	Ways        int    `json:"ways"`
	PageShift   uint   `json:"page_shift"`
	HitLatency  uint64 `json:"hit_latency"`
	FillLatency uint64 `json:"fill_latency"`
	MaxTagCheck int    `json:"max_tag_check"`
	QueueSize   int    `json:"queue_size"`
}

// Config is the top-level simulator configuration: phase lengths,
// pipeline widths/sizes, cache hierarchy parameters, TLB hierarchy
// parameters, and module-id selections, matching the recognized option
// list in spec.md §6.
type Config struct {
	WarmupInstructions     uint64 `json:"warmup_instructions"`
	SimulationInstructions uint64 `json:"simulation_instructions"`

	FetchWidth    int `json:"fetch_width"`
	DecodeWidth   int `json:"decode_width"`
	DispatchWidth int `json:"dispatch_width"`
	ScheduleWidth int `json:"schedule_width"`
	ExecuteWidth  int `json:"execute_width"`
	LQWidth       int `json:"lq_width"`
	SQWidth       int `json:"sq_width"`
	RetireWidth   int `json:"retire_width"`

	ROBSize            int `json:"rob_size"`
	LQSize             int `json:"lq_size"`
	SQSize             int `json:"sq_size"`
	IFetchBufferSize   int `json:"ifetch_buffer_size"`
	DecodeBufferSize   int `json:"decode_buffer_size"`
	DispatchBufferSize int `json:"dispatch_buffer_size"`

	DIBSets   int `json:"dib_sets"`
	DIBWays   int `json:"dib_ways"`
	DIBWindow int `json:"dib_window"`

	DecodeLatency      uint64 `json:"decode_latency"`
	DispatchLatency    uint64 `json:"dispatch_latency"`
	ScheduleLatency    uint64 `json:"schedule_latency"`
	ExecuteLatency     uint64 `json:"execute_latency"`
	MispredictPenalty  uint64 `json:"mispredict_penalty"`

	BranchPredictor predictor.ID `json:"branch_predictor"`
	BHTSize         uint32       `json:"bht_size"`
	BTBSize         uint32       `json:"btb_size"`

	L1I CacheConfig `json:"l1i"`
	L1D CacheConfig `json:"l1d"`
	L2  CacheConfig `json:"l2"`
	LLC CacheConfig `json:"llc"`

	ITLB   TLBConfig `json:"itlb"`
	DTLB   TLBConfig `json:"dtlb"`
	STLB   TLBConfig `json:"stlb"`
	PTWLevels  int    `json:"ptw_levels"`
	PTWLatency uint64 `json:"ptw_latency"`

	MemoryLatency uint64 `json:"memory_latency"`

	// DeadlockCycle is ChampSim's deadlock_cycle (default 10^6), carried
	// into clock.Driver's deadlock detector period.
	DeadlockCycle uint64 `json:"deadlock_cycle"`
}

// Default returns a Config with the values this module's tests and
// cmd/oocsim's own defaults use, the way latency.DefaultTimingConfig
// seeds the teacher's own config surface.
func Default() *Config {
	return &Config{
		WarmupInstructions:     200_000,
		SimulationInstructions: 1_000_000,

		FetchWidth: 4, DecodeWidth: 4, DispatchWidth: 4, ScheduleWidth: 4,
		ExecuteWidth: 4, LQWidth: 2, SQWidth: 2, RetireWidth: 4,

		ROBSize: 256, LQSize: 64, SQSize: 64,
		IFetchBufferSize: 64, DecodeBufferSize: 32, DispatchBufferSize: 32,

		DIBSets: 32, DIBWays: 8, DIBWindow: 6,

		DecodeLatency: 1, DispatchLatency: 1, ScheduleLatency: 1, ExecuteLatency: 1,
		MispredictPenalty: 12,

		BranchPredictor: predictor.Bimodal, BHTSize: 1024, BTBSize: 256,

		L1I: CacheConfig{Sets: 64, Ways: 8, BlockSize: 64, RQSize: 16, WQSize: 16, PQSize: 8, MSHRSize: 8, HitLatency: 4, FillLatency: 1, MaxTagCheck: 4, FillBandwidth: 2, FreqScale: 1},
		L1D: CacheConfig{Sets: 64, Ways: 12, BlockSize: 64, RQSize: 32, WQSize: 32, PQSize: 16, MSHRSize: 16, HitLatency: 5, FillLatency: 1, MaxTagCheck: 8, FillBandwidth: 2, FreqScale: 1, PrefetchActivateMask: 1<<0 | 1<<3, Prefetcher: NextLinePrefetcher},
		L2:  CacheConfig{Sets: 1024, Ways: 8, BlockSize: 64, RQSize: 32, WQSize: 32, PQSize: 32, MSHRSize: 32, HitLatency: 10, FillLatency: 1, MaxTagCheck: 8, FillBandwidth: 2, FreqScale: 1},
		LLC: CacheConfig{Sets: 2048, Ways: 16, BlockSize: 64, RQSize: 64, WQSize: 64, PQSize: 64, MSHRSize: 64, HitLatency: 30, FillLatency: 2, MaxTagCheck: 16, FillBandwidth: 4, FreqScale: 1, PrefetchActivateMask: 1<<0 | 1<<1, Prefetcher: BertiPrefetcher, Replacement: replacement.Bandit},

		ITLB: TLBConfig{Sets: 16, Ways: 4, PageShift: 12, HitLatency: 1, FillLatency: 1, MaxTagCheck: 2, QueueSize: 8},
		DTLB: TLBConfig{Sets: 16, Ways: 4, PageShift: 12, HitLatency: 1, FillLatency: 1, MaxTagCheck: 2, QueueSize: 8},
		STLB: TLBConfig{Sets: 128, Ways: 8, PageShift: 12, HitLatency: 8, FillLatency: 1, MaxTagCheck: 4, QueueSize: 16},
		PTWLevels: 4, PTWLatency: 20,

		MemoryLatency: 150,
		DeadlockCycle: 1_000_000,
	}
}

// Load reads a Config from a JSON file, starting from Default() so an
// incomplete file still yields valid zero-value-free defaults, the same
// forgiving pattern timing/latency/config.go's LoadConfig uses.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes c to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks every size/width/module-id constraint spec.md §7 names
// as a configuration fault, failing fast at construction rather than
// mid-simulation.
func (c *Config) Validate() error {
	if c.ROBSize <= 0 {
		return fmt.Errorf("rob_size must be positive, got %d", c.ROBSize)
	}
	if c.LQSize <= 0 || c.SQSize <= 0 {
		return fmt.Errorf("lq_size and sq_size must be positive")
	}
	if c.FetchWidth <= 0 || c.DecodeWidth <= 0 || c.DispatchWidth <= 0 ||
		c.ScheduleWidth <= 0 || c.ExecuteWidth <= 0 || c.RetireWidth <= 0 {
		return fmt.Errorf("pipeline widths must all be positive")
	}
	if c.SimulationInstructions == 0 {
		return fmt.Errorf("simulation_instructions must be positive")
	}
	if c.DIBSets > 0 && c.DIBSets&(c.DIBSets-1) != 0 {
		return fmt.Errorf("dib_sets must be a power of two, got %d", c.DIBSets)
	}
	if c.BranchPredictor > predictor.AlwaysTaken {
		return fmt.Errorf("branch_predictor: unknown module id %d", c.BranchPredictor)
	}
	for name, cc := range map[string]CacheConfig{"l1i": c.L1I, "l1d": c.L1D, "l2": c.L2, "llc": c.LLC} {
		if err := cc.Validate(name); err != nil {
			return err
		}
		if cc.Replacement < replacement.LRU || cc.Replacement > replacement.Bandit {
			return fmt.Errorf("cache %s: unknown replacement module id %d", name, cc.Replacement)
		}
		if cc.Prefetcher < NoPrefetcher || cc.Prefetcher > BertiPrefetcher {
			return fmt.Errorf("cache %s: unknown prefetcher module id %d", name, cc.Prefetcher)
		}
	}
	if c.PTWLevels <= 0 {
		return fmt.Errorf("ptw_levels must be positive, got %d", c.PTWLevels)
	}
	return nil
}
