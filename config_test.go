package gbdt

import "testing"

func TestDefaultBoostConfigValidates(t *testing.T) {
	if err := DefaultBoostConfig().validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestBoostConfigValidateRejectsEachViolation(t *testing.T) {
	base := DefaultBoostConfig()
	cases := []struct {
		name    string
		mutate  func(*BoostConfig)
	}{
		{"BoostType", func(c *BoostConfig) { c.BoostType = "rf" }},
		{"MaxIter", func(c *BoostConfig) { c.MaxIter = -1 }},
		{"MaxDepth too low", func(c *BoostConfig) { c.MaxDepth = 0 }},
		{"MaxDepth too high", func(c *BoostConfig) { c.MaxDepth = 31 }},
		{"MaxLeaves", func(c *BoostConfig) { c.MaxLeaves = 1 }},
		{"MaxBins", func(c *BoostConfig) { c.MaxBins = 3 }},
		{"StepSize", func(c *BoostConfig) { c.StepSize = 0 }},
		{"RegAlpha", func(c *BoostConfig) { c.RegAlpha = -1 }},
		{"RegLambda", func(c *BoostConfig) { c.RegLambda = -1 }},
		{"MinGain", func(c *BoostConfig) { c.MinGain = -1 }},
		{"MinNodeHess", func(c *BoostConfig) { c.MinNodeHess = -1 }},
		{"SubSampleRateByTree zero", func(c *BoostConfig) { c.SubSampleRateByTree = 0 }},
		{"SubSampleRateByTree over one", func(c *BoostConfig) { c.SubSampleRateByTree = 1.5 }},
		{"SubSampleRateByNode", func(c *BoostConfig) { c.SubSampleRateByNode = 0 }},
		{"ColSampleRateByTree", func(c *BoostConfig) { c.ColSampleRateByTree = 0 }},
		{"ColSampleRateByNode", func(c *BoostConfig) { c.ColSampleRateByNode = 0 }},
		{"SubSampleType", func(c *BoostConfig) { c.SubSampleType = "sketch" }},
		{"TopRate zero", func(c *BoostConfig) { c.TopRate = 0 }},
		{"TopRate one", func(c *BoostConfig) { c.TopRate = 1 }},
		{"OtherRate zero", func(c *BoostConfig) { c.OtherRate = 0 }},
		{"OtherRate one", func(c *BoostConfig) { c.OtherRate = 1 }},
		{"GossRatesOverlap", func(c *BoostConfig) { c.TopRate, c.OtherRate = 0.6, 0.6 }},
		{"HistogramComputationType", func(c *BoostConfig) { c.HistogramComputationType = "exact" }},
		{"DropRate", func(c *BoostConfig) { c.DropRate = 2 }},
		{"DropSkip", func(c *BoostConfig) { c.DropSkip = -0.1 }},
		{"MinDrop", func(c *BoostConfig) { c.MinDrop = -1 }},
		{"MaxDrop", func(c *BoostConfig) { c.MaxDrop = -1 }},
		{"BlockSize", func(c *BoostConfig) { c.BlockSize = 0 }},
		{"ForestSize", func(c *BoostConfig) { c.ForestSize = 0 }},
		{"FloatType", func(c *BoostConfig) { c.FloatType = "half" }},
		{"DiscretizationType", func(c *BoostConfig) { c.DiscretizationType = "quantile" }},
		{"CheckpointInterval", func(c *BoostConfig) { c.CheckpointInterval = 0 }},
		{"StorageLevel1", func(c *BoostConfig) { c.StorageLevel1 = "NONE" }},
		{"StorageLevel2", func(c *BoostConfig) { c.StorageLevel2 = "NONE" }},
		{"StorageLevel3", func(c *BoostConfig) { c.StorageLevel3 = "NONE" }},
		{"EarlyStopIters", func(c *BoostConfig) { c.EarlyStopIters = 0 }},
	}

	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if err := cfg.validate(); err == nil {
			t.Errorf("%s: expected validate() to reject, got nil", tc.name)
		}
	}
}

func TestBoostConfigValidateAllowsSentinelMinusOne(t *testing.T) {
	cfg := DefaultBoostConfig()
	cfg.Seed = -1
	cfg.CheckpointInterval = -1
	cfg.EarlyStopIters = -1
	if err := cfg.validate(); err != nil {
		t.Fatalf("expected -1 sentinels to validate, got %v", err)
	}
}

func TestStorageLevelOf(t *testing.T) {
	cases := map[string]int{
		"DISK_ONLY":    2,
		"MEM+DISK_SER": 1,
		"MEM+DISK":     0,
		"anything-else": 0,
	}
	for name, want := range cases {
		if got := storageLevelOf(name); got != want {
			t.Errorf("storageLevelOf(%q) = %d, want %d", name, got, want)
		}
	}
}
