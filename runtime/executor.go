package runtime

import "time"

// Limits bound a single executor run. The two execution paths share one
// engine and differ only in these knobs.
type Limits struct {
	// MaxConcurrent is the worker pool size for parallel downloads.
	MaxConcurrent int
	// CheckpointEvery commits the manifest after this many successful
	// transfers, bounding re-download work after a crash.
	CheckpointEvery int
	// MaxRunTime stops dispatching new artifacts once elapsed. Zero means
	// unbounded. In-flight downloads drain and a final checkpoint commits
	// before the run reports incomplete.
	MaxRunTime time.Duration
}

// LightweightLimits sizes the engine for small deltas on a constrained,
// short-lived worker: modest parallelism and a hard deadline safely under
// the platform's execution cap, with frequent checkpoints so a timeout
// loses little work.
func LightweightLimits() Limits {
	return Limits{
		MaxConcurrent:   4,
		CheckpointEvery: 10,
		MaxRunTime:      14 * time.Minute,
	}
}

// HeavyDutyLimits sizes the engine for bulk transfers on a long-running
// worker: wider parallelism, sparser checkpoints, no deadline.
func HeavyDutyLimits() Limits {
	return Limits{
		MaxConcurrent:   8,
		CheckpointEvery: 25,
	}
}

// normalize fills zero fields with safe minimums.
func (l Limits) normalize() Limits {
	if l.MaxConcurrent < 1 {
		l.MaxConcurrent = 1
	}
	if l.CheckpointEvery < 1 {
		l.CheckpointEvery = 1
	}
	return l
}

// NewLightweightExecutor creates an engine with lightweight-path limits.
// Explicitly set fields in cfg.Limits override the defaults.
func NewLightweightExecutor(cfg EngineConfig) *Engine {
	cfg.Limits = overlay(LightweightLimits(), cfg.Limits)
	return NewEngine(cfg)
}

// NewHeavyDutyExecutor creates an engine with heavy-duty-path limits.
// Explicitly set fields in cfg.Limits override the defaults.
func NewHeavyDutyExecutor(cfg EngineConfig) *Engine {
	cfg.Limits = overlay(HeavyDutyLimits(), cfg.Limits)
	return NewEngine(cfg)
}

// overlay applies non-zero override fields on top of base.
func overlay(base, override Limits) Limits {
	if override.MaxConcurrent > 0 {
		base.MaxConcurrent = override.MaxConcurrent
	}
	if override.CheckpointEvery > 0 {
		base.CheckpointEvery = override.CheckpointEvery
	}
	if override.MaxRunTime > 0 {
		base.MaxRunTime = override.MaxRunTime
	}
	return base
}
