package config

import "time"

// Pace sets how fast the server advances a run in wall-clock time
type Pace string

const (
	PacePaused Pace = "paused" // Steps only on request
	PaceSlow   Pace = "slow"   // Easy to follow in a browser
	PaceNormal Pace = "normal" // Default
	PaceFast   Pace = "fast"   // Batch-like, still streams snapshots
)

// ParsePace converts a string to Pace, defaulting to PaceNormal
func ParsePace(s string) Pace {
	switch s {
	case "paused":
		return PacePaused
	case "slow":
		return PaceSlow
	case "normal":
		return PaceNormal
	case "fast":
		return PaceFast
	default:
		return PaceNormal
	}
}

// RunProfile defines timing settings for the auto-run loop
type RunProfile struct {
	AutoRun      bool          `yaml:"auto_run"`
	TimeStep     float64       `yaml:"time_step"`      // simulated time per step
	TickInterval time.Duration `yaml:"tick_interval"`  // wall-clock time between ticks
	StepsPerTick int           `yaml:"steps_per_tick"` // steps taken on every tick
	MaxSteps     int           `yaml:"max_steps"`      // 0 = unbounded
}

// PaceProfiles maps paces to their default run profiles
var PaceProfiles = map[Pace]RunProfile{
	PacePaused: {
		AutoRun:      false,
		TimeStep:     0.01,
		TickInterval: time.Second,
		StepsPerTick: 1,
	},
	PaceSlow: {
		AutoRun:      true,
		TimeStep:     0.01,
		TickInterval: time.Second,
		StepsPerTick: 1,
	},
	PaceNormal: {
		AutoRun:      true,
		TimeStep:     0.01,
		TickInterval: 200 * time.Millisecond,
		StepsPerTick: 5,
	},
	PaceFast: {
		AutoRun:      true,
		TimeStep:     0.01,
		TickInterval: 50 * time.Millisecond,
		StepsPerTick: 50,
	},
}

// GetProfile returns the run profile for a pace
func (p Pace) GetProfile() RunProfile {
	if profile, ok := PaceProfiles[p]; ok {
		return profile
	}
	return PaceProfiles[PaceNormal]
}
