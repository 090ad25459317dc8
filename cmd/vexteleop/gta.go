package main

import "math"

// GTA drive is the alternate "hold to accelerate" mode: power ramps while the
// d-pad is held and decays when released. Unlike ComputeDriveCommand it
// integrates over ticks, so it carries state between cycles (GTAState).
//
// Buttons (level-sampled every tick):
//   - up / down: both sides accelerate forward / backward
//   - left / right: the left / right side slows (turns towards that side)
//   - brake: zero power immediately
//   - cruise: freeze current power (no acceleration, no decay)

// GTAConfig contains all tunable parameters for the GTA controller.
type GTAConfig struct {
	AccelPctPerS float64 // straight-line ramp rate (percent per second)
	TurnPctPerS  float64 // per-side ramp rate while turning
	DecayTau     float64 // exponential decay time constant when released (s); <=0 stops immediately
	MaxDt        float64 // max dt integrated per tick (s); 0 disables clamping
	MaxOutput    float64 // power ceiling (percent)
}

// DefaultGTAConfig returns the GTA controller defaults.
func DefaultGTAConfig() GTAConfig {
	return GTAConfig{
		AccelPctPerS: defaultGTAAccelPctPerS,
		TurnPctPerS:  defaultGTATurnPctPerS,
		DecayTau:     defaultGTADecayTau,
		MaxDt:        defaultGTAMaxDt,
		MaxOutput:    defaultMaxOutput,
	}
}

// GTAButtons is the level-sampled button set for one tick.
type GTAButtons struct {
	Up     bool `json:"up"`
	Down   bool `json:"down"`
	Left   bool `json:"left"`
	Right  bool `json:"right"`
	Brake  bool `json:"brake"`
	Cruise bool `json:"cruise"`
}

func (b GTAButtons) any() bool {
	return b.Up || b.Down || b.Left || b.Right || b.Brake || b.Cruise
}

// GTAState is the reducer-owned power integrator for GTA mode.
type GTAState struct {
	LeftPct  float64
	RightPct float64
}

// Command returns the drive command for the current integrator state.
func (s GTAState) Command() DriveCommand {
	return DriveCommand{Left: s.LeftPct, Right: s.RightPct}
}

// StepGTAController advances the GTA integrator by dt seconds. Pure function.
func StepGTAController(s GTAState, held GTAButtons, dt float64, cfg GTAConfig) GTAState {
	if held.Brake {
		return GTAState{}
	}
	if held.Cruise {
		return s
	}

	if dt <= 0 || math.IsNaN(dt) {
		return s
	}
	if cfg.MaxDt > 0 && dt > cfg.MaxDt {
		dt = cfg.MaxDt
	}

	maxOut := cfg.MaxOutput
	if maxOut <= 0 {
		maxOut = defaultMaxOutput
	}

	dir := 0.0
	if held.Up && !held.Down {
		dir = 1
	} else if held.Down && !held.Up {
		dir = -1
	}

	if dir == 0 && !held.Left && !held.Right {
		// Nothing held: tick-rate-independent decay towards a stop.
		if cfg.DecayTau <= 0 {
			return GTAState{}
		}
		decay := math.Exp(-dt / cfg.DecayTau)
		s.LeftPct *= decay
		s.RightPct *= decay
		return s
	}

	if dir != 0 {
		// Reverse direction immediately instead of braking through zero.
		if s.LeftPct*dir < 0 {
			s.LeftPct = 0
		}
		if s.RightPct*dir < 0 {
			s.RightPct = 0
		}
		s.LeftPct += dir * cfg.AccelPctPerS * dt
		s.RightPct += dir * cfg.AccelPctPerS * dt
	}

	// Turning slows one side relative to the direction of travel.
	travel := 1.0
	if dir < 0 {
		travel = -1
	}
	if held.Left {
		s.LeftPct -= travel * cfg.TurnPctPerS * dt
	}
	if held.Right {
		s.RightPct -= travel * cfg.TurnPctPerS * dt
	}

	// Level out after a turn: straight driving brings both sides to their average.
	if dir != 0 && !held.Left && !held.Right && s.LeftPct != s.RightPct {
		avg := (s.LeftPct + s.RightPct) / 2
		s.LeftPct = avg
		s.RightPct = avg
	}

	s.LeftPct = clampFloat(s.LeftPct, -maxOut, maxOut)
	s.RightPct = clampFloat(s.RightPct, -maxOut, maxOut)
	return s
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
