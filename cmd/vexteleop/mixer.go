package main

import "math"

// ============================================================================
// Drive Mixer
// ============================================================================
// Converts raw stick readings into left/right motor power once per drive cycle.
// Everything in this file is pure: no I/O, no hidden state, no allocation.
// ============================================================================

// CurveShape selects the response curve applied outside the deadzone.
type CurveShape string

const (
	// CurveShapePower scales by n^(1+exponent).
	CurveShapePower CurveShape = "power"
	// CurveShapeQuadratic scales by n^2 and ignores the exponent.
	CurveShapeQuadratic CurveShape = "quadratic"
)

// CurveScaling selects what the curve is applied to.
type CurveScaling string

const (
	// CurveScalingRadial applies one scale factor, computed from the stick's
	// distance from center, to both axes. Stick direction is preserved.
	CurveScalingRadial CurveScaling = "radial"
	// CurveScalingPerAxis applies the curve to each axis independently.
	CurveScalingPerAxis CurveScaling = "per_axis"
)

// StepMode selects how the exponent moves on curve_up/curve_down.
type StepMode string

const (
	StepModeAdditive       StepMode = "additive"
	StepModeMultiplicative StepMode = "multiplicative"
)

// JoystickSample is one reading of a stick, in raw input units
// ([-InputScale, InputScale]). Positive X is right, positive Y is forward.
type JoystickSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ResponseCurveConfig shapes stick input into motor power.
type ResponseCurveConfig struct {
	Deadzone   float64 // normalized magnitude in [0, 1) below which output is zero
	Exponent   float64 // power-curve shape; 0 is linear
	MaxOutput  float64 // output ceiling (percent)
	InputScale float64 // raw value of a full stick throw

	Shape   CurveShape
	Scaling CurveScaling

	// Runtime adjustment of Exponent
	StepMode     StepMode
	ExponentStep float64 // additive delta, or multiplier for StepModeMultiplicative
	MinExponent  float64
	MaxExponent  float64
}

// DefaultResponseCurve returns the curve used when nothing is configured.
func DefaultResponseCurve() ResponseCurveConfig {
	return ResponseCurveConfig{
		Deadzone:     defaultDeadzone,
		Exponent:     defaultExponent,
		MaxOutput:    defaultMaxOutput,
		InputScale:   defaultInputScale,
		Shape:        CurveShapePower,
		Scaling:      CurveScalingRadial,
		StepMode:     StepModeAdditive,
		ExponentStep: defaultExponentStep,
		MinExponent:  defaultMinExponent,
		MaxExponent:  defaultMaxExponent,
	}
}

// DriveCommand is the power sent to each side of the drivetrain (percent).
type DriveCommand struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// IsZero reports whether both sides are stopped.
func (d DriveCommand) IsZero() bool {
	return d.Left == 0 && d.Right == 0
}

// differsFrom reports whether d and o differ by more than eps on either side.
func (d DriveCommand) differsFrom(o DriveCommand, eps float64) bool {
	return math.Abs(d.Left-o.Left) > eps || math.Abs(d.Right-o.Right) > eps
}

func (c ResponseCurveConfig) inputScale() float64 {
	if c.InputScale > 0 && !math.IsInf(c.InputScale, 0) {
		return c.InputScale
	}
	return defaultInputScale
}

func (c ResponseCurveConfig) maxOutput() float64 {
	if c.MaxOutput > 0 && !math.IsInf(c.MaxOutput, 0) {
		return c.MaxOutput
	}
	return defaultMaxOutput
}

// scale maps a normalized magnitude (0 to ~1.41) to an attenuation factor in [0, 1].
func (c ResponseCurveConfig) scale(n float64) float64 {
	dz := c.Deadzone
	if dz < 0 || math.IsNaN(dz) {
		dz = 0
	}
	if dz >= 1 {
		return 0
	}
	// NaN fails this comparison and lands in the deadzone.
	if !(n > dz) {
		return 0
	}

	normalized := math.Min((n-dz)/(1-dz), 1)

	var out float64
	switch c.Shape {
	case CurveShapeQuadratic:
		out = normalized * normalized
	default:
		out = normalized * math.Pow(normalized, c.Exponent)
	}

	if math.IsNaN(out) || out < 0 {
		return 0
	}
	if out > 1 {
		return 1
	}
	return out
}

// axisValid reports whether a raw axis reading is finite and inside the input range.
func axisValid(v, scale float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= scale
}

// ComputeDriveCommand maps one arcade stick sample to left/right power.
//
//  1. magnitude of the stick vector, normalized by InputScale
//  2. deadzone + response curve on that magnitude (or per axis)
//  3. reversal negates forward/back only
//  4. rescale both axes by the curve factor
//  5. arcade mix: left = y + x, right = y - x
//  6. if either side exceeds full power, divide both by the larger one
//  7. scale to MaxOutput
//
// A sample with a NaN, infinite or out-of-range axis produces a zero command.
func ComputeDriveCommand(s JoystickSample, cfg ResponseCurveConfig, reversed bool) DriveCommand {
	scale := cfg.inputScale()
	if !axisValid(s.X, scale) || !axisValid(s.Y, scale) {
		return DriveCommand{}
	}

	px, py := s.X, s.Y
	if reversed {
		py = -py
	}

	var x, y float64
	switch cfg.Scaling {
	case CurveScalingPerAxis:
		x = math.Copysign(cfg.scale(math.Abs(px)/scale), px)
		y = math.Copysign(cfg.scale(math.Abs(py)/scale), py)
	default:
		d := math.Hypot(px, py) / scale
		k := cfg.scale(d)
		if k == 0 {
			return DriveCommand{}
		}
		x = px * k / scale
		y = py * k / scale
	}

	left, right := rebalance(y+x, y-x)
	out := cfg.maxOutput()
	return DriveCommand{Left: left * out, Right: right * out}
}

// ComputeTankCommand maps two independent stick Y readings (left stick drives the
// left side, right stick the right side) to left/right power. Each side gets the
// per-axis curve. Reversal makes the back of the robot the front, so the sides
// swap as well as change sign.
func ComputeTankCommand(leftY, rightY float64, cfg ResponseCurveConfig, reversed bool) DriveCommand {
	scale := cfg.inputScale()
	if !axisValid(leftY, scale) || !axisValid(rightY, scale) {
		return DriveCommand{}
	}

	l := math.Copysign(cfg.scale(math.Abs(leftY)/scale), leftY)
	r := math.Copysign(cfg.scale(math.Abs(rightY)/scale), rightY)
	if reversed {
		l, r = -r, -l
	}

	out := cfg.maxOutput()
	return DriveCommand{Left: l * out, Right: r * out}
}

// rebalance keeps the left/right ratio while bringing both into [-1, 1].
func rebalance(left, right float64) (float64, float64) {
	m := math.Max(math.Abs(left), math.Abs(right))
	if m > 1 {
		left /= m
		right /= m
	}
	return left, right
}

// Adjust returns the config with Exponent moved one step in direction
// (+1 sharper, -1 softer), clamped to [MinExponent, MaxExponent].
func (c ResponseCurveConfig) Adjust(direction int) ResponseCurveConfig {
	if direction == 0 {
		return c
	}

	switch c.StepMode {
	case StepModeMultiplicative:
		mult := c.ExponentStep
		if mult <= 0 {
			return c
		}
		// Step 1+Exponent, which stays positive while Exponent > -1, so a
		// negative or zero exponent still moves the way direction says.
		e1 := 1 + c.Exponent
		if direction > 0 {
			e1 *= mult
		} else {
			e1 /= mult
		}
		c.Exponent = e1 - 1
	default:
		if direction > 0 {
			c.Exponent += c.ExponentStep
		} else {
			c.Exponent -= c.ExponentStep
		}
	}

	if c.MinExponent < c.MaxExponent {
		c.Exponent = math.Max(c.MinExponent, math.Min(c.MaxExponent, c.Exponent))
	}
	return c
}
