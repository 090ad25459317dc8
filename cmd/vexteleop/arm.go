package main

import "math"

// ArmCommand is the power sent to the two arm joints (percent).
type ArmCommand struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

func (a ArmCommand) IsZero() bool {
	return a.Upper == 0 && a.Lower == 0
}

func (a ArmCommand) differsFrom(o ArmCommand, eps float64) bool {
	return math.Abs(a.Upper-o.Upper) > eps || math.Abs(a.Lower-o.Lower) > eps
}

// ComputeArmCommand maps the arm stick to joint power. Each axis goes through
// the response curve on its own: Y drives the upper joint, X the lower one.
// Reversal does not apply; the arm has no front.
func ComputeArmCommand(s JoystickSample, cfg ResponseCurveConfig) ArmCommand {
	scale := cfg.inputScale()
	if !axisValid(s.X, scale) || !axisValid(s.Y, scale) {
		return ArmCommand{}
	}
	out := cfg.maxOutput()
	return ArmCommand{
		Upper: math.Copysign(cfg.scale(math.Abs(s.Y)/scale), s.Y) * out,
		Lower: math.Copysign(cfg.scale(math.Abs(s.X)/scale), s.X) * out,
	}
}

// armSample returns the stick the drive mode leaves free. Tank mode uses both
// sticks, so there is none. GTA drives from buttons and gives the arm the
// left stick.
func (c ReducerConfig) armSample(st StickState) (JoystickSample, bool) {
	switch c.Mode {
	case DriveModeTank:
		return JoystickSample{}, false
	case DriveModeGTA:
		return JoystickSample{X: st.LeftX, Y: st.LeftY}, true
	}
	if c.ArcadeStick == ArcadeStickLeft {
		return JoystickSample{X: st.RightX, Y: st.RightY}, true
	}
	return JoystickSample{X: st.LeftX, Y: st.LeftY}, true
}
