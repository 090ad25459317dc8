package main

import (
	"fmt"
	"strings"
	"time"
)

// Feedback display lines. The wording mirrors a small controller screen:
//
//	J  <y> <x> <exponent>        joystick (arcade)
//	T  <left y> <right y> <exp>  joystick (tank)
//	G  <held buttons>            joystick (gta)
//	M: <F|R> <C|B|H> <l>% <r>%   motors
//	S: <OFF|FWD|REV> rpm <rpm>   spinner
//	<label> [RUN]                selected autonomous routine

func joystickLine(s *DaemonState, cfg ReducerConfig) string {
	switch cfg.Mode {
	case DriveModeTank:
		return fmt.Sprintf("T %4.0f %4.0f %3.2f", s.Sticks.LeftY, s.Sticks.RightY, s.Curve.Exponent)
	case DriveModeGTA:
		return "G " + gtaHeldString(s.GTAHeld)
	default:
		sample := cfg.arcadeSample(s.Sticks)
		return fmt.Sprintf("J %4.0f %4.0f %3.2f", sample.Y, sample.X, s.Curve.Exponent)
	}
}

func gtaHeldString(b GTAButtons) string {
	if !b.any() {
		return "-"
	}
	var parts []string
	for _, p := range []struct {
		held bool
		name string
	}{
		{b.Up, "U"}, {b.Down, "D"}, {b.Left, "L"}, {b.Right, "R"}, {b.Brake, "BRK"}, {b.Cruise, "CRZ"},
	} {
		if p.held {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, " ")
}

func motorLine(s *DaemonState) string {
	dir := byte('F')
	if s.Toggles.Reversed {
		dir = 'R'
	}
	return fmt.Sprintf("M: %c %c %3.0f%% %3.0f%%", dir, s.Toggles.BrakeMode.Letter(), s.Drive.Last.Left, s.Drive.Last.Right)
}

func spinnerLine(s *DaemonState) string {
	return fmt.Sprintf("S: %s rpm %5.0f", s.Toggles.Spinner.Short(), s.Toggles.SpinnerRPM)
}

func autonLine(s *DaemonState, cfg ReducerConfig) string {
	r, ok := cfg.routineAt(s.Toggles.AutonRoutine)
	if !ok {
		return ""
	}
	label := r.Label
	if label == "" {
		label = r.Name
	}
	if s.Auton.Running {
		return label + " RUN"
	}
	return label
}

// refreshDisplay recomputes every display line and returns broadcasts for the
// lines whose text changed. The joystick and motor lines are blank while the
// display is disabled. The spinner and autonomous lines always show.
func refreshDisplay(s *DaemonState, cfg ReducerConfig, at time.Time) []StateBroadcast {
	if s.Display.Lines == nil {
		s.Display.Lines = make(map[DisplayLine]string)
	}

	want := [...]struct {
		line DisplayLine
		text string
	}{
		{DisplayLineJoystick, ""},
		{DisplayLineMotors, ""},
		{DisplayLineSpinner, spinnerLine(s)},
		{DisplayLineAuton, autonLine(s, cfg)},
	}
	if s.Toggles.DisplayEnabled {
		want[0].text = joystickLine(s, cfg)
		want[1].text = motorLine(s)
	}

	var out []StateBroadcast
	for _, w := range want {
		prev, known := s.Display.Lines[w.line]
		if known && prev == w.text {
			continue
		}
		// An unknown line that is blank has nothing to clear.
		if !known && w.text == "" {
			s.Display.Lines[w.line] = ""
			continue
		}
		s.Display.Lines[w.line] = w.text
		out = append(out, BroadcastDisplayLine{Line: w.line, Text: w.text, At: at})
	}
	return out
}
