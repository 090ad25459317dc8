package main

import (
	"encoding/json"
	"fmt"
)

// Action is operator intent from the gamepad, IPC or teleop-ctl. Every
// Action is also an Event; the daemon loop wraps it in TimedEvent.
type Action interface {
	eventMarker()
}

// AxisName identifies one stick axis.
type AxisName string

const (
	AxisLeftX  AxisName = "left_x"
	AxisLeftY  AxisName = "left_y"
	AxisRightX AxisName = "right_x"
	AxisRightY AxisName = "right_y"
)

// AxisMoved carries a new reading for one axis, already normalized to
// [-InputScale, InputScale] with positive Y forward.
type AxisMoved struct {
	Axis  AxisName `json:"axis"`
	Value float64  `json:"value"`
}

func (AxisMoved) eventMarker() {}

// SticksCentered returns every axis to zero (device lost, operator let go).
type SticksCentered struct{}

func (SticksCentered) eventMarker() {}

// EmergencyStop centers the sticks, stops the drive with brake and turns the spinner off.
type EmergencyStop struct{}

func (EmergencyStop) eventMarker() {}

// ToggleReversed swaps the front and back of the robot.
type ToggleReversed struct{}

func (ToggleReversed) eventMarker() {}

// CycleBrakeMode steps coast -> brake -> hold -> coast.
type CycleBrakeMode struct{}

func (CycleBrakeMode) eventMarker() {}

// CycleSpinner steps the spinner off -> forward -> off -> reverse -> off.
type CycleSpinner struct{}

func (CycleSpinner) eventMarker() {}

// WeaponOn latches the spinner forward at the current speed.
type WeaponOn struct{}

func (WeaponOn) eventMarker() {}

// WeaponOff latches the spinner off.
type WeaponOff struct{}

func (WeaponOff) eventMarker() {}

// SpinnerRPMStep speeds up (+1) or slows down (-1) the spinner by one multiplier step.
type SpinnerRPMStep struct {
	Direction int `json:"direction"`
}

func (SpinnerRPMStep) eventMarker() {}

// CurveStep sharpens (+1) or softens (-1) the joystick response curve.
type CurveStep struct {
	Direction int `json:"direction"`
}

func (CurveStep) eventMarker() {}

// ToggleDisplay turns the feedback display lines on or off.
type ToggleDisplay struct{}

func (ToggleDisplay) eventMarker() {}

// CycleAutonRoutine selects the next autonomous routine.
type CycleAutonRoutine struct{}

func (CycleAutonRoutine) eventMarker() {}

// RunAutonomous runs an autonomous routine. Empty Routine means the selected one.
type RunAutonomous struct {
	Routine string `json:"routine,omitempty"`
}

func (RunAutonomous) eventMarker() {}

// GTAButtonChanged reports a level change of one GTA drive button.
type GTAButtonChanged struct {
	Button GTAButton `json:"button"`
	Held   bool      `json:"held"`
}

func (GTAButtonChanged) eventMarker() {}

// GTAButton names one of the level-sampled GTA buttons.
type GTAButton string

const (
	GTAButtonUp     GTAButton = "up"
	GTAButtonDown   GTAButton = "down"
	GTAButtonLeft   GTAButton = "left"
	GTAButtonRight  GTAButton = "right"
	GTAButtonBrake  GTAButton = "brake"
	GTAButtonCruise GTAButton = "cruise"
)

// Wire format: {"type": "<name>", "data": {...}}. data is omitted for actions
// without fields.

// EventEnvelope is the JSON form of an Action.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type actionDecoder func(data json.RawMessage) (Event, error)

var actionDecoders = map[string]actionDecoder{
	"axis_moved":          withPayload(validAxis),
	"sticks_centered":     noPayload(SticksCentered{}),
	"emergency_stop":      noPayload(EmergencyStop{}),
	"toggle_reversed":     noPayload(ToggleReversed{}),
	"cycle_brake_mode":    noPayload(CycleBrakeMode{}),
	"cycle_spinner":       noPayload(CycleSpinner{}),
	"weapon_on":           noPayload(WeaponOn{}),
	"weapon_off":          noPayload(WeaponOff{}),
	"spinner_rpm_step":    withPayload[SpinnerRPMStep](nil),
	"curve_step":          withPayload[CurveStep](nil),
	"toggle_display":      noPayload(ToggleDisplay{}),
	"cycle_auton_routine": noPayload(CycleAutonRoutine{}),
	"run_autonomous":      optionalPayload[RunAutonomous](),
	"gta_button_changed":  withPayload[GTAButtonChanged](nil),
}

func noPayload(a Action) actionDecoder {
	return func(json.RawMessage) (Event, error) { return a, nil }
}

func withPayload[T Action](check func(T) error) actionDecoder {
	return func(data json.RawMessage) (Event, error) {
		var a T
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode %T: %w", a, err)
		}
		if check != nil {
			if err := check(a); err != nil {
				return nil, fmt.Errorf("decode %T: %w", a, err)
			}
		}
		return a, nil
	}
}

func optionalPayload[T Action]() actionDecoder {
	full := withPayload[T](nil)
	return func(data json.RawMessage) (Event, error) {
		if len(data) == 0 {
			var zero T
			return zero, nil
		}
		return full(data)
	}
}

func validAxis(a AxisMoved) error {
	switch a.Axis {
	case AxisLeftX, AxisLeftY, AxisRightX, AxisRightY:
		return nil
	}
	return fmt.Errorf("unknown axis %q", a.Axis)
}

// UnmarshalEvent decodes one envelope into its Action.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	decode, ok := actionDecoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
	return decode(env.Data)
}

// actionWire returns the wire name of e and the payload to send, if any.
func actionWire(e Event) (name string, payload any, ok bool) {
	switch a := e.(type) {
	case AxisMoved:
		return "axis_moved", a, true
	case SticksCentered:
		return "sticks_centered", nil, true
	case EmergencyStop:
		return "emergency_stop", nil, true
	case ToggleReversed:
		return "toggle_reversed", nil, true
	case CycleBrakeMode:
		return "cycle_brake_mode", nil, true
	case CycleSpinner:
		return "cycle_spinner", nil, true
	case WeaponOn:
		return "weapon_on", nil, true
	case WeaponOff:
		return "weapon_off", nil, true
	case SpinnerRPMStep:
		return "spinner_rpm_step", a, true
	case CurveStep:
		return "curve_step", a, true
	case ToggleDisplay:
		return "toggle_display", nil, true
	case CycleAutonRoutine:
		return "cycle_auton_routine", nil, true
	case RunAutonomous:
		if a.Routine == "" {
			return "run_autonomous", nil, true
		}
		return "run_autonomous", a, true
	case GTAButtonChanged:
		return "gta_button_changed", a, true
	}
	return "", nil, false
}

// MarshalEvent encodes an Action as an envelope. Internal events (ticks,
// observations) have no wire form.
func MarshalEvent(e Event) ([]byte, error) {
	name, payload, ok := actionWire(e)
	if !ok {
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}
	env := EventEnvelope{Type: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", payload, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}
