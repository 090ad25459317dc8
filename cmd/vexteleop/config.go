package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the vexteleop daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
type Config struct {
	Input      InputConfig       `yaml:"input"`
	Drive      DriveConfig       `yaml:"drive"`
	Curve      CurveFileConfig   `yaml:"curve"`
	GTA        GTAFileConfig     `yaml:"gta"`
	Spinner    SpinnerFileConfig `yaml:"spinner"`
	Motors     MotorsConfig      `yaml:"motors"`
	Autonomous AutonFileConfig   `yaml:"autonomous"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
	IPC        IPCConfig         `yaml:"ipc"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// InputConfig describes the gamepad(s). Empty maps use the built-in layout
// for an xpad-style controller.
type InputConfig struct {
	Devices    []string                 `yaml:"devices"`
	InputScale float64                  `yaml:"input_scale"`
	DebounceMS int                      `yaml:"debounce_ms"`
	Axes       map[AxisName]AxisBinding `yaml:"axes,omitempty"`
	Buttons    map[string]ButtonAction  `yaml:"buttons,omitempty"`
	GTAButtons map[string]GTAButton     `yaml:"gta_buttons,omitempty"`
}

type DriveConfig struct {
	Mode             string `yaml:"mode"`         // arcade, tank or gta
	ArcadeStick      string `yaml:"arcade_stick"` // left or right
	UpdateHz         int    `yaml:"update_hz"`
	InitialBrakeMode string `yaml:"initial_brake_mode"`
}

type CurveFileConfig struct {
	Deadzone     float64 `yaml:"deadzone"`
	Exponent     float64 `yaml:"exponent"`
	MaxOutput    float64 `yaml:"max_output"`
	Shape        string  `yaml:"shape"`
	Scaling      string  `yaml:"scaling"`
	StepMode     string  `yaml:"step_mode"`
	ExponentStep float64 `yaml:"exponent_step"`
	MinExponent  float64 `yaml:"min_exponent"`
	MaxExponent  float64 `yaml:"max_exponent"`
}

type GTAFileConfig struct {
	AccelPctPerSec float64 `yaml:"accel_pct_per_sec"`
	TurnPctPerSec  float64 `yaml:"turn_pct_per_sec"`
	DecayTauSec    float64 `yaml:"decay_tau_sec"`
}

type SpinnerFileConfig struct {
	DefaultRPM float64 `yaml:"default_rpm"`
	RPMMult    float64 `yaml:"rpm_mult"`
	MinRPM     float64 `yaml:"min_rpm"`
	MaxRPM     float64 `yaml:"max_rpm"`
}

// MotorBackend names the transport motor frames are written to.
type MotorBackend string

const (
	MotorBackendLog    MotorBackend = "log"
	MotorBackendCAN    MotorBackend = "can"
	MotorBackendSerial MotorBackend = "serial"
)

type MotorsConfig struct {
	Backend      string `yaml:"backend"`
	CANInterface string `yaml:"can_interface"`
	SerialDevice string `yaml:"serial_device"`
	SerialBaud   int    `yaml:"serial_baud"`

	LeftIDs    []uint32 `yaml:"left_ids"`
	RightIDs   []uint32 `yaml:"right_ids"`
	SpinnerIDs []uint32 `yaml:"spinner_ids,omitempty"`

	// The arm follows whichever stick the drive mode leaves free: vertical
	// on the upper joint, horizontal on the lower one.
	ArmUpperIDs []uint32 `yaml:"arm_upper_ids,omitempty"`
	ArmLowerIDs []uint32 `yaml:"arm_lower_ids,omitempty"`

	LeftInverted     bool `yaml:"left_inverted"`
	RightInverted    bool `yaml:"right_inverted"`
	SpinnerInverted  bool `yaml:"spinner_inverted"`
	ArmUpperInverted bool `yaml:"arm_upper_inverted,omitempty"`
	ArmLowerInverted bool `yaml:"arm_lower_inverted,omitempty"`
}

// hasArm reports whether any arm joint is wired.
func (m MotorsConfig) hasArm() bool {
	return len(m.ArmUpperIDs) > 0 || len(m.ArmLowerIDs) > 0
}

type AutonFileConfig struct {
	SpeedMPS  float64           `yaml:"speed_mps"`
	FullPower float64           `yaml:"full_power"`
	Rotate    RotateCalibration `yaml:"rotate"`
	// Empty uses the built-in routines.
	Routines []AutonRoutine `yaml:"routines,omitempty"`
}

type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Listen         string `yaml:"listen"`
	Path           string `yaml:"path"`
	DisplayEnabled bool   `yaml:"display_enabled"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfig is the robot as it ships: arcade drive on the right stick,
// log motors, telemetry on :8080.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Devices:    []string{"/dev/input/event0"},
			InputScale: defaultInputScale,
			DebounceMS: defaultDebounceMS,
		},
		Drive: DriveConfig{
			Mode:             string(DriveModeArcade),
			ArcadeStick:      string(ArcadeStickRight),
			UpdateHz:         defaultUpdateHz,
			InitialBrakeMode: BrakeCoast.String(),
		},
		Curve: CurveFileConfig{
			Deadzone:     defaultDeadzone,
			Exponent:     defaultExponent,
			MaxOutput:    defaultMaxOutput,
			Shape:        string(CurveShapePower),
			Scaling:      string(CurveScalingRadial),
			StepMode:     string(StepModeAdditive),
			ExponentStep: defaultExponentStep,
			MinExponent:  defaultMinExponent,
			MaxExponent:  defaultMaxExponent,
		},
		GTA: GTAFileConfig{
			AccelPctPerSec: defaultGTAAccelPctPerS,
			TurnPctPerSec:  defaultGTATurnPctPerS,
			DecayTauSec:    defaultGTADecayTau,
		},
		Spinner: SpinnerFileConfig{
			DefaultRPM: defaultSpinnerRPM,
			RPMMult:    defaultSpinnerRPMMult,
			MinRPM:     minSpinnerRPM,
			MaxRPM:     maxSpinnerRPM,
		},
		Motors: MotorsConfig{
			Backend:       string(MotorBackendLog),
			CANInterface:  "can0",
			SerialDevice:  "/dev/ttyACM0",
			SerialBaud:    115200,
			LeftIDs:       []uint32{1, 2},
			RightIDs:      []uint32{3, 4},
			SpinnerIDs:    []uint32{5},
			RightInverted: true,
		},
		Autonomous: AutonFileConfig{
			SpeedMPS:  defaultAutonSpeedMPS,
			FullPower: defaultMaxOutput,
			Rotate:    DefaultRotateCalibration(),
		},
		Telemetry: TelemetryConfig{
			Enabled:        true,
			Listen:         ":8080",
			Path:           "/telemetry",
			DisplayEnabled: true,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/vexteleop.sock",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(LogFormatText),
		},
	}
}

// defaultAxes is the xpad layout: signed 16-bit sticks, Y grows downward.
func defaultAxes() map[AxisName]AxisBinding {
	return map[AxisName]AxisBinding{
		AxisLeftX:  {Code: "ABS_X", Min: -32768, Max: 32767},
		AxisLeftY:  {Code: "ABS_Y", Min: -32768, Max: 32767, Invert: true},
		AxisRightX: {Code: "ABS_RX", Min: -32768, Max: 32767},
		AxisRightY: {Code: "ABS_RY", Min: -32768, Max: 32767, Invert: true},
	}
}

func defaultButtons() map[string]ButtonAction {
	return map[string]ButtonAction{
		"BTN_NORTH":      ButtonCycleSpinner,
		"BTN_DPAD_UP":    ButtonSpinnerRPMUp,
		"BTN_DPAD_DOWN":  ButtonSpinnerRPMDown,
		"BTN_EAST":       ButtonToggleReversed,
		"BTN_DPAD_RIGHT": ButtonCurveUp,
		"BTN_DPAD_LEFT":  ButtonCurveDown,
		"BTN_WEST":       ButtonToggleDisplay,
		"BTN_SOUTH":      ButtonCycleBrakeMode,
		"BTN_SELECT":     ButtonCycleAuton,
		"BTN_START":      ButtonRunAutonomous,
		"BTN_MODE":       ButtonEmergencyStop,
	}
}

func defaultGTAButtons() map[string]GTAButton {
	return map[string]GTAButton{
		"BTN_DPAD_UP":    GTAButtonUp,
		"BTN_DPAD_DOWN":  GTAButtonDown,
		"BTN_DPAD_LEFT":  GTAButtonLeft,
		"BTN_DPAD_RIGHT": GTAButtonRight,
		"BTN_TL":         GTAButtonBrake,
		"BTN_TR":         GTAButtonCruise,
	}
}

// LoadConfigFile decodes path over DefaultConfig. Unknown keys are errors so a
// misspelt setting is not silently ignored.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: all defaults.
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// One document per file.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Each override is only applied if its pointer is non-nil.
type FlagOverrides struct {
	InputDevice *string
	DriveMode   *string
	UpdateHz    *int

	MotorBackend *string
	CANInterface *string
	SerialDevice *string

	TelemetryListen  *string
	TelemetryEnabled *bool

	IPCSocketPath *string
	LogLevel      *string
	LogFormat     *string
}

// Apply copies every flag that was set on the command line into cfg. Nil
// fields were not given and leave cfg alone.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}
	if o.DriveMode != nil {
		cfg.Drive.Mode = *o.DriveMode
	}
	if o.UpdateHz != nil {
		cfg.Drive.UpdateHz = *o.UpdateHz
	}
	if o.MotorBackend != nil {
		cfg.Motors.Backend = *o.MotorBackend
	}
	if o.CANInterface != nil {
		cfg.Motors.CANInterface = *o.CANInterface
	}
	if o.SerialDevice != nil {
		cfg.Motors.SerialDevice = *o.SerialDevice
	}
	if o.TelemetryListen != nil {
		cfg.Telemetry.Listen = *o.TelemetryListen
	}
	if o.TelemetryEnabled != nil {
		cfg.Telemetry.Enabled = *o.TelemetryEnabled
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate reports the first invalid setting, naming its YAML key. Call it
// after the file and flag overrides have been applied.
func (c *Config) Validate() error {
	// Input
	if len(c.Input.Devices) == 0 {
		return errors.New("input.devices must not be empty")
	}
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.InputScale <= 0 {
		return errors.New("input.input_scale must be > 0")
	}
	if c.Input.DebounceMS < 0 {
		return errors.New("input.debounce_ms must be >= 0")
	}
	// Mapping errors (bad codes, unknown actions) surface here rather than at startup.
	if _, err := newInputTranslator(c.ToTranslatorConfig()); err != nil {
		return fmt.Errorf("input: %w", err)
	}

	// Drive
	switch DriveMode(c.Drive.Mode) {
	case DriveModeArcade, DriveModeTank, DriveModeGTA:
	default:
		return fmt.Errorf("drive.mode must be %q, %q or %q", DriveModeArcade, DriveModeTank, DriveModeGTA)
	}
	switch ArcadeStick(c.Drive.ArcadeStick) {
	case ArcadeStickLeft, ArcadeStickRight:
	default:
		return fmt.Errorf("drive.arcade_stick must be %q or %q", ArcadeStickLeft, ArcadeStickRight)
	}
	if c.Drive.UpdateHz <= 0 || c.Drive.UpdateHz > 1000 {
		return errors.New("drive.update_hz must be between 1 and 1000")
	}
	if _, err := ParseBrakeMode(c.Drive.InitialBrakeMode); err != nil {
		return fmt.Errorf("drive.initial_brake_mode: %w", err)
	}

	// Curve
	if c.Curve.Deadzone < 0 || c.Curve.Deadzone >= 1 {
		return errors.New("curve.deadzone must be in [0, 1)")
	}
	if c.Curve.MaxOutput <= 0 || c.Curve.MaxOutput > 100 {
		return errors.New("curve.max_output must be in (0, 100]")
	}
	switch CurveShape(c.Curve.Shape) {
	case CurveShapePower, CurveShapeQuadratic:
	default:
		return fmt.Errorf("curve.shape must be %q or %q", CurveShapePower, CurveShapeQuadratic)
	}
	switch CurveScaling(c.Curve.Scaling) {
	case CurveScalingRadial, CurveScalingPerAxis:
	default:
		return fmt.Errorf("curve.scaling must be %q or %q", CurveScalingRadial, CurveScalingPerAxis)
	}
	switch StepMode(c.Curve.StepMode) {
	case StepModeAdditive, StepModeMultiplicative:
	default:
		return fmt.Errorf("curve.step_mode must be %q or %q", StepModeAdditive, StepModeMultiplicative)
	}
	if StepMode(c.Curve.StepMode) == StepModeMultiplicative && c.Curve.ExponentStep <= 1 {
		return errors.New("curve.exponent_step must be > 1 when step_mode is multiplicative")
	}
	if c.Curve.MinExponent > c.Curve.MaxExponent {
		return errors.New("curve.min_exponent must be <= curve.max_exponent")
	}
	if c.Curve.Exponent < c.Curve.MinExponent || c.Curve.Exponent > c.Curve.MaxExponent {
		return errors.New("curve.exponent must be within [min_exponent, max_exponent]")
	}
	// A power curve with exponent <= -1 would amplify small inputs without bound.
	if c.Curve.MinExponent <= -1 {
		return errors.New("curve.min_exponent must be > -1")
	}

	// GTA
	if c.GTA.AccelPctPerSec < 0 || c.GTA.TurnPctPerSec < 0 {
		return errors.New("gta rates must be >= 0")
	}

	// Spinner
	if c.Spinner.MinRPM <= 0 || c.Spinner.MinRPM > c.Spinner.MaxRPM {
		return errors.New("spinner.min_rpm must be > 0 and <= spinner.max_rpm")
	}
	if c.Spinner.DefaultRPM < c.Spinner.MinRPM || c.Spinner.DefaultRPM > c.Spinner.MaxRPM {
		return errors.New("spinner.default_rpm must be within [min_rpm, max_rpm]")
	}
	if c.Spinner.RPMMult <= 1 {
		return errors.New("spinner.rpm_mult must be > 1")
	}

	// Motors
	switch MotorBackend(c.Motors.Backend) {
	case MotorBackendLog:
	case MotorBackendCAN:
		if c.Motors.CANInterface == "" {
			return errors.New("motors.can_interface must not be empty for the can backend")
		}
		for _, ids := range [][]uint32{c.Motors.LeftIDs, c.Motors.RightIDs, c.Motors.SpinnerIDs, c.Motors.ArmUpperIDs, c.Motors.ArmLowerIDs} {
			for _, id := range ids {
				if id > canMaxStandardID {
					return fmt.Errorf("motors: CAN id %#x exceeds 11 bits", id)
				}
			}
		}
	case MotorBackendSerial:
		if c.Motors.SerialDevice == "" {
			return errors.New("motors.serial_device must not be empty for the serial backend")
		}
		if c.Motors.SerialBaud <= 0 {
			return errors.New("motors.serial_baud must be > 0")
		}
	default:
		return fmt.Errorf("motors.backend must be %q, %q or %q", MotorBackendLog, MotorBackendCAN, MotorBackendSerial)
	}
	if len(c.Motors.LeftIDs) == 0 || len(c.Motors.RightIDs) == 0 {
		return errors.New("motors.left_ids and motors.right_ids must not be empty")
	}
	if c.Motors.hasArm() && DriveMode(c.Drive.Mode) == DriveModeTank {
		return errors.New("motors.arm_upper_ids/arm_lower_ids need a free stick; tank mode uses both")
	}

	// Autonomous
	if c.Autonomous.SpeedMPS <= 0 {
		return errors.New("autonomous.speed_mps must be > 0")
	}
	if c.Autonomous.FullPower <= 0 || c.Autonomous.FullPower > 100 {
		return errors.New("autonomous.full_power must be in (0, 100]")
	}
	if c.Autonomous.Rotate.MSPerNineDeg <= 0 {
		return errors.New("autonomous.rotate.ms_per_nine_deg must be > 0")
	}
	if err := validateRoutines(c.Autonomous.Routines); err != nil {
		return fmt.Errorf("autonomous.routines: %w", err)
	}

	// Telemetry
	if c.Telemetry.Enabled {
		if c.Telemetry.Listen == "" {
			return errors.New("telemetry.listen must not be empty when telemetry is enabled")
		}
		if c.Telemetry.Path == "" || c.Telemetry.Path[0] != '/' {
			return errors.New("telemetry.path must start with /")
		}
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch LogFormat(c.Logging.Format) {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("logging.format must be %q or %q", LogFormatText, LogFormatJSON)
	}

	return nil
}

func validateRoutines(routines []AutonRoutine) error {
	seen := make(map[string]bool, len(routines))
	for i, r := range routines {
		if r.Name == "" {
			return fmt.Errorf("[%d]: name must not be empty", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if len(r.Steps) == 0 {
			return fmt.Errorf("%s: no steps", r.Name)
		}
		for j, st := range r.Steps {
			switch st.Op {
			case AutonOpForward, AutonOpBackward:
				if st.Meters <= 0 {
					return fmt.Errorf("%s step %d: meters must be > 0", r.Name, j)
				}
			case AutonOpRotate:
			case AutonOpPause:
				if st.MS < 0 {
					return fmt.Errorf("%s step %d: ms must be >= 0", r.Name, j)
				}
			default:
				return fmt.Errorf("%s step %d: unknown op %q", r.Name, j, st.Op)
			}
		}
	}
	return nil
}

// ToReducerConfig converts the file config into the reducer's config.
// Call after Validate.
func (c *Config) ToReducerConfig() ReducerConfig {
	brake, _ := ParseBrakeMode(c.Drive.InitialBrakeMode)

	cfg := ReducerConfig{
		Mode:        DriveMode(c.Drive.Mode),
		ArcadeStick: ArcadeStick(c.Drive.ArcadeStick),
		Curve: ResponseCurveConfig{
			Deadzone:     c.Curve.Deadzone,
			Exponent:     c.Curve.Exponent,
			MaxOutput:    c.Curve.MaxOutput,
			InputScale:   c.Input.InputScale,
			Shape:        CurveShape(c.Curve.Shape),
			Scaling:      CurveScaling(c.Curve.Scaling),
			StepMode:     StepMode(c.Curve.StepMode),
			ExponentStep: c.Curve.ExponentStep,
			MinExponent:  c.Curve.MinExponent,
			MaxExponent:  c.Curve.MaxExponent,
		},
		GTA: GTAConfig{
			AccelPctPerS: c.GTA.AccelPctPerSec,
			TurnPctPerS:  c.GTA.TurnPctPerSec,
			DecayTau:     c.GTA.DecayTauSec,
			MaxDt:        defaultGTAMaxDt,
			MaxOutput:    c.Curve.MaxOutput,
		},
		Spinner: SpinnerConfig{
			DefaultRPM: c.Spinner.DefaultRPM,
			RPMMult:    c.Spinner.RPMMult,
			MinRPM:     c.Spinner.MinRPM,
			MaxRPM:     c.Spinner.MaxRPM,
		},
		Routines:         c.routines(),
		InitialBrakeMode: brake,
		DisplayEnabled:   c.Telemetry.DisplayEnabled,
		ArmEnabled:       c.Motors.hasArm(),
	}
	return cfg
}

// ToAutonConfig returns the open-loop calibration.
func (c *Config) ToAutonConfig() AutonConfig {
	return AutonConfig{
		SpeedMPS:  c.Autonomous.SpeedMPS,
		FullPower: c.Autonomous.FullPower,
		Rotate:    c.Autonomous.Rotate,
	}
}

// ToTranslatorConfig resolves the input mapping, filling in the built-in layout.
func (c *Config) ToTranslatorConfig() TranslatorConfig {
	tc := TranslatorConfig{
		InputScale: c.Input.InputScale,
		Axes:       c.Input.Axes,
		Buttons:    c.Input.Buttons,
		GTAButtons: c.Input.GTAButtons,
		GTAEnabled: DriveMode(c.Drive.Mode) == DriveModeGTA,
		DebounceMS: c.Input.DebounceMS,
	}
	if len(tc.Axes) == 0 {
		tc.Axes = defaultAxes()
	}
	if len(tc.Buttons) == 0 {
		tc.Buttons = defaultButtons()
	}
	if len(tc.GTAButtons) == 0 {
		tc.GTAButtons = defaultGTAButtons()
	}
	return tc
}

func (c *Config) routines() []AutonRoutine {
	if len(c.Autonomous.Routines) == 0 {
		return DefaultAutonRoutines()
	}
	return c.Autonomous.Routines
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
