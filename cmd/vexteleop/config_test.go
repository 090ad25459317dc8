package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	rc := cfg.ToReducerConfig()
	if rc.Mode != DriveModeArcade || rc.ArcadeStick != ArcadeStickRight {
		t.Fatalf("unexpected drive defaults: %+v", rc)
	}
	if len(rc.Routines) != 4 || rc.InitialBrakeMode != BrakeCoast {
		t.Fatalf("unexpected reducer defaults: %d routines, brake %s", len(rc.Routines), rc.InitialBrakeMode)
	}
	if rc.Curve != DefaultResponseCurve() {
		t.Fatalf("file defaults and mixer defaults disagree: %+v vs %+v", rc.Curve, DefaultResponseCurve())
	}
}

func TestParseConfig(t *testing.T) {
	yml := `
drive:
  mode: tank
  initial_brake_mode: hold
motors:
  backend: can
  can_interface: vcan0
  left_ids: [10, 11]
  right_ids: [12]
input:
  buttons:
    BTN_SOUTH: emergency_stop
autonomous:
  routines:
    - name: skills
      label: S1
      steps:
        - {op: forward, meters: 0.5}
        - {op: rotate, degrees: 45}
`
	cfg, err := parseConfig([]byte(yml))
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Drive.Mode != "tank" || cfg.Motors.CANInterface != "vcan0" {
		t.Fatalf("values not loaded: %+v %+v", cfg.Drive, cfg.Motors)
	}
	// Unset fields keep their defaults.
	if cfg.Drive.UpdateHz != defaultUpdateHz || cfg.IPC.SocketPath != "/tmp/vexteleop.sock" {
		t.Fatalf("defaults lost: hz=%d ipc=%q", cfg.Drive.UpdateHz, cfg.IPC.SocketPath)
	}

	rc := cfg.ToReducerConfig()
	if rc.InitialBrakeMode != BrakeHold || len(rc.Routines) != 1 || rc.Routines[0].Name != "skills" {
		t.Fatalf("unexpected reducer config: %+v", rc)
	}

	tc := cfg.ToTranslatorConfig()
	if len(tc.Buttons) != 1 || tc.Buttons["BTN_SOUTH"] != ButtonEmergencyStop {
		t.Fatalf("custom buttons must replace the built-in layout: %+v", tc.Buttons)
	}
	if len(tc.Axes) != 4 || tc.GTAEnabled {
		t.Fatalf("unexpected translator config: %+v", tc)
	}
}

func TestParseConfig_ArmAndWeapon(t *testing.T) {
	yml := `
drive:
  mode: arcade
  arcade_stick: right
motors:
  left_ids: [1]
  right_ids: [2]
  spinner_ids: [3]
  arm_upper_ids: [4, 5]
  arm_lower_ids: [6]
  arm_lower_inverted: true
input:
  buttons:
    BTN_TR: weapon_on
    BTN_TL: weapon_off
`
	cfg, err := parseConfig([]byte(yml))
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Motors.ArmUpperIDs) != 2 || !cfg.Motors.ArmLowerInverted {
		t.Fatalf("arm not loaded: %+v", cfg.Motors)
	}
	if !cfg.ToReducerConfig().ArmEnabled {
		t.Fatalf("arm ids must enable the arm")
	}
	def := DefaultConfig()
	if def.ToReducerConfig().ArmEnabled {
		t.Fatalf("the arm is off unless configured")
	}

	tc := cfg.ToTranslatorConfig()
	if tc.Buttons["BTN_TR"] != ButtonWeaponOn || tc.Buttons["BTN_TL"] != ButtonWeaponOff {
		t.Fatalf("weapon buttons not loaded: %+v", tc.Buttons)
	}
}

func TestParseConfig_EmptyFileIsDefaults(t *testing.T) {
	for _, yml := range []string{"", "# nothing set\n"} {
		cfg, err := parseConfig([]byte(yml))
		if err != nil {
			t.Fatalf("parseConfig(%q): %v", yml, err)
		}
		if cfg.Drive.Mode != DefaultConfig().Drive.Mode || cfg.Spinner.DefaultRPM != DefaultConfig().Spinner.DefaultRPM {
			t.Fatalf("parseConfig(%q) changed defaults: %+v", yml, cfg.Drive)
		}
	}
}

func TestParseConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{"unknown field", "drive:\n  speed: 3\n"},
		{"trailing document", "drive:\n  mode: tank\n---\ndrive:\n  mode: gta\n"},
		{"bad yaml", "drive: [\n"},
	}
	for _, tt := range tests {
		if _, err := parseConfig([]byte(tt.yml)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no devices", func(c *Config) { c.Input.Devices = nil }, "input.devices"},
		{"bad drive mode", func(c *Config) { c.Drive.Mode = "hover" }, "drive.mode"},
		{"bad brake", func(c *Config) { c.Drive.InitialBrakeMode = "park" }, "initial_brake_mode"},
		{"update hz", func(c *Config) { c.Drive.UpdateHz = 0 }, "update_hz"},
		{"deadzone", func(c *Config) { c.Curve.Deadzone = 1 }, "deadzone"},
		{"exponent range", func(c *Config) { c.Curve.Exponent = 2 }, "curve.exponent"},
		{"min exponent", func(c *Config) { c.Curve.MinExponent = -1; c.Curve.Exponent = 0 }, "min_exponent"},
		{"multiplicative step", func(c *Config) { c.Curve.StepMode = "multiplicative"; c.Curve.ExponentStep = 0.9 }, "exponent_step"},
		{"rpm mult", func(c *Config) { c.Spinner.RPMMult = 1 }, "rpm_mult"},
		{"backend", func(c *Config) { c.Motors.Backend = "pwm" }, "motors.backend"},
		{"can id", func(c *Config) { c.Motors.Backend = "can"; c.Motors.LeftIDs = []uint32{0x800} }, "11 bits"},
		{"serial baud", func(c *Config) { c.Motors.Backend = "serial"; c.Motors.SerialBaud = 0 }, "serial_baud"},
		{"no right ids", func(c *Config) { c.Motors.RightIDs = nil }, "right_ids"},
		{"arm in tank mode", func(c *Config) { c.Drive.Mode = "tank"; c.Motors.ArmUpperIDs = []uint32{7} }, "free stick"},
		{"arm can id", func(c *Config) { c.Motors.Backend = "can"; c.Motors.ArmLowerIDs = []uint32{0x900} }, "11 bits"},
		{"unknown button code", func(c *Config) { c.Input.Buttons = map[string]ButtonAction{"BTN_TURBO": ButtonCycleSpinner} }, "unknown input code"},
		{"unknown button action", func(c *Config) { c.Input.Buttons = map[string]ButtonAction{"BTN_SOUTH": "fly"} }, "unknown action"},
		{"duplicate routine", func(c *Config) {
			r := AutonRoutine{Name: "a", Steps: []AutonStep{{Op: AutonOpPause}}}
			c.Autonomous.Routines = []AutonRoutine{r, r}
		}, "duplicate"},
		{"routine step", func(c *Config) {
			c.Autonomous.Routines = []AutonRoutine{{Name: "a", Steps: []AutonStep{{Op: AutonOpForward}}}}
		}, "meters"},
		{"telemetry path", func(c *Config) { c.Telemetry.Path = "telemetry" }, "telemetry.path"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFlagOverrides(t *testing.T) {
	cfg := DefaultConfig()
	dev := "/dev/input/event7"
	mode := "gta"
	hz := 100
	off := false

	FlagOverrides{InputDevice: &dev, DriveMode: &mode, UpdateHz: &hz, TelemetryEnabled: &off}.Apply(&cfg)

	if len(cfg.Input.Devices) != 1 || cfg.Input.Devices[0] != dev {
		t.Fatalf("device override not applied: %v", cfg.Input.Devices)
	}
	if cfg.Drive.Mode != mode || cfg.Drive.UpdateHz != hz || cfg.Telemetry.Enabled {
		t.Fatalf("overrides not applied: %+v telemetry=%v", cfg.Drive, cfg.Telemetry.Enabled)
	}
	// Nil overrides leave values alone.
	if cfg.Motors.Backend != string(MotorBackendLog) {
		t.Fatalf("unexpected backend change: %q", cfg.Motors.Backend)
	}
	if !cfg.ToTranslatorConfig().GTAEnabled {
		t.Fatalf("gta mode must enable gta buttons")
	}

	FlagOverrides{}.Apply(nil)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vexteleop.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n  format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}

	if _, err := LoadConfigFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := map[string]string{
		"":            "",
		"/etc/x.yaml": "/etc/x.yaml",
		"~":           home,
		"~/x.yaml":    filepath.Join(home, "x.yaml"),
		"~other/x":    "~other/x",
	}
	for in, want := range tests {
		if got := ExpandPath(in); got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}
