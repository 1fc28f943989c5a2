package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/banshee-data/stick2wheel/internal/wheel"
)

func TestDefaultsFileMatchesDefaultParams(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	p, err := cfg.ToParams()
	if err != nil {
		t.Fatalf("ToParams: %v", err)
	}
	want := wheel.DefaultParams()
	if math.Abs(p.SteeringStop-want.SteeringStop) > 1e-12 || math.Abs(p.EaseRate-want.EaseRate) > 1e-12 {
		t.Errorf("angles = %v/%v, want %v/%v", p.SteeringStop, p.EaseRate, want.SteeringStop, want.EaseRate)
	}
	p.SteeringStop, p.EaseRate = want.SteeringStop, want.EaseRate
	if p != want {
		t.Errorf("defaults file resolves to %+v, want %+v", p, want)
	}
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	p, err := (&TuningConfig{}).ToParams()
	if err != nil {
		t.Fatalf("ToParams: %v", err)
	}
	if p != wheel.DefaultParams() {
		t.Errorf("empty config = %+v, want defaults", p)
	}

	p, err = LoadParams("")
	if err != nil || p != wheel.DefaultParams() {
		t.Errorf("LoadParams(\"\") = %+v, %v", p, err)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	// axis names may drop their ABS_ prefix
	data := `{
  "steering_turns": 1.5,
  "grip_threshold": 0.8,
  "idle_tick_interval": "20ms",
  "output_axis": "wheel",
  "input_x": "rx",
  "input_y": "ABS_RY"
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	p, err := cfg.ToParams()
	if err != nil {
		t.Fatalf("ToParams: %v", err)
	}

	if got, want := p.SteeringStop, 3*math.Pi; math.Abs(got-want) > 1e-12 {
		t.Errorf("SteeringStop = %v, want %v", got, want)
	}
	if p.GripThreshold != 0.8 {
		t.Errorf("GripThreshold = %v", p.GripThreshold)
	}
	if p.IdleTickInterval != 20*time.Millisecond {
		t.Errorf("IdleTickInterval = %v", p.IdleTickInterval)
	}
	if p.MinReportGap != wheel.DefaultParams().MinReportGap {
		t.Errorf("MinReportGap = %v, want default", p.MinReportGap)
	}
	if p.OutputAxis != evdev.ABS_WHEEL || p.InputX != evdev.ABS_RX || p.InputY != evdev.ABS_RY {
		t.Errorf("axes = %d %d %d", p.OutputAxis, p.InputX, p.InputY)
	}
}

func TestLoadTuningConfigErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"wrong extension", write("tuning.yaml", "{}"), ".json extension"},
		{"missing", filepath.Join(dir, "nope.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"unknown key", write("typo.json", `{"grip_treshold": 0.5}`), "unknown field"},
		{"grip out of range", write("grip.json", `{"grip_threshold": 1.5}`), "grip_threshold"},
		{"negative turns", write("turns.json", `{"steering_turns": -1}`), "steering_turns"},
		{"bad duration", write("dur.json", `{"min_report_gap": "soon"}`), "min_report_gap"},
		{"negative duration", write("neg.json", `{"idle_tick_interval": "-1ms"}`), "idle_tick_interval"},
		{"zero tick interval", write("zero.json", `{"idle_tick_interval": "0s"}`), "idle_tick_interval"},
		{"bad axis", write("axis.json", `{"input_x": "ABS_NOPE"}`), "input_x"},
		{"ease step", write("ease.json", `{"ease_max_step": 2}`), "ease_max_step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestToParamsCrossFieldValidation(t *testing.T) {
	cfg := &TuningConfig{InputX: ptrString("ABS_Y")}
	if _, err := cfg.ToParams(); err == nil {
		t.Error("expected error for identical stick axes")
	}
}

func TestGetters(t *testing.T) {
	cfg := &TuningConfig{
		MaxMagnitude:       ptrFloat64(127),
		EaseTurnsPerSecond: ptrFloat64(0.5),
		EaseMaxStep:        ptrFloat64(0.1),
		IdleAngle:          ptrFloat64(0.01),
		MinReportGap:       ptrString("2ms"),
	}
	if cfg.GetMaxMagnitude() != 127 {
		t.Errorf("GetMaxMagnitude = %v", cfg.GetMaxMagnitude())
	}
	if cfg.GetEaseRate() != math.Pi {
		t.Errorf("GetEaseRate = %v, want π", cfg.GetEaseRate())
	}
	if cfg.GetEaseMaxStep() != 0.1 || cfg.GetIdleAngle() != 0.01 {
		t.Errorf("ease step %v idle angle %v", cfg.GetEaseMaxStep(), cfg.GetIdleAngle())
	}
	if cfg.GetMinReportGap() != 2*time.Millisecond {
		t.Errorf("GetMinReportGap = %v", cfg.GetMinReportGap())
	}
	// an unparsable value that slipped past Validate falls back to the default
	cfg.MinReportGap = ptrString("later")
	if cfg.GetMinReportGap() != wheel.DefaultParams().MinReportGap {
		t.Errorf("GetMinReportGap fallback = %v", cfg.GetMinReportGap())
	}
}
