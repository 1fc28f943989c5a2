package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/banshee-data/stick2wheel/internal/inputevent"
	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// DefaultConfigPath is the tuning file shipped with the repository.
const DefaultConfigPath = "config/tuning.defaults.json"

const maxFileSize = 1 << 20

// TuningConfig is the on-disk form of wheel.Params. Every field is optional;
// unset fields fall back to wheel.DefaultParams.
type TuningConfig struct {
	// SteeringTurns is the number of full turns from centre to each lock.
	SteeringTurns *float64 `json:"steering_turns,omitempty"`
	MaxMagnitude  *float64 `json:"max_magnitude,omitempty"`
	GripThreshold *float64 `json:"grip_threshold,omitempty"`
	// EaseTurnsPerSecond is the centring rate as a fraction of a turn.
	EaseTurnsPerSecond *float64 `json:"ease_turns_per_second,omitempty"`
	EaseMaxStep        *float64 `json:"ease_max_step,omitempty"`
	IdleAngle          *float64 `json:"idle_angle,omitempty"`

	IdleTickInterval *string `json:"idle_tick_interval,omitempty"` // duration string like "10ms"
	MinReportGap     *string `json:"min_report_gap,omitempty"`

	// Axis names such as "ABS_X", or just "x".
	OutputAxis *string `json:"output_axis,omitempty"`
	InputX     *string `json:"input_x,omitempty"`
	InputY     *string `json:"input_y,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// LoadTuningConfig reads and validates a JSON tuning file.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes and validates tuning JSON. Unknown keys are
// rejected so a typo does not silently leave a default in place.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := &TuningConfig{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory or
// one of its parents. It panics when the file is missing and is meant for
// tests.
func MustLoadDefaultConfig() *TuningConfig {
	for _, prefix := range []string{"", "../", "../../", "../../../"} {
		if cfg, err := LoadTuningConfig(prefix + DefaultConfigPath); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath)
}

// Validate checks each set field. Cross-field rules are left to
// wheel.Params.Validate once the config is resolved.
func (c *TuningConfig) Validate() error {
	var errs []error
	positive := func(name string, v *float64) {
		if v != nil && !(*v > 0) {
			errs = append(errs, fmt.Errorf("%s must be positive, got %g", name, *v))
		}
	}
	positive("steering_turns", c.SteeringTurns)
	positive("max_magnitude", c.MaxMagnitude)
	if c.GripThreshold != nil && !(*c.GripThreshold > 0 && *c.GripThreshold <= 1) {
		errs = append(errs, fmt.Errorf("grip_threshold must be in (0, 1], got %g", *c.GripThreshold))
	}
	if c.EaseTurnsPerSecond != nil && *c.EaseTurnsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("ease_turns_per_second must not be negative, got %g", *c.EaseTurnsPerSecond))
	}
	if c.EaseMaxStep != nil && (*c.EaseMaxStep < 0 || *c.EaseMaxStep > 1) {
		errs = append(errs, fmt.Errorf("ease_max_step must be in [0, 1], got %g", *c.EaseMaxStep))
	}
	if c.IdleAngle != nil && *c.IdleAngle < 0 {
		errs = append(errs, fmt.Errorf("idle_angle must not be negative, got %g", *c.IdleAngle))
	}
	for name, s := range map[string]*string{"idle_tick_interval": c.IdleTickInterval, "min_report_gap": c.MinReportGap} {
		if s == nil {
			continue
		}
		if d, err := time.ParseDuration(*s); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", name, *s, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, d))
		} else if d == 0 && name == "idle_tick_interval" {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	for name, s := range map[string]*string{"output_axis": c.OutputAxis, "input_x": c.InputX, "input_y": c.InputY} {
		if s == nil {
			continue
		}
		if _, err := inputevent.ParseCode(evdev.EV_ABS, *s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// GetSteeringStop returns the lock angle in radians.
func (c *TuningConfig) GetSteeringStop() float64 {
	if c.SteeringTurns == nil {
		return wheel.DefaultParams().SteeringStop
	}
	return 2 * math.Pi * *c.SteeringTurns
}

func (c *TuningConfig) GetMaxMagnitude() float64 {
	if c.MaxMagnitude == nil {
		return wheel.DefaultParams().MaxMagnitude
	}
	return *c.MaxMagnitude
}

func (c *TuningConfig) GetGripThreshold() float64 {
	if c.GripThreshold == nil {
		return wheel.DefaultParams().GripThreshold
	}
	return *c.GripThreshold
}

// GetEaseRate returns the centring rate in radians per second.
func (c *TuningConfig) GetEaseRate() float64 {
	if c.EaseTurnsPerSecond == nil {
		return wheel.DefaultParams().EaseRate
	}
	return 2 * math.Pi * *c.EaseTurnsPerSecond
}

func (c *TuningConfig) GetEaseMaxStep() float64 {
	if c.EaseMaxStep == nil {
		return wheel.DefaultParams().EaseMaxStep
	}
	return *c.EaseMaxStep
}

func (c *TuningConfig) GetIdleAngle() float64 {
	if c.IdleAngle == nil {
		return wheel.DefaultParams().IdleAngle
	}
	return *c.IdleAngle
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func (c *TuningConfig) GetIdleTickInterval() time.Duration {
	return durationOr(c.IdleTickInterval, wheel.DefaultParams().IdleTickInterval)
}

func (c *TuningConfig) GetMinReportGap() time.Duration {
	return durationOr(c.MinReportGap, wheel.DefaultParams().MinReportGap)
}

func axisOr(s *string, def uint16) uint16 {
	if s == nil {
		return def
	}
	code, err := inputevent.ParseCode(evdev.EV_ABS, *s)
	if err != nil {
		return def
	}
	return code
}

func (c *TuningConfig) GetOutputAxis() uint16 {
	return axisOr(c.OutputAxis, wheel.DefaultParams().OutputAxis)
}

func (c *TuningConfig) GetInputX() uint16 { return axisOr(c.InputX, wheel.DefaultParams().InputX) }
func (c *TuningConfig) GetInputY() uint16 { return axisOr(c.InputY, wheel.DefaultParams().InputY) }

// ToParams resolves the config into validated wheel parameters.
func (c *TuningConfig) ToParams() (wheel.Params, error) {
	p := wheel.Params{
		SteeringStop:     c.GetSteeringStop(),
		MaxMagnitude:     c.GetMaxMagnitude(),
		GripThreshold:    c.GetGripThreshold(),
		EaseRate:         c.GetEaseRate(),
		EaseMaxStep:      c.GetEaseMaxStep(),
		IdleAngle:        c.GetIdleAngle(),
		IdleTickInterval: c.GetIdleTickInterval(),
		MinReportGap:     c.GetMinReportGap(),
		OutputAxis:       c.GetOutputAxis(),
		InputX:           c.GetInputX(),
		InputY:           c.GetInputY(),
	}
	return p, p.Validate()
}

// LoadParams loads path, or returns the defaults when path is empty.
func LoadParams(path string) (wheel.Params, error) {
	if path == "" {
		return wheel.DefaultParams(), nil
	}
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		return wheel.Params{}, err
	}
	return cfg.ToParams()
}
