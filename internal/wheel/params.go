package wheel

import (
	"errors"
	"fmt"
	"math"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
)

// Params tunes the wheel model and the stream filter around it.
type Params struct {
	// SteeringStop is the lock-to-centre angle in radians.
	SteeringStop float64
	// MaxMagnitude is the raw stick value at full deflection.
	MaxMagnitude float64
	// GripThreshold is the normalised magnitude above which the stick grips.
	GripThreshold float64
	// EaseRate is the fraction of the angle recovered per second of freewheel.
	EaseRate float64
	// EaseMaxStep caps the fraction recovered in a single step.
	EaseMaxStep float64
	// IdleAngle is the smallest angle the idle ticker keeps easing.
	IdleAngle float64
	// IdleTickInterval is how often the idle ticker runs.
	IdleTickInterval time.Duration
	// MinReportGap is the quiet time required before a synthetic report.
	MinReportGap time.Duration
	// OutputAxis is the ABS code the wheel is reported on.
	OutputAxis uint16
	// InputX and InputY are the ABS codes of the stick.
	InputX uint16
	InputY uint16
}

// DefaultParams returns a wheel with three full turns to each lock.
func DefaultParams() Params {
	return Params{
		SteeringStop:     2 * math.Pi * 3,
		MaxMagnitude:     32767,
		GripThreshold:    0.92,
		EaseRate:         2 * math.Pi / 4,
		EaseMaxStep:      0.2,
		IdleAngle:        0.0005,
		IdleTickInterval: 10 * time.Millisecond,
		MinReportGap:     4 * time.Millisecond,
		OutputAxis:       evdev.ABS_X,
		InputX:           evdev.ABS_X,
		InputY:           evdev.ABS_Y,
	}
}

// Validate rejects parameter sets the model cannot work with.
func (p Params) Validate() error {
	var errs []error
	if !(p.SteeringStop > 0) {
		errs = append(errs, fmt.Errorf("steering stop must be positive, got %f", p.SteeringStop))
	}
	if !(p.MaxMagnitude > 0) {
		errs = append(errs, fmt.Errorf("max magnitude must be positive, got %f", p.MaxMagnitude))
	}
	if !(p.GripThreshold > 0 && p.GripThreshold <= 1) {
		errs = append(errs, fmt.Errorf("grip threshold must be in (0, 1], got %f", p.GripThreshold))
	}
	if p.EaseRate < 0 {
		errs = append(errs, fmt.Errorf("ease rate must not be negative, got %f", p.EaseRate))
	}
	if p.EaseMaxStep < 0 || p.EaseMaxStep > 1 {
		errs = append(errs, fmt.Errorf("ease max step must be in [0, 1], got %f", p.EaseMaxStep))
	}
	if p.IdleAngle < 0 {
		errs = append(errs, fmt.Errorf("idle angle must not be negative, got %f", p.IdleAngle))
	}
	if p.IdleTickInterval <= 0 {
		errs = append(errs, fmt.Errorf("idle tick interval must be positive, got %v", p.IdleTickInterval))
	}
	if p.MinReportGap < 0 {
		errs = append(errs, fmt.Errorf("min report gap must not be negative, got %v", p.MinReportGap))
	}
	if p.InputX == p.InputY {
		errs = append(errs, fmt.Errorf("stick axes must differ, both are %d", p.InputX))
	}
	return errors.Join(errs...)
}
