// Package wheel turns analog stick positions into a virtual steering wheel.
//
// The stick is treated as a hand on the rim: while the stick is pushed to the
// edge of its travel (gripped) the wheel follows the change in stick angle, and
// once the stick is released (freewheel) the wheel eases back to centre.
package wheel

import (
	"fmt"
	"math"
)

// State is the grip state derived from stick deflection.
type State int

const (
	Freewheel State = iota
	Gripped
)

func (s State) String() string {
	switch s {
	case Freewheel:
		return "Freewheel"
	case Gripped:
		return "Gripped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Frame is one raw stick sample between two sync reports.
type Frame struct {
	X     int32
	Y     int32
	State State
}

// Analyze returns the stick angle in radians, its normalised magnitude and the
// grip state the deflection implies.
func (f Frame) Analyze(p Params) (angle, magnitude float64, state State) {
	x, y := float64(f.X), float64(f.Y)
	magnitude = math.Hypot(x, y) / p.MaxMagnitude
	state = Freewheel
	if magnitude > p.GripThreshold {
		state = Gripped
	}
	return math.Atan2(y, x), magnitude, state
}

// Processed is a Frame with its analysis attached. Angle is nil when no stick
// angle is known, which is the case for the zero value.
type Processed struct {
	Frame
	Angle     *float64
	Magnitude float64
}

// Process analyses f and resolves its grip state.
func Process(f Frame, p Params) Processed {
	angle, magnitude, state := f.Analyze(p)
	f.State = state
	return Processed{Frame: f, Angle: &angle, Magnitude: magnitude}
}

// AngleOr returns the stick angle or def when it is undefined.
func (pf Processed) AngleOr(def float64) float64 {
	if pf.Angle == nil {
		return def
	}
	return *pf.Angle
}

// CyclicSignedDistance returns a-b wrapped into (-π, π).
func CyclicSignedDistance(a, b float64) float64 {
	r := a - b
	for r <= -math.Pi {
		r += 2 * math.Pi
	}
	for r >= math.Pi {
		r -= 2 * math.Pi
	}
	return r
}

// Lerp interpolates between from and to, with t clamped to [0, 1].
func Lerp(from, to, t float64) float64 {
	t = clamp(t, 0, 1)
	return (1-t)*from + t*to
}

// Step advances the wheel angle given the current and previous processed
// frames and the seconds elapsed since the previous report.
func Step(current float64, cur, prev Processed, dt float64, p Params) float64 {
	var next float64
	if cur.Angle != nil && prev.State == Gripped && cur.State == Gripped {
		var da float64
		if prev.Angle != nil {
			da = CyclicSignedDistance(*cur.Angle, *prev.Angle)
		}
		next = current + da
	} else {
		next = Lerp(current, 0, clamp(p.EaseRate*dt, 0, p.EaseMaxStep))
	}
	return clamp(next, -p.SteeringStop, p.SteeringStop)
}

// axisHalf is half the unsigned 16-bit axis range.
const axisHalf = math.MaxUint16 / 2

// AxisMin and AxisMax bound the values Quantize produces.
const (
	AxisMin = 0
	AxisMax = 2 * axisHalf
)

// Quantize maps a wheel angle in [-SteeringStop, SteeringStop] to an axis
// value centred on 32767.
func Quantize(angle float64, p Params) int32 {
	return axisHalf + int32(math.Trunc(axisHalf*(angle/p.SteeringStop)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
