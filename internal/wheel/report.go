package wheel

import (
	"fmt"
	"math"
	"time"
)

// Report is one wheel value emitted downstream, with the frame that produced
// it. Synthetic reports come from the idle ticker rather than a device sync.
type Report struct {
	Seq        uint64        `json:"seq"`
	Time       time.Time     `json:"time"`
	X          int32         `json:"x"`
	Y          int32         `json:"y"`
	Angle      *float64      `json:"angle,omitempty"`
	Magnitude  float64       `json:"magnitude"`
	State      State         `json:"state"`
	WheelAngle float64       `json:"wheel_angle"`
	AxisValue  int32         `json:"axis_value"`
	Synthetic  bool          `json:"synthetic"`
	Skew       time.Duration `json:"skew_ns"`
}

// NewReport builds a Report from a processed frame and the resulting wheel
// angle.
func NewReport(t time.Time, pf Processed, wheelAngle float64, axis int32) Report {
	return Report{
		Time:       t,
		X:          pf.X,
		Y:          pf.Y,
		Angle:      pf.Angle,
		Magnitude:  pf.Magnitude,
		State:      pf.State,
		WheelAngle: wheelAngle,
		AxisValue:  axis,
	}
}

func (r Report) String() string {
	angle := " Undef. "
	if r.Angle != nil {
		angle = fmt.Sprintf("%8.6f", Degrees(*r.Angle))
	}
	return fmt.Sprintf("x: %8d, y: %8d, analog_angle: %s, analog_magnitude: %8.6f, state: %s, wheel_angle: %8.6f aka %5d",
		r.X, r.Y, angle, r.Magnitude, r.State, Degrees(r.WheelAngle), r.AxisValue)
}

// MarshalText lets State travel as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a State name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Freewheel":
		*s = Freewheel
	case "Gripped":
		*s = Gripped
	default:
		return fmt.Errorf("unknown wheel state %q", b)
	}
	return nil
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
