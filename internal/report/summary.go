// Package report summarises and charts recorded wheel sessions.
package report

import (
	"fmt"
	"io"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// Summary describes a run of reports. Angles are in degrees.
type Summary struct {
	Count     int           `json:"count"`
	Synthetic int           `json:"synthetic"`
	GripRatio float64       `json:"grip_ratio"`
	Duration  time.Duration `json:"duration_ns"`

	WheelMean   float64 `json:"wheel_mean_deg"`
	WheelStdDev float64 `json:"wheel_stddev_deg"`
	WheelMin    float64 `json:"wheel_min_deg"`
	WheelMax    float64 `json:"wheel_max_deg"`

	SkewMean time.Duration `json:"skew_mean_ns"`
	SkewP95  time.Duration `json:"skew_p95_ns"`
}

// Summarize computes a Summary. Skew statistics only cover device reports,
// since idle ticks have no device timestamp to lag behind.
func Summarize(reports []wheel.Report) Summary {
	s := Summary{Count: len(reports)}
	if len(reports) == 0 {
		return s
	}

	angles := make([]float64, len(reports))
	var skews []float64
	gripped := 0
	for i, r := range reports {
		angles[i] = wheel.Degrees(r.WheelAngle)
		if r.State == wheel.Gripped {
			gripped++
		}
		if r.Synthetic {
			s.Synthetic++
			continue
		}
		skews = append(skews, float64(r.Skew))
	}

	s.GripRatio = float64(gripped) / float64(len(reports))
	s.Duration = reports[len(reports)-1].Time.Sub(reports[0].Time)
	s.WheelMean, s.WheelStdDev = stat.MeanStdDev(angles, nil)
	if len(angles) < 2 {
		s.WheelStdDev = 0
	}
	s.WheelMin = floats.Min(angles)
	s.WheelMax = floats.Max(angles)

	if len(skews) > 0 {
		s.SkewMean = time.Duration(stat.Mean(skews, nil))
		slices.Sort(skews)
		s.SkewP95 = time.Duration(stat.Quantile(0.95, stat.Empirical, skews, nil))
	}
	return s
}

// WriteText prints s as aligned name/value lines.
func (s Summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, `reports:       %d (%d synthetic)
duration:      %v
grip ratio:    %.1f%%
wheel angle:   mean %.2f°  stddev %.2f°  min %.2f°  max %.2f°
skew:          mean %v  p95 %v
`,
		s.Count, s.Synthetic, s.Duration.Round(time.Millisecond), 100*s.GripRatio,
		s.WheelMean, s.WheelStdDev, s.WheelMin, s.WheelMax,
		s.SkewMean.Round(time.Microsecond), s.SkewP95.Round(time.Microsecond))
	return err
}
