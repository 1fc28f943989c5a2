package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/stick2wheel/internal/security"
	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// maxChartPoints bounds the series sent to the browser; longer sessions are
// decimated by a fixed stride.
const maxChartPoints = 5000

func stride(n int) int {
	if n <= maxChartPoints {
		return 1
	}
	return (n + maxChartPoints - 1) / maxChartPoints
}

func seconds(reports []wheel.Report, i int) float64 {
	return reports[i].Time.Sub(reports[0].Time).Seconds()
}

// RenderHTML writes a standalone page with the stick and wheel angles and the
// axis value over time.
func RenderHTML(w io.Writer, title string, reports []wheel.Report) error {
	step := stride(len(reports))
	var (
		xs         []string
		stickData  []opts.LineData
		wheelData  []opts.LineData
		axisValues []opts.LineData
	)
	for i := 0; i < len(reports); i += step {
		r := reports[i]
		xs = append(xs, strconv.FormatFloat(seconds(reports, i), 'f', 3, 64))
		var stick any = "-"
		if r.Angle != nil {
			stick = wheel.Degrees(*r.Angle)
		}
		stickData = append(stickData, opts.LineData{Value: stick})
		wheelData = append(wheelData, opts.LineData{Value: wheel.Degrees(r.WheelAngle)})
		axisValues = append(axisValues, opts.LineData{Value: r.AxisValue})
	}

	s := Summarize(reports)
	angles := charts.NewLine()
	angles.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("reports=%d synthetic=%d grip=%.0f%%", s.Count, s.Synthetic, 100*s.GripRatio),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "angle (°)"}),
	)
	angles.SetXAxis(xs).
		AddSeries("stick", stickData).
		AddSeries("wheel", wheelData)

	axis := charts.NewLine()
	axis.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Axis value"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: wheel.AxisMin, Max: wheel.AxisMax}),
	)
	axis.SetXAxis(xs).AddSeries("axis", axisValues)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(angles, axis)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// RenderPNG plots the wheel angle over time into dir/name. The file name is
// sanitised and must stay inside dir. It returns the path written.
func RenderPNG(dir, name string, reports []wheel.Report) (string, error) {
	if len(reports) == 0 {
		return "", fmt.Errorf("no reports to plot")
	}
	if filepath.Ext(name) == "" {
		name += ".png"
	}
	path, err := security.OutputPath(dir, name)
	if err != nil {
		return "", err
	}

	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "angle (°)"
	p.Add(plotter.NewGrid())

	step := stride(len(reports))
	wheelPts := make(plotter.XYs, 0, len(reports)/step+1)
	stickPts := make(plotter.XYs, 0, len(reports)/step+1)
	for i := 0; i < len(reports); i += step {
		t := seconds(reports, i)
		wheelPts = append(wheelPts, plotter.XY{X: t, Y: wheel.Degrees(reports[i].WheelAngle)})
		if a := reports[i].Angle; a != nil {
			stickPts = append(stickPts, plotter.XY{X: t, Y: wheel.Degrees(*a)})
		}
	}

	wheelLine, err := plotter.NewLine(wheelPts)
	if err != nil {
		return "", err
	}
	wheelLine.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	wheelLine.Width = vg.Points(1.5)
	p.Add(wheelLine)
	p.Legend.Add("wheel", wheelLine)

	if len(stickPts) > 0 {
		stick, err := plotter.NewScatter(stickPts)
		if err != nil {
			return "", err
		}
		stick.Color = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
		stick.Radius = vg.Points(0.8)
		p.Add(stick)
		p.Legend.Add("stick", stick)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save plot: %w", err)
	}
	return path, nil
}
