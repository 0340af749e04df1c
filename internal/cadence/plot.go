package cadence

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WritePlot renders the inter-frame intervals of s as a PNG line chart with
// the nominal interval drawn as a reference line.
func WritePlot(w io.Writer, title string, s Stats) error {
	if len(s.Intervals) == 0 {
		return fmt.Errorf("no intervals to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Interval (ms)"

	pts := make(plotter.XYs, len(s.Intervals))
	for i, iv := range s.Intervals {
		pts[i] = plotter.XY{X: float64(i + 1), Y: iv * 1000}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("create interval line: %w", err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("interval", line)

	if s.Nominal > 0 {
		nominal := 1000 / s.Nominal
		ref, err := plotter.NewLine(plotter.XYs{
			{X: 1, Y: nominal},
			{X: float64(len(s.Intervals)), Y: nominal},
		})
		if err != nil {
			return fmt.Errorf("create nominal line: %w", err)
		}
		ref.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		ref.Width = vg.Points(1)
		ref.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(ref)
		p.Legend.Add(fmt.Sprintf("nominal %.2f fps", s.Nominal), ref)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render cadence plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write cadence plot: %w", err)
	}
	return nil
}
