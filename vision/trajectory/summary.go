package trajectory

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/vo/utils"
)

// ErrNoSamples is returned when a statistic is requested before any update.
var ErrNoSamples = errors.New("no trajectory error samples")

// Summary describes the error series of a run.
type Summary struct {
	Frames int
	Mean   float64
	Median float64
	Max    float64
	RMSE   float64
}

// Summary computes aggregate statistics over the error series.
func (e *Evaluator) Summary() (Summary, error) {
	if len(e.errors) == 0 {
		return Summary{}, ErrNoSamples
	}
	data := stats.Float64Data(e.errors)
	mean, err := data.Mean()
	if err != nil {
		return Summary{}, err
	}
	median, err := data.Median()
	if err != nil {
		return Summary{}, err
	}
	maxErr, err := data.Max()
	if err != nil {
		return Summary{}, err
	}
	squares := make(stats.Float64Data, len(data))
	for i, v := range data {
		squares[i] = v * v
	}
	meanSquare, err := squares.Mean()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Frames: len(data),
		Mean:   mean,
		Median: median,
		Max:    maxErr,
		RMSE:   math.Sqrt(meanSquare),
	}, nil
}

// String prints the summary as a two column table.
func (s Summary) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Statistic", "Value"})
	t.AppendRow(table.Row{"frames", s.Frames})
	t.AppendRow(table.Row{"mean error (m)", fmt.Sprintf("%.4f", s.Mean)})
	t.AppendRow(table.Row{"median error (m)", fmt.Sprintf("%.4f", s.Median)})
	t.AppendRow(table.Row{"max error (m)", fmt.Sprintf("%.4f", s.Max)})
	t.AppendRow(table.Row{"rmse (m)", fmt.Sprintf("%.4f", s.RMSE)})
	return t.Render()
}

// SaveErrorPlot renders the per-frame error and its running mean as a line chart.
func (e *Evaluator) SaveErrorPlot(path string) error {
	if len(e.errors) == 0 {
		return ErrNoSamples
	}
	p := plot.New()
	p.Title.Text = "Localization error"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "error (m)"

	perFrame := make(plotter.XYs, len(e.errors))
	running := make(plotter.XYs, len(e.errors))
	sum := 0.0
	for i, v := range e.errors {
		sum += v
		perFrame[i] = plotter.XY{X: float64(i + 1), Y: v}
		running[i] = plotter.XY{X: float64(i + 1), Y: sum / float64(i+1)}
	}

	errLine, err := plotter.NewLine(perFrame)
	if err != nil {
		return err
	}
	errLine.Width = vg.Points(1)
	errLine.Color = referenceColor

	meanLine, err := plotter.NewLine(running)
	if err != nil {
		return err
	}
	meanLine.Width = vg.Points(1)
	meanLine.Color = estimatedColor

	p.Add(errLine, meanLine)
	p.Legend.Add("error", errLine)
	p.Legend.Add("mean", meanLine)

	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "cannot save error plot %q", path)
	}
	return nil
}
