package report

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// DefaultChartReactions is how many reactions a flux chart shows when not told otherwise.
const DefaultChartReactions = 25

// topByMagnitude returns up to n rows carrying flux, largest |flux| first, ties by id.
func topByMagnitude(rows []FluxRow, n int) []FluxRow {
	var withFlux []FluxRow
	for _, r := range rows {
		if r.HasFlux && r.Flux != 0 {
			withFlux = append(withFlux, r)
		}
	}
	sort.SliceStable(withFlux, func(i, j int) bool {
		ai, aj := math.Abs(withFlux[i].Flux), math.Abs(withFlux[j].Flux)
		if ai != aj {
			return ai > aj
		}
		return withFlux[i].ID < withFlux[j].ID
	})
	if n > 0 && len(withFlux) > n {
		withFlux = withFlux[:n]
	}
	return withFlux
}

// FluxChartSVG renders the top reactions by flux magnitude as a bar chart and returns the SVG.
func FluxChartSVG(title string, rows []FluxRow, top int) (string, error) {
	if top <= 0 {
		top = DefaultChartReactions
	}
	selected := topByMagnitude(rows, top)
	if len(selected) == 0 {
		return "", fmt.Errorf("report: no reaction carries flux")
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Flux"

	values := make(plotter.Values, len(selected))
	names := make([]string, len(selected))
	for i, r := range selected {
		values[i] = r.Flux
		names[i] = r.ID
	}

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return "", err
	}
	bars.Color = color.RGBA{R: 50, G: 100, B: 200, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 2.5
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	var buf bytes.Buffer
	writer, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "svg")
	if err != nil {
		return "", err
	}
	if _, err := writer.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteFluxChart writes FluxChartSVG to path.
func WriteFluxChart(path, title string, rows []FluxRow, top int) error {
	svg, err := FluxChartSVG(title, rows, top)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(svg), 0o644)
}
