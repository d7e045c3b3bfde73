package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"dget"
	"dget/deconv"
)

// savePlot writes a PNG of the raw trace around the target region with
// the scaled deconvolved prediction and the adduct isotope pattern
// overlaid as stems.
func savePlot(d *dget.DGet, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s", d.BaseFormula(), d.Adduct().Notation)
	p.X.Label.Text = "m/z"
	p.Y.Label.Text = "signal"

	targets := d.TargetMasses()
	data := d.Data()
	start, end := data.Window(targets[0]-5, targets[len(targets)-1]+5)
	if start >= end {
		start, end = 0, data.Len()
	}

	raw := make(plotter.XYs, 0, end-start)
	var maxRaw float64
	for i := start; i < end; i++ {
		raw = append(raw, plotter.XY{X: data.Mass[i], Y: data.Intensity[i]})
		if data.Intensity[i] > maxRaw {
			maxRaw = data.Intensity[i]
		}
	}
	line, err := plotter.NewLine(raw)
	if err != nil {
		return err
	}
	line.Color = color.Black
	p.Add(line)
	p.Legend.Add("Data", line)

	probs, err := d.DeuterationProbabilities()
	if err != nil {
		return err
	}
	pred := deconv.Convolve(probs, d.PSF())
	predStems, err := stems(targets, pred, maxRaw,
		color.RGBA{R: 0xd6, G: 0x5f, B: 0x00, A: 0xff}, nil)
	if err != nil {
		return err
	}
	for _, s := range predStems {
		p.Add(s)
	}
	if len(predStems) > 0 {
		p.Legend.Add("Deconvolved Spectra", predStems[0])
	}

	entries := d.Spectrum()
	masses := make([]float64, len(entries))
	for i, e := range entries {
		masses[i] = e.Mz
	}
	psfStems, err := stems(masses, d.PSF(), maxRaw,
		color.RGBA{R: 0x00, G: 0x57, B: 0xb8, A: 0xff},
		[]vg.Length{vg.Points(3), vg.Points(2)})
	if err != nil {
		return err
	}
	for _, s := range psfStems {
		p.Add(s)
	}
	if len(psfStems) > 0 {
		p.Legend.Add("Adduct Spectra", psfStems[0])
	}

	p.Legend.Top = true
	return p.Save(18*vg.Centimeter, 11*vg.Centimeter, path)
}

// stems builds one vertical line per (x, y) pair, scaled so the tallest
// stem matches the raw data maximum.
func stems(xs, ys []float64, maxRaw float64, c color.Color, dashes []vg.Length) ([]*plotter.Line, error) {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	var maxY float64
	for _, y := range ys[:n] {
		if y > maxY {
			maxY = y
		}
	}
	if maxY <= 0 {
		return nil, nil
	}
	scale := maxRaw / maxY

	lines := make([]*plotter.Line, 0, n)
	for i := 0; i < n; i++ {
		if ys[i] <= 0 {
			continue
		}
		l, err := plotter.NewLine(plotter.XYs{
			{X: xs[i], Y: 0},
			{X: xs[i], Y: ys[i] * scale},
		})
		if err != nil {
			return nil, err
		}
		l.Color = c
		l.Dashes = dashes
		lines = append(lines, l)
	}
	return lines, nil
}
