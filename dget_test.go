package dget

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dget/deconv"
	"dget/msdata"
)

// syntheticSpectrum builds a mass spectrum with a narrow peak of the
// given height at every target m/z, padded on both sides so all
// extraction windows fall inside the data.
func syntheticSpectrum(t *testing.T, targets, heights []float64) *msdata.Spectrum {
	t.Helper()
	if len(targets) != len(heights) {
		t.Fatalf("targets and heights differ: %d != %d", len(targets), len(heights))
	}

	mass := []float64{targets[0] - 2}
	intensity := []float64{0}
	for i, tg := range targets {
		mass = append(mass, tg-0.1, tg, tg+0.1)
		intensity = append(intensity, 0, heights[i], 0)
	}
	last := targets[len(targets)-1]
	mass = append(mass, last+2, last+2.5)
	intensity = append(intensity, 0, 0)

	s, err := msdata.New(mass, intensity)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// newSynthetic builds a DGet whose spectrum is the given state
// probability vector convolved with the compound's own isotope
// pattern.
func newSynthetic(t *testing.T, formulaStr string, stateProbs []float64, opts Options) *DGet {
	t.Helper()
	dummy, err := msdata.New([]float64{1, 2}, []float64{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	probe, err := New(formulaStr, dummy, opts)
	if err != nil {
		t.Fatal(err)
	}

	targets := probe.TargetMasses()
	heights := deconv.Convolve(stateProbs, probe.PSF())
	if len(heights) < len(targets) {
		heights = append(heights, make([]float64, len(targets)-len(heights))...)
	}

	d, err := New(formulaStr, syntheticSpectrum(t, targets, heights[:len(targets)]), opts)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestNewErrors(t *testing.T) {
	data, _ := msdata.New([]float64{1, 2}, []float64{0, 0})

	if _, err := New("C6H6", data, Options{}); !errors.Is(err, ErrNoDeuterium) {
		t.Errorf("no deuterium: got %v", err)
	}
	if _, err := New("not a formula!", data, Options{}); err == nil {
		t.Error("bad formula: expected error")
	}
	if _, err := New("CD4", data, Options{Adduct: "M+"}); err == nil {
		t.Error("bad adduct: expected error")
	}
	if _, err := New("CD4", data, Options{MassWidth: -0.5}); !errors.Is(err, ErrBadMassWidth) {
		t.Errorf("negative width: got %v", err)
	}
	if _, err := New("CD4", data, Options{Mode: "centroid"}); !errors.Is(err, ErrBadSignalMode) {
		t.Errorf("bad mode: got %v", err)
	}
	if _, err := New("CD4", data, Options{Cutoff: "Dx"}); !errors.Is(err, ErrBadCutoff) {
		t.Errorf("bad cutoff: got %v", err)
	}
	if _, err := New("CD4", data, Options{Cutoff: "D-1"}); !errors.Is(err, ErrBadCutoff) {
		t.Errorf("negative cutoff: got %v", err)
	}
}

func TestTargetsAndPSF(t *testing.T) {
	d := newSynthetic(t, "CH2D2", []float64{0.6, 0.3, 0.1}, Options{})

	if d.DeuteriumCount() != 2 {
		t.Fatalf("DeuteriumCount = %d, want 2", d.DeuteriumCount())
	}
	targets := d.TargetMasses()
	if len(targets) < 3 {
		t.Fatalf("too few targets: %v", targets)
	}
	for i := 1; i < len(targets); i++ {
		if targets[i] <= targets[i-1] {
			t.Fatalf("targets not sorted: %v", targets)
		}
		if d := targets[i] - targets[i-1]; d < 0.9 || d > 1.1 {
			t.Errorf("target spacing %f, want about 1", d)
		}
	}

	var sum float64
	for _, p := range d.PSF() {
		if p < 0 {
			t.Errorf("negative PSF entry %f", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("PSF sums to %f, want 1", sum)
	}
}

func TestDeuterationRawMode(t *testing.T) {
	// 60% D0, 30% D1, 10% D2 of a two deuterium compound gives a
	// deuteration of 0.25.
	probe := newSynthetic(t, "CH2D2", []float64{1}, Options{Mode: ModeRaw})
	targets := probe.TargetMasses()
	heights := make([]float64, len(targets))
	heights[0], heights[1], heights[2] = 0.6, 0.3, 0.1

	d, err := New("CH2D2", syntheticSpectrum(t, targets, heights),
		Options{Mode: ModeRaw, Cutoff: "D0"})
	if err != nil {
		t.Fatal(err)
	}

	pd, err := d.Deuteration()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pd-0.25) > 1e-9 {
		t.Errorf("Deuteration = %f, want 0.25", pd)
	}

	// Raw mode has no deconvolution residual.
	residual, err := d.ResidualError()
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(residual) {
		t.Errorf("ResidualError = %f, want NaN", residual)
	}
}

func TestDeuterationDeconvolved(t *testing.T) {
	want := []float64{0, 0, 0.25, 0.75}
	for _, mode := range []string{ModePeakHeight, ModePeakArea} {
		d := newSynthetic(t, "C2HD3O", want, Options{Mode: mode})

		probs, err := d.DeuterationProbabilities()
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		var sum float64
		for i, p := range probs {
			if p < 0 {
				t.Errorf("%s: probs[%d] = %f, want >= 0", mode, i, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("%s: probabilities sum to %f, want 1", mode, sum)
		}
		for i := range want {
			if math.Abs(probs[i]-want[i]) > 0.01 {
				t.Errorf("%s: probs[%d] = %f, want %f", mode, i, probs[i], want[i])
			}
		}

		// Weighted mean of states 2 and 3 over 3 deuterium.
		pd, err := d.Deuteration()
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(pd-2.75/3) > 0.01 {
			t.Errorf("%s: Deuteration = %f, want %f", mode, pd, 2.75/3)
		}

		residual, err := d.ResidualError()
		if err != nil {
			t.Fatal(err)
		}
		if residual < 0 || residual > 0.05 {
			t.Errorf("%s: ResidualError = %f", mode, residual)
		}
	}
}

func TestProbabilitiesIdempotent(t *testing.T) {
	d := newSynthetic(t, "CH2D2", []float64{0.2, 0.3, 0.5}, Options{})

	first, err := d.DeuterationProbabilities()
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.DeuterationProbabilities()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated call differs (-first +second):\n%s", diff)
	}
}

func TestAutoCutoffState(t *testing.T) {
	tests := []struct {
		probs []float64
		n     int
		want  int
	}{
		{[]float64{0.5, 0, 0, 0, 0.5}, 4, 3},
		{[]float64{0.25, 0.25, 0.25, 0.25}, 3, 0},
		{[]float64{0, 0, 0, 1}, 3, 2},
		{[]float64{1, 0, 0, 0}, 3, 0},
	}
	for _, tt := range tests {
		if got := autoCutoffState(tt.probs, tt.n); got != tt.want {
			t.Errorf("autoCutoffState(%v) = %d, want %d", tt.probs, got, tt.want)
		}
	}
}

func TestDeuterationStates(t *testing.T) {
	d := newSynthetic(t, "C2HD3O", []float64{0.5, 0, 0, 0.5}, Options{})

	// Cutoff 0 keeps every state.
	if err := d.SetCutoff("D0"); err != nil {
		t.Fatal(err)
	}
	states, err := d.DeuterationStates()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3}, states); diff != "" {
		t.Errorf("D0 states (-want +got):\n%s", diff)
	}

	// Cutoff at the top state keeps only that state.
	if err := d.SetCutoff("D3"); err != nil {
		t.Fatal(err)
	}
	if states, _ = d.DeuterationStates(); len(states) != 1 || states[0] != 3 {
		t.Errorf("D3 states = %v, want [3]", states)
	}

	// A state past the top clamps to it.
	if err := d.SetCutoff("D9"); err != nil {
		t.Fatal(err)
	}
	if states, _ = d.DeuterationStates(); len(states) != 1 || states[0] != 3 {
		t.Errorf("D9 states = %v, want [3]", states)
	}

	// An m/z cutoff selects the first target at or above it.
	mz := strconv.FormatFloat(d.TargetMasses()[2]-0.1, 'f', -1, 64)
	if err := d.SetCutoff(mz); err != nil {
		t.Fatal(err)
	}
	if states, _ = d.DeuterationStates(); len(states) != 2 || states[0] != 2 {
		t.Errorf("m/z cutoff states = %v, want [2 3]", states)
	}
}

func TestNoSignal(t *testing.T) {
	probe := newSynthetic(t, "CH2D2", []float64{1}, Options{})
	targets := probe.TargetMasses()

	d, err := New("CH2D2",
		syntheticSpectrum(t, targets, make([]float64, len(targets))), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.DeuterationProbabilities(); !errors.Is(err, ErrNoSignal) {
		t.Errorf("expected ErrNoSignal, got %v", err)
	}
}

func TestAlignToSpectrum(t *testing.T) {
	d := newSynthetic(t, "CH2D2", []float64{0, 0, 1}, Options{})
	d.Data().ShiftMass(0.2)

	offset, err := d.AlignToSpectrum(0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(offset+0.2) > 0.01 {
		t.Errorf("offset = %f, want about -0.2", offset)
	}

	// A target far outside the data cannot be aligned.
	if _, err := d.AlignToSpectrum(9999); !errors.Is(err, ErrTargetOutOfRange) {
		t.Errorf("expected ErrTargetOutOfRange, got %v", err)
	}
}

func TestSubtractBaseline(t *testing.T) {
	d := newSynthetic(t, "CH2D2", []float64{0.5, 0.3, 0.2}, Options{})
	for i := range d.Data().Intensity {
		d.Data().Intensity[i] += 5
	}

	baseline, err := d.SubtractBaseline(0, 0, 25)
	if err != nil {
		t.Fatal(err)
	}
	// Most points sit on the raised floor, so the 25th percentile is it.
	if math.Abs(baseline-5) > 1e-9 {
		t.Errorf("baseline = %f, want 5", baseline)
	}

	if _, err := d.SubtractBaseline(9000, 9999, 25); !errors.Is(err, ErrTargetOutOfRange) {
		t.Errorf("expected ErrTargetOutOfRange, got %v", err)
	}
	if _, err := d.SubtractBaseline(0, 0, 150); err == nil {
		t.Error("expected error for percentile > 100")
	}
}

func TestGuessAdductFromBasePeak(t *testing.T) {
	// Build the spectrum around the [M+Na]+ ion so the search must
	// prefer it over the default [M]+.
	dummy, _ := msdata.New([]float64{1, 2}, []float64{0, 0})
	probe, err := New("CH2D2", dummy, Options{Adduct: "[M+Na]+"})
	if err != nil {
		t.Fatal(err)
	}
	heights := make([]float64, len(probe.TargetMasses()))
	heights[0], heights[1], heights[2] = 0.6, 0.3, 0.1
	d, err := New("CH2D2",
		syntheticSpectrum(t, probe.TargetMasses(), heights), Options{})
	if err != nil {
		t.Fatal(err)
	}

	best, diff, err := d.GuessAdductFromBasePeak(nil)
	if err != nil {
		t.Fatal(err)
	}
	if best.Notation != "[M+Na]+" {
		t.Errorf("guessed %s, want [M+Na]+", best.Notation)
	}
	if math.Abs(diff) > 0.05 {
		t.Errorf("mass difference %f, want about 0", diff)
	}
}

func TestReport(t *testing.T) {
	d := newSynthetic(t, "C2HD3O", []float64{0, 0, 0.25, 0.75}, Options{})

	var buf bytes.Buffer
	if err := d.Report(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Formula", "C2HD3O", "Adduct", "[M]+", "%Deuteration", "D3"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
