// Package dget calculates the fractional deuteration of a compound
// from high resolution mass spectrometry data.
//
// The calculation compares the observed spectrum against the predicted
// isotope pattern of every deuteration state of the fully deuterated
// molecular formula. The observed signals are deconvolved by the
// natural isotope pattern of the adduct ion, which recovers the
// per-state probability distribution.
package dget

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"dget/adduct"
	"dget/deconv"
	"dget/formula"
	"dget/msdata"
)

// Signal extraction modes.
const (
	ModePeakHeight = "peak height"
	ModePeakArea   = "peak area"
	ModeRaw        = "raw"
)

// MinFractionForSpectra is the smallest isotope fraction considered
// when generating predicted spectra.
const MinFractionForSpectra = 1e-3

var (
	ErrNoDeuterium      = errors.New("formula contains no deuterium")
	ErrBadCutoff        = errors.New("cutoff must be an m/z value or 'D<int>'")
	ErrBadMassWidth     = errors.New("signal mass width must be positive")
	ErrBadSignalMode    = errors.New("signal mode must be 'peak area', 'peak height' or 'raw'")
	ErrTargetOutOfRange = errors.New("m/z target falls outside of mass spectrum")
	ErrNoSignal         = errors.New("no signal found at any target m/z")
)

// Options configures a calculation. The zero value selects the [M]+
// adduct, automatic cutoff, a 0.5 Da window and peak height extraction.
type Options struct {
	Adduct    string // adduct notation, default "[M]+"
	Cutoff    string // "" for automatic, "D<int>" for a state, or an m/z value
	MassWidth float64
	Mode      string
}

// DGet computes deuteration from a fully deuterated formula and a mass
// spectrum. Derived arrays are memoized and recomputed whenever the
// spectrum, mass width, signal mode or adduct changes.
type DGet struct {
	adduct *adduct.Adduct
	data   *msdata.Spectrum

	massWidth float64
	mode      string

	cutoffState int     // -1 when no state cutoff
	cutoffMz    float64 // NaN when no m/z cutoff

	targets []float64
	psf     []float64

	signals    []float64
	probs      []float64
	remainders []float64
}

// New parses the fully deuterated formula, builds the adduct ion and
// its deuteration state targets, and binds the mass spectrum. data is
// retained, not copied: AlignToSpectrum and SubtractBaseline modify it
// in place.
func New(deuteratedFormula string, data *msdata.Spectrum, opts Options) (*DGet, error) {
	base, err := formula.Parse(deuteratedFormula)
	if err != nil {
		return nil, err
	}

	notation := opts.Adduct
	if notation == "" {
		notation = "[M]+"
	}
	a, err := adduct.Parse(base, notation)
	if err != nil {
		return nil, err
	}
	if a.DeuteriumCount() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDeuterium, base)
	}

	d := &DGet{
		adduct:    a,
		data:      data,
		massWidth: opts.MassWidth,
		mode:      opts.Mode,
	}
	if d.massWidth == 0 {
		d.massWidth = 0.5
	}
	if d.massWidth < 0 {
		return nil, fmt.Errorf("%w: %g", ErrBadMassWidth, d.massWidth)
	}
	if d.mode == "" {
		d.mode = ModePeakHeight
	}
	if d.mode != ModePeakHeight && d.mode != ModePeakArea && d.mode != ModeRaw {
		return nil, fmt.Errorf("%w: %q", ErrBadSignalMode, d.mode)
	}
	if d.cutoffState, d.cutoffMz, err = parseCutoff(opts.Cutoff); err != nil {
		return nil, err
	}

	d.computeTargets()
	return d, nil
}

func parseCutoff(s string) (state int, mz float64, err error) {
	state, mz = -1, math.NaN()
	if s == "" {
		return state, mz, nil
	}
	if strings.HasPrefix(s, "D") {
		state, err = strconv.Atoi(s[1:])
		if err != nil || state < 0 {
			return -1, mz, fmt.Errorf("%w: %q", ErrBadCutoff, s)
		}
		return state, mz, nil
	}
	mz, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return state, math.NaN(), fmt.Errorf("%w: %q", ErrBadCutoff, s)
	}
	return state, mz, nil
}

// computeTargets builds the merged target mass axis and the point
// spread function. The targets combine the spectra of every state from
// D0 to fully deuterated, grouped by nominal mass with each group
// reduced to its fraction weighted mean m/z.
func (d *DGet) computeTargets() {
	n := d.adduct.DeuteriumCount()
	dAtom := formula.MustParse("D")
	hAtom := formula.MustParse("H")

	type bin struct {
		weight float64
		massW  float64
	}
	bins := make(map[int]*bin)
	accumulate := func(entries []formula.Entry) {
		for _, e := range entries {
			b := bins[e.Nominal]
			if b == nil {
				b = &bin{}
				bins[e.Nominal] = b
			}
			b.weight += e.Fraction
			b.massW += e.Fraction * e.Mz
		}
	}

	full := d.adduct.Resultant
	for i := n; i >= 1; i-- {
		f, err := full.Subtract(dAtom.Scale(i))
		if err != nil {
			// Cannot happen, the resultant holds n deuterium.
			panic(err)
		}
		accumulate(f.Add(hAtom.Scale(i)).Spectrum(MinFractionForSpectra))
	}
	spectrum := full.Spectrum(MinFractionForSpectra)
	accumulate(spectrum)

	d.targets = make([]float64, 0, len(bins))
	for _, b := range bins {
		d.targets = append(d.targets, b.massW/b.weight)
	}
	sort.Float64s(d.targets)

	var sum float64
	for _, e := range spectrum {
		sum += e.Fraction
	}
	d.psf = make([]float64, 0, len(spectrum))
	for _, e := range spectrum {
		d.psf = append(d.psf, e.Fraction/sum)
	}

	d.invalidate()
}

func (d *DGet) invalidate() {
	d.signals = nil
	d.probs = nil
	d.remainders = nil
}

// Adduct returns the adduct ion of the calculation.
func (d *DGet) Adduct() *adduct.Adduct {
	return d.adduct
}

// BaseFormula returns the fully deuterated neutral formula.
func (d *DGet) BaseFormula() formula.Formula {
	return d.adduct.Base
}

// Data returns the bound mass spectrum.
func (d *DGet) Data() *msdata.Spectrum {
	return d.data
}

// DeuteriumCount returns the number of deuterium atoms in the adduct.
func (d *DGet) DeuteriumCount() int {
	return d.adduct.DeuteriumCount()
}

// MassWidth returns the extraction window width in mass units.
func (d *DGet) MassWidth() float64 {
	return d.massWidth
}

// TargetMasses returns the merged m/z targets of all deuteration
// states. The first DeuteriumCount+1 entries correspond to the states
// D0 up to fully deuterated, the rest cover the natural isotope tail.
func (d *DGet) TargetMasses() []float64 {
	return d.targets
}

// PSF returns the point spread function used for deconvolution, the
// normalised isotope pattern of the adduct ion.
func (d *DGet) PSF() []float64 {
	return d.psf
}

// Spectrum returns the predicted isotope spectrum of the adduct ion.
func (d *DGet) Spectrum() []formula.Entry {
	return d.adduct.Spectrum(MinFractionForSpectra)
}

// SetAdduct replaces the adduct and rebuilds the targets.
func (d *DGet) SetAdduct(notation string) error {
	a, err := adduct.Parse(d.adduct.Base, notation)
	if err != nil {
		return err
	}
	if a.DeuteriumCount() == 0 {
		return fmt.Errorf("%w: %s as %s", ErrNoDeuterium, d.adduct.Base, notation)
	}
	d.adduct = a
	d.computeTargets()
	return nil
}

// SetMassWidth changes the extraction window width.
func (d *DGet) SetMassWidth(width float64) error {
	if width <= 0 {
		return fmt.Errorf("%w: %g", ErrBadMassWidth, width)
	}
	d.massWidth = width
	d.invalidate()
	return nil
}

// SetSignalMode changes the signal extraction mode.
func (d *DGet) SetSignalMode(mode string) error {
	if mode != ModePeakHeight && mode != ModePeakArea && mode != ModeRaw {
		return fmt.Errorf("%w: %q", ErrBadSignalMode, mode)
	}
	d.mode = mode
	d.invalidate()
	return nil
}

// SetCutoff changes the lowest-state cutoff. An empty string selects
// the automatic rule.
func (d *DGet) SetCutoff(cutoff string) error {
	state, mz, err := parseCutoff(cutoff)
	if err != nil {
		return err
	}
	d.cutoffState, d.cutoffMz = state, mz
	return nil
}

// TargetSignals extracts and normalises the signal at every target
// m/z. Targets outside the spectrum read as zero and are reported as a
// warning. The result is memoized until an input changes.
func (d *DGet) TargetSignals() ([]float64, error) {
	if d.signals != nil {
		return d.signals, nil
	}

	counts := make([]float64, len(d.targets))
	outside := 0
	for i, t := range d.targets {
		lo, hi := t-d.massWidth/2, t+d.massWidth/2
		start, end := d.data.Window(lo, hi)
		if start >= end || end >= d.data.Len()-1 {
			outside++
			continue
		}
		if d.mode == ModePeakArea {
			counts[i] = d.data.Area(lo, hi)
		} else {
			counts[i] = d.data.Intensity[d.data.MaxIn(lo, hi)]
		}
	}
	if outside > 0 {
		log.Printf("warning: %d of %d m/z targets fall outside of mass spectrum",
			outside, len(d.targets))
	}

	var sum float64
	for _, c := range counts {
		sum += c
	}
	if sum <= 0 {
		return nil, ErrNoSignal
	}
	for i := range counts {
		counts[i] /= sum
	}
	d.signals = counts
	return d.signals, nil
}

// DeuterationProbabilities returns the probability of each deuteration
// state, listed from D0 upward. Except in raw mode the signals are
// deconvolved by the PSF, clipped of negative values and renormalised
// to sum 1.
func (d *DGet) DeuterationProbabilities() ([]float64, error) {
	if d.probs != nil {
		return d.probs, nil
	}
	signals, err := d.TargetSignals()
	if err != nil {
		return nil, err
	}

	if d.mode == ModeRaw {
		d.probs = signals
		d.remainders = nil
		return d.probs, nil
	}

	probs, remainders, err := deconv.Deconvolve(signals, d.psf)
	if err != nil {
		return nil, err
	}
	var sum float64
	for i, p := range probs {
		if p < 0 {
			probs[i] = 0
		} else {
			sum += p
		}
	}
	if sum <= 0 {
		return nil, ErrNoSignal
	}
	for i := range probs {
		probs[i] /= sum
	}
	d.probs = probs
	d.remainders = remainders
	return d.probs, nil
}

// DeuterationStates returns the deuteration states included in the
// aggregate estimate, from the cutoff state up to the fully deuterated
// state.
func (d *DGet) DeuterationStates() ([]int, error) {
	probs, err := d.DeuterationProbabilities()
	if err != nil {
		return nil, err
	}
	n := d.DeuteriumCount()

	lowest := 0
	switch {
	case d.cutoffState >= 0:
		lowest = d.cutoffState
	case !math.IsNaN(d.cutoffMz):
		lowest = sort.SearchFloat64s(d.targets, d.cutoffMz)
	default:
		lowest = autoCutoffState(probs, n)
	}
	if lowest > n {
		lowest = n
	}
	if lowest < 0 {
		lowest = 0
	}

	states := make([]int, 0, n-lowest+1)
	for s := lowest; s <= n; s++ {
		states = append(states, s)
	}
	return states, nil
}

// autoCutoffState scans the probabilities from the high deuteration
// end downward for the first pair of consecutive states both below 1%,
// past the point where the cumulative probability exceeds 10%. States
// below that pair are excluded. Without such a pair all states are
// kept.
func autoCutoffState(probs []float64, n int) int {
	if len(probs) > n+1 {
		probs = probs[:n+1]
	}
	rev := make([]float64, len(probs))
	for i, p := range probs {
		rev[len(probs)-1-i] = p
	}

	past := len(rev)
	var cum float64
	for i, p := range rev {
		cum += p
		if cum > 0.1 {
			past = i
			break
		}
	}

	for i := 0; i+1 < len(rev); i++ {
		if i > past && rev[i] < 0.01 && rev[i+1] < 0.01 {
			return len(probs) - 1 - i
		}
	}
	return 0
}

// Deuteration returns the fraction of deuterium positions successfully
// deuterated, the probability weighted mean state divided by the
// deuterium count, restricted to the states above the cutoff.
func (d *DGet) Deuteration() (float64, error) {
	states, err := d.DeuterationStates()
	if err != nil {
		return 0, err
	}
	probs, _ := d.DeuterationProbabilities()

	var weighted, sum float64
	for _, s := range states {
		weighted += probs[s] * float64(s)
		sum += probs[s]
	}
	if sum <= 0 {
		return 0, ErrNoSignal
	}
	return weighted / sum / float64(d.DeuteriumCount()), nil
}

// ResidualError estimates the accuracy of the deconvolution as the sum
// of absolute residuals over the used and overflow states relative to
// their probability mass. Raw mode skips deconvolution, so the result
// is NaN there.
func (d *DGet) ResidualError() (float64, error) {
	states, err := d.DeuterationStates()
	if err != nil {
		return 0, err
	}
	if d.mode == ModeRaw {
		return math.NaN(), nil
	}
	probs, _ := d.DeuterationProbabilities()

	top := states[len(states)-1]
	var mass, residual float64
	for _, s := range states {
		mass += probs[s]
		residual += math.Abs(d.remainders[s])
	}
	for i := top + 1; i < len(probs); i++ {
		mass += probs[i]
	}
	for i := top + 1; i < len(d.remainders); i++ {
		residual += math.Abs(d.remainders[i])
	}
	if mass <= 0 {
		return 0, ErrNoSignal
	}
	return residual / mass, nil
}

// AlignToSpectrum shifts the mass axis so the most intense peak within
// MassWidth of alignMz lands exactly on it. An alignMz of 0 aligns on
// the adduct's monoisotopic m/z. Returns the applied offset.
//
// Calibrating the instrument is always preferable to this.
func (d *DGet) AlignToSpectrum(alignMz float64) (float64, error) {
	if alignMz == 0 {
		alignMz = d.adduct.MonoisotopicMz()
	}
	start, end := d.data.Window(alignMz-d.massWidth, alignMz+d.massWidth)
	if start >= end {
		return 0, fmt.Errorf("%w: cannot align on %.4f", ErrTargetOutOfRange, alignMz)
	}
	offset := alignMz - d.data.Mass[d.data.MaxIn(alignMz-d.massWidth, alignMz+d.massWidth)]
	if math.Abs(offset) > 0.5 {
		log.Printf("warning: alignment offset %.4f greater than 0.5 Da", offset)
	}
	d.data.ShiftMass(offset)
	d.invalidate()
	return offset, nil
}

// SubtractBaseline subtracts the given percentile of the intensity in
// [lo, hi] from the whole spectrum. Passing lo = hi = 0 uses the full
// mass range. Returns the subtracted baseline.
func (d *DGet) SubtractBaseline(lo, hi, percentile float64) (float64, error) {
	if percentile < 0 || percentile > 100 {
		return 0, fmt.Errorf("percentile must be in [0, 100], got %g", percentile)
	}
	start, end := 0, d.data.Len()
	if lo != 0 || hi != 0 {
		start, end = d.data.Window(lo, hi)
	}
	if start >= end {
		return 0, fmt.Errorf("%w: baseline range [%g, %g]", ErrTargetOutOfRange, lo, hi)
	}

	window := make([]float64, end-start)
	copy(window, d.data.Intensity[start:end])
	sort.Float64s(window)
	baseline := stat.Quantile(percentile/100, stat.Empirical, window, nil)

	for i := range d.data.Intensity {
		d.data.Intensity[i] -= baseline
	}
	d.invalidate()
	return baseline, nil
}

// GuessAdductFromBasePeak searches the candidate adducts for the one
// whose spectral range holds the most intense peak. Ties are broken by
// the distance between that peak and the candidate's monoisotopic m/z.
// A nil candidate list searches adduct.Common. Returns the best adduct
// and the m/z difference to the peak; the calculation itself is not
// changed.
//
// This works best on highly deuterated samples.
func (d *DGet) GuessAdductFromBasePeak(candidates []string) (*adduct.Adduct, float64, error) {
	if candidates == nil {
		candidates = adduct.Common
	}

	type hit struct {
		adduct    *adduct.Adduct
		mz        float64
		intensity float64
		peakMass  float64
	}
	var hits []hit
	for _, s := range candidates {
		a, err := adduct.Parse(d.adduct.Base, s)
		if err != nil {
			continue
		}
		mz := a.MonoisotopicMz()
		lo, hi := a.MzRange(MinFractionForSpectra)
		// Expand by 1% of the mass to allow for calibration error.
		lo, hi = lo-mz*0.01, hi+mz*0.01

		idx := d.data.MaxIn(lo, hi)
		if idx < 0 {
			continue
		}
		hits = append(hits, hit{
			adduct:    a,
			mz:        mz,
			intensity: d.data.Intensity[idx],
			peakMass:  d.data.Mass[idx],
		})
	}
	if len(hits) == 0 {
		return nil, 0, fmt.Errorf("%w: no candidate adduct overlaps the spectrum",
			ErrTargetOutOfRange)
	}

	best := hits[0]
	for _, h := range hits[1:] {
		if h.intensity > best.intensity ||
			h.intensity == best.intensity &&
				math.Abs(h.peakMass-h.mz) < math.Abs(best.peakMass-best.mz) {
			best = h
		}
	}
	return best.adduct, best.mz - best.peakMass, nil
}

// Report writes the calculation summary and the per-state probability
// table.
func (d *DGet) Report(w io.Writer) error {
	pd, err := d.Deuteration()
	if err != nil {
		return err
	}
	residual, err := d.ResidualError()
	if err != nil {
		return err
	}
	states, _ := d.DeuterationStates()
	probs, _ := d.DeuterationProbabilities()

	var sum float64
	for _, s := range states {
		sum += probs[s]
	}

	fmt.Fprintf(w, "Formula          : %s\n", d.adduct.Base)
	fmt.Fprintf(w, "Adduct           : %s\n", d.adduct.Notation)
	fmt.Fprintf(w, "M/Z              : %.4f\n", d.adduct.Base.Monoisotopic())
	fmt.Fprintf(w, "Adduct M/Z       : %.4f\n", d.adduct.MonoisotopicMz())
	if math.IsNaN(residual) {
		fmt.Fprintf(w, "%%Deuteration     : %.2f %%\n", pd*100)
	} else {
		fmt.Fprintf(w, "%%Deuteration     : %.2f ± %.2f %%\n", pd*100, residual*100)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Deuteration Ratio Spectra")
	for _, s := range states {
		fmt.Fprintf(w, "D%-2d              : %5.2f %%\n", s, probs[s]/sum*100)
	}
	return nil
}
