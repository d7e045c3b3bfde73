// Package msdata holds mass spectra as paired mass and intensity arrays
// and provides windowed access to them.
package msdata

import (
	"errors"
	"sort"
)

var (
	ErrLengthMismatch = errors.New("mass and intensity arrays differ in length")
	ErrEmpty          = errors.New("spectrum has no data points")
	ErrUnsortedMass   = errors.New("mass array is not sorted ascending")
)

// Spectrum is a mass spectrum with the mass axis sorted ascending.
type Spectrum struct {
	Mass      []float64
	Intensity []float64
}

// New validates the arrays and wraps them in a Spectrum. The slices are
// retained, not copied.
func New(mass, intensity []float64) (*Spectrum, error) {
	if len(mass) != len(intensity) {
		return nil, ErrLengthMismatch
	}
	if len(mass) == 0 {
		return nil, ErrEmpty
	}
	if !sort.Float64sAreSorted(mass) {
		return nil, ErrUnsortedMass
	}
	return &Spectrum{Mass: mass, Intensity: intensity}, nil
}

func (s *Spectrum) Len() int {
	return len(s.Mass)
}

// Window returns the index range [start, end) of points with
// lo <= mass < hi.
func (s *Spectrum) Window(lo, hi float64) (start, end int) {
	start = sort.SearchFloat64s(s.Mass, lo)
	end = sort.SearchFloat64s(s.Mass, hi)
	return start, end
}

// MaxIn returns the index of the most intense point with
// lo <= mass < hi, or -1 when the window is empty.
func (s *Spectrum) MaxIn(lo, hi float64) int {
	start, end := s.Window(lo, hi)
	if start >= end {
		return -1
	}
	best := start
	for i := start + 1; i < end; i++ {
		if s.Intensity[i] > s.Intensity[best] {
			best = i
		}
	}
	return best
}

// BasePeak returns the mass and intensity of the most intense point.
func (s *Spectrum) BasePeak() (mass, intensity float64) {
	best := 0
	for i := 1; i < len(s.Intensity); i++ {
		if s.Intensity[i] > s.Intensity[best] {
			best = i
		}
	}
	return s.Mass[best], s.Intensity[best]
}

// InterpIntensity linearly interpolates the intensity at mass m,
// clamping to the first or last point outside the mass range.
func (s *Spectrum) InterpIntensity(m float64) float64 {
	if m <= s.Mass[0] {
		return s.Intensity[0]
	}
	if m >= s.Mass[len(s.Mass)-1] {
		return s.Intensity[len(s.Intensity)-1]
	}
	i := sort.SearchFloat64s(s.Mass, m)
	if s.Mass[i] == m {
		return s.Intensity[i]
	}
	// s.Mass[i-1] < m < s.Mass[i]
	t := (m - s.Mass[i-1]) / (s.Mass[i] - s.Mass[i-1])
	return s.Intensity[i-1] + t*(s.Intensity[i]-s.Intensity[i-1])
}

// Area integrates the intensity over [lo, hi] with the trapezoid rule,
// interpolating the intensity at both window edges.
func (s *Spectrum) Area(lo, hi float64) float64 {
	if hi <= lo || hi <= s.Mass[0] || lo > s.Mass[len(s.Mass)-1] {
		return 0
	}
	start, end := s.Window(lo, hi)

	masses := make([]float64, 0, end-start+2)
	intens := make([]float64, 0, end-start+2)
	if start >= len(s.Mass) || s.Mass[start] != lo {
		masses = append(masses, lo)
		intens = append(intens, s.InterpIntensity(lo))
	}
	masses = append(masses, s.Mass[start:end]...)
	intens = append(intens, s.Intensity[start:end]...)
	masses = append(masses, hi)
	intens = append(intens, s.InterpIntensity(hi))

	var area float64
	for i := 1; i < len(masses); i++ {
		area += (masses[i] - masses[i-1]) * (intens[i] + intens[i-1]) / 2
	}
	return area
}

// ShiftMass adds offset to every mass in place.
func (s *Spectrum) ShiftMass(offset float64) {
	for i := range s.Mass {
		s.Mass[i] += offset
	}
}
