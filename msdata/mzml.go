package msdata

import (
	"errors"
	"io"
	"sort"

	"dget/internal/mzml"
)

var ErrNoMS1Scan = errors.New("mzML file contains no MS1 scan")

// ReadMzML reads one scan of an mzML file as a Spectrum. A negative
// scanIndex selects the MS1 scan with the highest summed intensity.
func ReadMzML(r io.Reader, scanIndex int) (*Spectrum, error) {
	f, err := mzml.Read(r)
	if err != nil {
		return nil, err
	}
	if scanIndex < 0 {
		scanIndex, err = brightestMS1(&f)
		if err != nil {
			return nil, err
		}
	}
	mass, intensity, err := f.ReadScan(scanIndex)
	if err != nil {
		return nil, err
	}
	if !sort.Float64sAreSorted(mass) {
		sortByMass(mass, intensity)
	}
	return New(mass, intensity)
}

func brightestMS1(f *mzml.MzML) (int, error) {
	best, bestSum := -1, 0.0
	for i := 0; i < f.NumSpecs(); i++ {
		level, err := f.MSLevel(i)
		if err != nil || level != 1 {
			continue
		}
		_, intensity, err := f.ReadScan(i)
		if err != nil {
			return 0, err
		}
		sum := 0.0
		for _, v := range intensity {
			sum += v
		}
		if best < 0 || sum > bestSum {
			best, bestSum = i, sum
		}
	}
	if best < 0 {
		return 0, ErrNoMS1Scan
	}
	return best, nil
}

func sortByMass(mass, intensity []float64) {
	idx := make([]int, len(mass))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return mass[idx[a]] < mass[idx[b]] })
	m := make([]float64, len(mass))
	v := make([]float64, len(intensity))
	for i, j := range idx {
		m[i], v[i] = mass[j], intensity[j]
	}
	copy(mass, m)
	copy(intensity, v)
}
