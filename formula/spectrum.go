package formula

import "sort"

// Entry is one line of an isotope spectrum: all isotopologues sharing a
// nominal (unit) mass, reduced to their abundance weighted mean m/z.
type Entry struct {
	Nominal  int     // nominal mass (sum of mass numbers)
	Mz       float64 // mean m/z of the isotopologues in this unit mass bin
	Fraction float64 // absolute abundance fraction
}

// pruneFraction drops isotopologue bins that can never reach a reportable
// fraction, keeping the per element convolution bounded.
const pruneFraction = 1e-12

type bin struct {
	p     float64 // probability
	massP float64 // probability weighted mass sum
}

// Spectrum returns the isotope abundance spectrum of the formula,
// restricted to entries with a fraction of at least minFraction and
// sorted by nominal mass. The m/z values account for the formula's
// charge, including the electron mass.
func (f Formula) Spectrum(minFraction float64) []Entry {
	dist := map[int]bin{0: {p: 1}}
	for sp, cnt := range f.comp {
		single := atomDist(sp)
		for i := 0; i < cnt; i++ {
			dist = convolveDist(dist, single)
		}
	}

	entries := make([]Entry, 0, len(dist))
	for nominal, b := range dist {
		if b.p < minFraction {
			continue
		}
		mass := b.massP / b.p
		mz := mass
		if f.charge != 0 {
			mz = (mass - float64(f.charge)*electronMass) / abs(f.charge)
		}
		entries = append(entries, Entry{Nominal: nominal, Mz: mz, Fraction: b.p})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Nominal < entries[j].Nominal })
	return entries
}

// atomDist returns the isotope distribution of a single atom.
func atomDist(sp species) []Isotope {
	if sp.A != 0 {
		iso, _ := isotopeData(sp.Element, sp.A)
		return []Isotope{{A: iso.A, Mass: iso.Mass, Abundance: 1}}
	}
	var dist []Isotope
	for _, iso := range isotopes[sp.Element] {
		if iso.Abundance > 0 {
			dist = append(dist, iso)
		}
	}
	return dist
}

func convolveDist(dist map[int]bin, atom []Isotope) map[int]bin {
	out := make(map[int]bin, len(dist)+len(atom))
	for nominal, b := range dist {
		mean := b.massP / b.p
		for _, iso := range atom {
			p := b.p * iso.Abundance
			if p < pruneFraction {
				continue
			}
			o := out[nominal+iso.A]
			o.p += p
			o.massP += p * (mean + iso.Mass)
			out[nominal+iso.A] = o
		}
	}
	return out
}
