// Package formula implements molecular formula algebra for mass
// spectrometry: parsing, addition/subtraction/scaling of elemental
// compositions, isotope aware masses and isotope pattern generation.
//
// Formulas are immutable values. All arithmetic returns new formulas.
package formula

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrSyntax              = errors.New("invalid formula")
	ErrUnknownElement      = errors.New("unknown element")
	ErrUnknownIsotope      = errors.New("unknown isotope")
	ErrNegativeComposition = errors.New("subtraction gives negative composition")
)

// species identifies an element or a fixed isotope of an element.
// A == 0 means natural isotopic composition.
type species struct {
	Element string
	A       int
}

// Formula is an elemental composition with an integer net charge.
type Formula struct {
	comp   map[species]int
	charge int
}

// Parse parses a molecular formula string. Element counts, parenthesised
// groups, fixed isotopes in brackets ("[2H]", "[13C]2") and the deuterium
// and tritium shorthands D and T are supported. A charged formula is
// written with surrounding brackets and a trailing charge, for example
// "[C6H7]+" or "[C49H77N12O12]2+".
func Parse(s string) (Formula, error) {
	f := Formula{comp: make(map[species]int)}
	if s == "" {
		return f, fmt.Errorf("%w: empty string", ErrSyntax)
	}

	body, charge, err := splitCharge(s)
	if err != nil {
		return f, err
	}
	p := parser{s: body}
	if err := p.parseInto(f.comp, 1, 0); err != nil {
		return f, err
	}
	f.charge = charge
	return f, nil
}

// MustParse is like Parse but panics on error. For use with constant
// formula strings.
func MustParse(s string) Formula {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// splitCharge splits an optional "[...]n±" charge wrapper from a formula
// string. The wrapper is only recognised when the string ends in a charge
// sign, so isotope brackets like "[2H]8" are left alone.
func splitCharge(s string) (string, int, error) {
	if s[0] != '[' || (s[len(s)-1] != '+' && s[len(s)-1] != '-') {
		return s, 0, nil
	}
	end := strings.LastIndexByte(s, ']')
	if end < 0 {
		return "", 0, fmt.Errorf("%w: unmatched '[' in %q", ErrSyntax, s)
	}
	sign := 1
	if s[len(s)-1] == '-' {
		sign = -1
	}
	mag := 1
	if digits := s[end+1 : len(s)-1]; digits != "" {
		var err error
		mag, err = strconv.Atoi(digits)
		if err != nil || mag < 1 {
			return "", 0, fmt.Errorf("%w: bad charge %q", ErrSyntax, s[end+1:])
		}
	}
	return s[1:end], sign * mag, nil
}

type parser struct {
	s   string
	pos int
}

// parseInto accumulates species counts, multiplied by mult, into comp.
// closer is the rune that ends this nesting level (0 for top level).
func (p *parser) parseInto(comp map[species]int, mult int, closer byte) error {
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == closer && closer != 0:
			p.pos++
			return nil
		case c == '(':
			p.pos++
			group := make(map[species]int)
			if err := p.parseInto(group, 1, ')'); err != nil {
				return err
			}
			n := p.count()
			for sp, cnt := range group {
				addCount(comp, sp, cnt*n*mult)
			}
		case c == '[':
			p.pos++
			sp, err := p.isotope()
			if err != nil {
				return err
			}
			addCount(comp, sp, p.count()*mult)
		case c >= 'A' && c <= 'Z':
			sp, err := p.element()
			if err != nil {
				return err
			}
			addCount(comp, sp, p.count()*mult)
		default:
			return fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, c, p.pos)
		}
	}
	if closer != 0 {
		return fmt.Errorf("%w: missing %q", ErrSyntax, closer)
	}
	return nil
}

func addCount(comp map[species]int, sp species, n int) {
	if n == 0 {
		return
	}
	comp[sp] += n
	if comp[sp] == 0 {
		delete(comp, sp)
	}
}

// element reads one element symbol, mapping D and T to the hydrogen
// isotopes they stand for.
func (p *parser) element() (species, error) {
	start := p.pos
	p.pos++
	for p.pos < len(p.s) && p.s[p.pos] >= 'a' && p.s[p.pos] <= 'z' {
		p.pos++
	}
	sym := p.s[start:p.pos]
	switch sym {
	case "D":
		return species{"H", 2}, nil
	case "T":
		return species{"H", 3}, nil
	}
	if _, ok := isotopes[sym]; !ok {
		return species{}, fmt.Errorf("%w: %q", ErrUnknownElement, sym)
	}
	return species{sym, 0}, nil
}

// isotope reads a bracketed isotope like "2H]" or "13C]" (the opening
// bracket is already consumed).
func (p *parser) isotope() (species, error) {
	a, ok := p.digits()
	if !ok || a == 0 {
		return species{}, fmt.Errorf("%w: missing mass number at position %d", ErrSyntax, p.pos)
	}
	sp, err := p.element()
	if err != nil {
		return species{}, err
	}
	if sp.A != 0 {
		return species{}, fmt.Errorf("%w: mass number on %q", ErrSyntax, p.s)
	}
	if p.pos >= len(p.s) || p.s[p.pos] != ']' {
		return species{}, fmt.Errorf("%w: missing ']' at position %d", ErrSyntax, p.pos)
	}
	p.pos++
	if _, ok := isotopeData(sp.Element, a); !ok {
		return species{}, fmt.Errorf("%w: %d%s", ErrUnknownIsotope, a, sp.Element)
	}
	return species{sp.Element, a}, nil
}

// digits reads a decimal number, reporting whether any digits were
// present.
func (p *parser) digits() (int, bool) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, false
	}
	n, _ := strconv.Atoi(p.s[start:p.pos])
	return n, true
}

// count reads an optional atom count, defaulting to 1.
func (p *parser) count() int {
	if n, ok := p.digits(); ok {
		return n
	}
	return 1
}

// Charge returns the net charge.
func (f Formula) Charge() int { return f.charge }

// WithCharge returns a copy of f with the given net charge.
func (f Formula) WithCharge(charge int) Formula {
	out := f.clone()
	out.charge = charge
	return out
}

// Atoms returns the total atom count.
func (f Formula) Atoms() int {
	var n int
	for _, cnt := range f.comp {
		n += cnt
	}
	return n
}

// Count returns the number of atoms of an element. a selects a fixed
// isotope; a == 0 selects atoms of natural isotopic composition.
func (f Formula) Count(element string, a int) int {
	return f.comp[species{element, a}]
}

// IsEmpty reports whether the formula contains no atoms.
func (f Formula) IsEmpty() bool { return len(f.comp) == 0 }

func (f Formula) clone() Formula {
	out := Formula{comp: make(map[species]int, len(f.comp)), charge: f.charge}
	for sp, cnt := range f.comp {
		out.comp[sp] = cnt
	}
	return out
}

// Add returns f + o. Charges are summed.
func (f Formula) Add(o Formula) Formula {
	out := f.clone()
	for sp, cnt := range o.comp {
		out.comp[sp] += cnt
		if out.comp[sp] == 0 {
			delete(out.comp, sp)
		}
	}
	out.charge += o.charge
	return out
}

// Subtract returns f - o. It fails with ErrNegativeComposition if any
// isotope count would drop below zero.
func (f Formula) Subtract(o Formula) (Formula, error) {
	out := f.clone()
	for sp, cnt := range o.comp {
		left := out.comp[sp] - cnt
		if left < 0 {
			return Formula{}, fmt.Errorf("%w: %s", ErrNegativeComposition, speciesString(sp))
		}
		if left == 0 {
			delete(out.comp, sp)
		} else {
			out.comp[sp] = left
		}
	}
	out.charge -= o.charge
	return out, nil
}

// Scale returns f with every count (and the charge) multiplied by n.
func (f Formula) Scale(n int) Formula {
	out := Formula{comp: make(map[species]int, len(f.comp)), charge: f.charge * n}
	if n == 0 {
		return out
	}
	for sp, cnt := range f.comp {
		out.comp[sp] = cnt * n
	}
	return out
}

// ContainedIn reports whether every isotope count of f is less than or
// equal to the corresponding count in o.
func (f Formula) ContainedIn(o Formula) bool {
	for sp, cnt := range f.comp {
		if o.comp[sp] < cnt {
			return false
		}
	}
	return true
}

// Divide returns how many times base fits in f and the remainder.
// Charges are ignored.
func (f Formula) Divide(base Formula) (int, Formula) {
	n := 0
	rem := f.WithCharge(0)
	b := base.WithCharge(0)
	for b.ContainedIn(rem) && !b.IsEmpty() {
		rem, _ = rem.Subtract(b)
		n++
	}
	return n, rem
}

// Mass returns the abundance weighted (average) mass in Da.
func (f Formula) Mass() float64 {
	var m float64
	for sp, cnt := range f.comp {
		if sp.A == 0 {
			m += float64(cnt) * averageMass(sp.Element)
		} else {
			iso, _ := isotopeData(sp.Element, sp.A)
			m += float64(cnt) * iso.Mass
		}
	}
	return m
}

// Monoisotopic returns the mass computed from the most abundant isotope
// of each element, in Da. Fixed isotopes keep their own mass.
func (f Formula) Monoisotopic() float64 {
	var m float64
	for sp, cnt := range f.comp {
		if sp.A == 0 {
			m += float64(cnt) * mostAbundant(sp.Element).Mass
		} else {
			iso, _ := isotopeData(sp.Element, sp.A)
			m += float64(cnt) * iso.Mass
		}
	}
	return m
}

// MonoisotopicMz returns the monoisotopic m/z, corrected for the mass of
// the electrons gained or lost with the charge. For a neutral formula it
// equals Monoisotopic.
func (f Formula) MonoisotopicMz() float64 {
	m := f.Monoisotopic()
	if f.charge == 0 {
		return m
	}
	return (m - float64(f.charge)*electronMass) / abs(f.charge)
}

func abs(n int) float64 {
	if n < 0 {
		return float64(-n)
	}
	return float64(n)
}

// String formats the formula with C and H first, remaining elements in
// alphabetical order, D and T shorthands for the hydrogen isotopes and a
// "[...]n±" wrapper when charged.
func (f Formula) String() string {
	keys := make([]species, 0, len(f.comp))
	for sp := range f.comp {
		keys = append(keys, sp)
	}
	sort.Slice(keys, func(i, j int) bool {
		if pi, pj := hillRank(keys[i].Element), hillRank(keys[j].Element); pi != pj {
			return pi < pj
		}
		if keys[i].Element != keys[j].Element {
			return keys[i].Element < keys[j].Element
		}
		return keys[i].A < keys[j].A
	})

	var b strings.Builder
	for _, sp := range keys {
		b.WriteString(speciesString(sp))
		if cnt := f.comp[sp]; cnt != 1 {
			b.WriteString(strconv.Itoa(cnt))
		}
	}
	if f.charge == 0 {
		return b.String()
	}
	return "[" + b.String() + "]" + FormatCharge(f.charge)
}

// hillRank orders carbon first, hydrogen second, the rest alphabetically.
// Fixed isotopes sort next to their element, lightest first.
func hillRank(element string) int {
	switch element {
	case "C":
		return 0
	case "H":
		return 1
	default:
		return 2
	}
}

func speciesString(sp species) string {
	switch sp {
	case species{"H", 2}:
		return "D"
	case species{"H", 3}:
		return "T"
	}
	if sp.A == 0 {
		return sp.Element
	}
	return "[" + strconv.Itoa(sp.A) + sp.Element + "]"
}

// FormatCharge renders a charge as the trailing part of an ion formula
// or adduct string, e.g. "+", "2-".
func FormatCharge(charge int) string {
	sign := "+"
	if charge < 0 {
		sign = "-"
		charge = -charge
	}
	if charge == 1 {
		return sign
	}
	return strconv.Itoa(charge) + sign
}
