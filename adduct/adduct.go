// Package adduct converts between adduct notation and ion formulas.
//
// Adduct strings have the form "[nM+nX-nY]n±" where M stands for the base
// molecule and X, Y are elemental gains and losses, for example [M]+,
// [M+H]+, [M+Na]+, [2M-H]-, [M+H2]2+ and [M+K-2H]-.
package adduct

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dget/formula"
)

var (
	ErrSyntax          = errors.New("adduct must be in the format [nM+X-Y]n+")
	ErrNotAdductOfBase = errors.New("formula is not an adduct of base")
)

// Common lists the adducts searched by default during automatic adduct
// detection.
var Common = []string{
	"[M]+",
	"[M+H]+",
	"[M+Na]+",
	"[M+H2]2+",
	"[2M+H]+",
	"[M-H]-",
	"[2M-H]-",
	"[M-H2]2-",
	"[M+Cl]-",
	"[M-H3O]-",
}

// Adduct is an ion built from a base molecule by the gains, losses and
// charge of an adduct string.
type Adduct struct {
	Notation  string          // the adduct string
	Base      formula.Formula // the neutral base molecule, M
	Resultant formula.Formula // the charged ion formula
	NumBase   int             // number of base molecules, e.g. 2 for [2M+H]+
}

// modifier is one signed gain or loss inside the brackets.
type modifier struct {
	sign  int
	count int
	token string
}

// notation is the decomposed form of an adduct string.
type notation struct {
	numBase   int
	modifiers []modifier
	charge    int
}

// Parse builds the resultant ion formula for an adduct of base.
func Parse(base formula.Formula, s string) (*Adduct, error) {
	n, err := scan(s)
	if err != nil {
		return nil, err
	}

	resultant := base.Scale(n.numBase)
	for _, mod := range n.modifiers {
		mf, err := formula.Parse(mod.token)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, mod.token, err)
		}
		mf = mf.Scale(mod.count)
		if mod.sign > 0 {
			resultant = resultant.Add(mf)
		} else {
			resultant, err = resultant.Subtract(mf)
			if err != nil {
				return nil, fmt.Errorf("cannot lose %s%d from %s: %w",
					mod.token, mod.count, base, err)
			}
		}
	}
	resultant = resultant.WithCharge(n.charge)

	return &Adduct{
		Notation:  s,
		Base:      base,
		Resultant: resultant,
		NumBase:   n.numBase,
	}, nil
}

// Validate checks adduct syntax without needing a base formula.
func Validate(s string) error {
	n, err := scan(s)
	if err != nil {
		return err
	}
	for _, mod := range n.modifiers {
		if _, err := formula.Parse(mod.token); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrSyntax, mod.token, err)
		}
	}
	return nil
}

// scan decomposes an adduct string per the grammar
//
//	adduct    := "[" [multiplier] "M" {modifier} "]" [magnitude] sign
//	modifier  := ("+"|"-") [count] token
//
// where token is an elemental formula without brackets or parentheses.
func scan(s string) (notation, error) {
	var n notation
	if len(s) < 4 || s[0] != '[' {
		return n, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return n, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	inner, tail := s[1:end], s[end+1:]

	// Charge: optional magnitude digits, then a mandatory sign, then end.
	if tail == "" {
		return n, fmt.Errorf("%w: missing charge in %q", ErrSyntax, s)
	}
	sign := tail[len(tail)-1]
	if sign != '+' && sign != '-' {
		return n, fmt.Errorf("%w: missing charge sign in %q", ErrSyntax, s)
	}
	mag := 1
	if digits := tail[:len(tail)-1]; digits != "" {
		var err error
		mag, err = strconv.Atoi(digits)
		if err != nil || mag < 1 {
			return n, fmt.Errorf("%w: bad charge %q", ErrSyntax, tail)
		}
	}
	n.charge = mag
	if sign == '-' {
		n.charge = -mag
	}

	// Bracket content: optional base multiplier, "M", then modifiers.
	i := 0
	for i < len(inner) && inner[i] >= '0' && inner[i] <= '9' {
		i++
	}
	n.numBase = 1
	if i > 0 {
		n.numBase, _ = strconv.Atoi(inner[:i])
		if n.numBase < 1 {
			return n, fmt.Errorf("%w: bad base multiplier in %q", ErrSyntax, s)
		}
	}
	if i >= len(inner) || inner[i] != 'M' {
		return n, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	i++

	for i < len(inner) {
		mod := modifier{count: 1}
		switch inner[i] {
		case '+':
			mod.sign = 1
		case '-':
			mod.sign = -1
		default:
			return n, fmt.Errorf("%w: leftover %q in %q", ErrSyntax, inner[i:], s)
		}
		i++
		start := i
		for i < len(inner) && inner[i] >= '0' && inner[i] <= '9' {
			i++
		}
		if i > start {
			mod.count, _ = strconv.Atoi(inner[start:i])
			if mod.count < 1 {
				return n, fmt.Errorf("%w: bad count in %q", ErrSyntax, s)
			}
		}
		start = i
		for i < len(inner) && isTokenByte(inner[i]) {
			i++
		}
		if i == start {
			return n, fmt.Errorf("%w: empty modifier in %q", ErrSyntax, s)
		}
		mod.token = inner[start:i]
		n.modifiers = append(n.modifiers, mod)
	}
	return n, nil
}

func isTokenByte(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// Describe is the inverse of Parse: it derives the canonical adduct
// string that produces resultant from base. The simpler of the gain and
// loss representations (fewer atoms) wins. It fails with
// ErrNotAdductOfBase when resultant is not an integer multiple of base
// plus a single gain or minus a single loss.
func Describe(resultant, base formula.Formula) (string, error) {
	if resultant.Charge() == 0 {
		return "", fmt.Errorf("%w: resultant has no charge", ErrNotAdductOfBase)
	}
	n, rem := resultant.Divide(base)

	var mod string
	switch {
	case rem.IsEmpty():
	case n == 0 && !rem.ContainedIn(base):
		return "", fmt.Errorf("%w: %s of %s", ErrNotAdductOfBase, resultant, base)
	case n > 0 && (!rem.ContainedIn(base) || rem.Atoms() < base.Atoms()-rem.Atoms()):
		mod = "+" + rem.String()
	default:
		// The loss representation is simpler (or the only one possible).
		loss, err := base.Subtract(rem)
		if err != nil {
			return "", fmt.Errorf("%w: %s of %s", ErrNotAdductOfBase, resultant, base)
		}
		mod = "-" + loss.String()
		n++
	}
	// Modifier tokens are plain element symbols and counts. A gain or
	// loss that only renders with isotope brackets (e.g. [13C]) has no
	// notation the grammar can re-parse.
	if strings.ContainsAny(mod, "[]") {
		return "", fmt.Errorf("%w: %s of %s needs an isotope modifier",
			ErrNotAdductOfBase, resultant, base)
	}

	mult := ""
	if n > 1 {
		mult = strconv.Itoa(n)
	}
	return fmt.Sprintf("[%sM%s]%s", mult, mod, formula.FormatCharge(resultant.Charge())), nil
}

// MonoisotopicMz returns the monoisotopic m/z of the resultant ion.
func (a *Adduct) MonoisotopicMz() float64 {
	return a.Resultant.MonoisotopicMz()
}

// DeuteriumCount returns the number of deuterium atoms in the resultant.
func (a *Adduct) DeuteriumCount() int {
	return a.Resultant.Count("H", 2)
}

// Spectrum returns the isotope spectrum of the resultant ion.
func (a *Adduct) Spectrum(minFraction float64) []formula.Entry {
	return a.Resultant.Spectrum(minFraction)
}

// MzRange returns the m/z extent of the resultant's isotope spectrum
// above minFraction. A spectrum with no entry above the threshold
// collapses to the monoisotopic m/z.
func (a *Adduct) MzRange(minFraction float64) (float64, float64) {
	entries := a.Spectrum(minFraction)
	if len(entries) == 0 {
		mz := a.MonoisotopicMz()
		return mz, mz
	}
	return entries[0].Mz, entries[len(entries)-1].Mz
}

func (a *Adduct) String() string {
	return fmt.Sprintf("%s, M=%s", a.Notation, a.Base)
}
