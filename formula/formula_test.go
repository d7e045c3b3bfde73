package formula

import (
	"errors"
	"math"
	"testing"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"C6H6", "C6H6"},
		{"C2HD3O", "C2HD3O"},
		{"CH3(CH2)2OH", "C3H8O"},
		{"C12H[2H]8N", "C12HD8N"},
		{"[13C]2C4H6", "C4[13C]2H6"},
		{"[C6H7]+", "[C6H7]+"},
		{"[C49H77N12O12]2+", "[C49H77N12O12]2+"},
		{"[C12H11]-", "[C12H11]-"},
		{"NaCl", "ClNa"},
		{"T2O", "T2O"},
	}
	for _, tt := range tests {
		f, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got := f.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "C6H6)", "(C6H6", "Xx4", "[2X]", "[H]", "c6h6", "C6+H6"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", in)
		}
	}
	if _, err := Parse("Qq2"); !errors.Is(err, ErrUnknownElement) {
		t.Errorf("Parse(Qq2): expected ErrUnknownElement, got %v", err)
	}
	if _, err := Parse("[5C]"); !errors.Is(err, ErrUnknownIsotope) {
		t.Errorf("Parse([5C]): expected ErrUnknownIsotope, got %v", err)
	}
}

func TestParseCharge(t *testing.T) {
	tests := []struct {
		in     string
		charge int
	}{
		{"C6H6", 0},
		{"[C6H7]+", 1},
		{"[C6H5]-", -1},
		{"[C6H8]2+", 2},
		{"[C12H10]2-", -2},
		{"[2H]8", 0}, // isotope bracket, not a charge wrapper
	}
	for _, tt := range tests {
		f, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if f.Charge() != tt.charge {
			t.Errorf("Parse(%q).Charge() = %d, want %d", tt.in, f.Charge(), tt.charge)
		}
	}
}

func TestAddSubtractScale(t *testing.T) {
	a := MustParse("C6H6")
	h := MustParse("H")

	sum := a.Add(h)
	if got := sum.String(); got != "C6H7" {
		t.Errorf("C6H6 + H = %q, want C6H7", got)
	}

	diff, err := a.Subtract(h)
	if err != nil {
		t.Fatalf("C6H6 - H: %v", err)
	}
	if got := diff.String(); got != "C6H5" {
		t.Errorf("C6H6 - H = %q, want C6H5", got)
	}

	if got := a.Scale(2).String(); got != "C12H12" {
		t.Errorf("2 * C6H6 = %q, want C12H12", got)
	}

	// Subtracting more deuterium than present must fail.
	if _, err := MustParse("CD2").Subtract(MustParse("D3")); !errors.Is(err, ErrNegativeComposition) {
		t.Errorf("CD2 - D3: expected ErrNegativeComposition, got %v", err)
	}
	// Natural H and fixed D are distinct species.
	if _, err := MustParse("CH4").Subtract(MustParse("D")); !errors.Is(err, ErrNegativeComposition) {
		t.Errorf("CH4 - D: expected ErrNegativeComposition, got %v", err)
	}
}

func TestContainedIn(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"H", "CH", true},
		{"CHD", "C2H4D2", true},
		{"H", "CD", false},
		{"C12H2Cl16", "C12H4Cl16", true},
		{"C12H4Cl16", "C12H2Cl16", false},
	}
	for _, tt := range tests {
		if got := MustParse(tt.a).ContainedIn(MustParse(tt.b)); got != tt.want {
			t.Errorf("ContainedIn(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDivide(t *testing.T) {
	tests := []struct {
		a, b string
		n    int
		rem  string
	}{
		{"H", "H", 1, ""},
		{"Na", "H", 0, "Na"},
		{"H5", "H", 5, ""},
		{"C4H8", "CH", 4, "H4"},
		{"C4H8", "C2H2", 2, "H4"},
	}
	for _, tt := range tests {
		n, rem := MustParse(tt.a).Divide(MustParse(tt.b))
		if n != tt.n || rem.String() != tt.rem {
			t.Errorf("Divide(%s, %s) = %d, %q, want %d, %q",
				tt.a, tt.b, n, rem.String(), tt.n, tt.rem)
		}
	}
}

func TestMasses(t *testing.T) {
	const tol = 1e-5

	benzene := MustParse("C6H6")
	if got := benzene.Monoisotopic(); math.Abs(got-78.04695) > tol {
		t.Errorf("Monoisotopic(C6H6) = %f, want 78.04695", got)
	}
	// Average mass uses isotope abundances.
	if got := MustParse("C").Mass(); math.Abs(got-12.011) > 1e-3 {
		t.Errorf("Mass(C) = %f, want about 12.011", got)
	}

	// Protonated benzene: monoisotopic m/z differs from the neutral mass
	// by one proton (electron mass accounted for).
	ion := MustParse("[C6H7]+")
	if got := ion.MonoisotopicMz() - benzene.Monoisotopic(); math.Abs(got-1.00728) > tol {
		t.Errorf("m/z([C6H7]+) - mass(C6H6) = %f, want 1.00728", got)
	}

	// Deuterium mass, not natural hydrogen.
	if got := MustParse("CD4").Monoisotopic(); math.Abs(got-(12.0+4*2.01410177812)) > tol {
		t.Errorf("Monoisotopic(CD4) = %f", got)
	}
}

func TestDeuteriumCount(t *testing.T) {
	if got := MustParse("C2HD3O").Count("H", 2); got != 3 {
		t.Errorf("Count(H, 2) of C2HD3O = %d, want 3", got)
	}
	if got := MustParse("C2HD3O").Count("H", 0); got != 1 {
		t.Errorf("Count(H, 0) of C2HD3O = %d, want 1", got)
	}
	if got := MustParse("C6H6").Count("H", 2); got != 0 {
		t.Errorf("Count(H, 2) of C6H6 = %d, want 0", got)
	}
}
