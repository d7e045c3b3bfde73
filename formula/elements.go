package formula

// Isotope holds the data for a single isotope of an element.
type Isotope struct {
	A         int     // mass number (protons + neutrons)
	Mass      float64 // atomic mass in Da
	Abundance float64 // natural abundance fraction, 0 for radioisotopes
}

const electronMass = 5.48579909065e-4

// isotopes lists the naturally occurring isotopes (plus tritium) of the
// elements that deuterated compounds and their common adducts are made of.
// Masses and abundances are CIAAW/NIST values.
var isotopes = map[string][]Isotope{
	"H": {
		{1, 1.00782503207, 0.999885},
		{2, 2.01410177812, 0.000115},
		{3, 3.01604927790, 0.0},
	},
	"Li": {
		{6, 6.015122795, 0.0759},
		{7, 7.016004550, 0.9241},
	},
	"B": {
		{10, 10.012937000, 0.199},
		{11, 11.009305400, 0.801},
	},
	"C": {
		{12, 12.000000000, 0.9893},
		{13, 13.00335483507, 0.0107},
	},
	"N": {
		{14, 14.003074004, 0.99636},
		{15, 15.000108899, 0.00364},
	},
	"O": {
		{16, 15.994914620, 0.99757},
		{17, 16.999131700, 0.00038},
		{18, 17.999161000, 0.00205},
	},
	"F": {
		{19, 18.998403220, 1.0},
	},
	"Na": {
		{23, 22.989769281, 1.0},
	},
	"Mg": {
		{24, 23.985041700, 0.7899},
		{25, 24.985836920, 0.1000},
		{26, 25.982592929, 0.1101},
	},
	"Al": {
		{27, 26.981538630, 1.0},
	},
	"Si": {
		{28, 27.976926533, 0.92223},
		{29, 28.976494700, 0.04685},
		{30, 29.973770170, 0.03092},
	},
	"P": {
		{31, 30.973761630, 1.0},
	},
	"S": {
		{32, 31.972071000, 0.9499},
		{33, 32.971458760, 0.0075},
		{34, 33.967866900, 0.0425},
		{36, 35.967080760, 0.0001},
	},
	"Cl": {
		{35, 34.968852680, 0.7576},
		{37, 36.965902590, 0.2424},
	},
	"K": {
		{39, 38.963706680, 0.932581},
		{40, 39.963998480, 0.000117},
		{41, 40.961825760, 0.067302},
	},
	"Ca": {
		{40, 39.962590980, 0.96941},
		{42, 41.958618010, 0.00647},
		{43, 42.958766600, 0.00135},
		{44, 43.955481800, 0.02086},
		{46, 45.953692600, 0.00004},
		{48, 47.952534000, 0.00187},
	},
	"Fe": {
		{54, 53.939610500, 0.05845},
		{56, 55.934937500, 0.91754},
		{57, 56.935394000, 0.02119},
		{58, 57.933275600, 0.00282},
	},
	"Cu": {
		{63, 62.929597500, 0.6915},
		{65, 64.927789500, 0.3085},
	},
	"Zn": {
		{64, 63.929142200, 0.4917},
		{66, 65.926033400, 0.2773},
		{67, 66.927127300, 0.0404},
		{68, 67.924844200, 0.1845},
		{70, 69.925319300, 0.0061},
	},
	"Br": {
		{79, 78.918337100, 0.5069},
		{81, 80.916290600, 0.4931},
	},
	"I": {
		{127, 126.904473000, 1.0},
	},
}

// mostAbundant returns the most abundant isotope of an element.
func mostAbundant(element string) Isotope {
	best := Isotope{}
	for _, iso := range isotopes[element] {
		if iso.Abundance > best.Abundance {
			best = iso
		}
	}
	return best
}

// averageMass returns the abundance weighted mean mass of an element.
func averageMass(element string) float64 {
	var m float64
	for _, iso := range isotopes[element] {
		m += iso.Mass * iso.Abundance
	}
	return m
}

// isotopeData returns the data for a specific isotope of an element.
func isotopeData(element string, a int) (Isotope, bool) {
	for _, iso := range isotopes[element] {
		if iso.A == a {
			return iso, true
		}
	}
	return Isotope{}, false
}
