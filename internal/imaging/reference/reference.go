// Package reference maps well-known formulas to curated reference images so
// they never reach the generator.
package reference

import (
	"regexp"
	"strings"
	"unicode"
)

const wikimedia = "https://upload.wikimedia.org/wikipedia/commons/thumb/"

var images = map[string]string{
	"H2O":      wikimedia + "1/13/Water-3D-balls.png/320px-Water-3D-balls.png",
	"NaCl":     wikimedia + "e/e9/Sodium-chloride-3D-ionic.png/320px-Sodium-chloride-3D-ionic.png",
	"CO2":      wikimedia + "a/a2/Carbon-dioxide-3D-vdW.png/320px-Carbon-dioxide-3D-vdW.png",
	"HCl":      wikimedia + "3/3d/Hydrogen-chloride-3D-balls.png/320px-Hydrogen-chloride-3D-balls.png",
	"CH4":      wikimedia + "3/32/Methane-3D-balls.png/320px-Methane-3D-balls.png",
	"NH3":      wikimedia + "1/15/Ammonia-3D-balls-A.png/320px-Ammonia-3D-balls-A.png",
	"C6H6":     wikimedia + "0/00/Benzene-3D-balls.png/320px-Benzene-3D-balls.png",
	"H2SO4":    wikimedia + "c/c5/Sulfuric-acid-3D-balls.png/320px-Sulfuric-acid-3D-balls.png",
	"C2H5OH":   wikimedia + "9/98/Ethanol-3D-balls.png/320px-Ethanol-3D-balls.png",
	"C6H12O6":  wikimedia + "9/96/Alpha-D-glucose-3D-balls.png/320px-Alpha-D-glucose-3D-balls.png",
	"O2":       wikimedia + "5/52/Dioxygen-3D-balls.png/320px-Dioxygen-3D-balls.png",
	"N2":       wikimedia + "0/07/Dinitrogen-3D-balls.png/320px-Dinitrogen-3D-balls.png",
	"Cl2":      wikimedia + "9/90/Dichlorine-3D-balls.png/320px-Dichlorine-3D-balls.png",
	"H2":       wikimedia + "d/d7/Dihydrogen-3D-balls.png/320px-Dihydrogen-3D-balls.png",
	"NaOH":     wikimedia + "9/9f/Sodium-hydroxide-3D-ionic.png/320px-Sodium-hydroxide-3D-ionic.png",
	"CH3COOH":  wikimedia + "d/d4/Acetic-acid-3D-balls.png/320px-Acetic-acid-3D-balls.png",
	"KNO3":     wikimedia + "2/22/Potassium-nitrate-3D-balls.png/320px-Potassium-nitrate-3D-balls.png",
	"CaCO3":    wikimedia + "c/c2/Calcite-3D-balls.png/320px-Calcite-3D-balls.png",
	"Fe2O3":    wikimedia + "3/3f/Hematite-unit-cell-3D-balls.png/320px-Hematite-unit-cell-3D-balls.png",
	"AgNO3":    wikimedia + "8/86/Silver-nitrate-3D-balls.png/320px-Silver-nitrate-3D-balls.png",
	"CuSO4":    wikimedia + "7/7d/Copper-sulfate-3D-balls.png/320px-Copper-sulfate-3D-balls.png",
	"KI":       wikimedia + "8/81/Potassium-iodide-3D-ionic.png/320px-Potassium-iodide-3D-ionic.png",
	"HNO3":     wikimedia + "0/03/Nitric-acid-3D-balls.png/320px-Nitric-acid-3D-balls.png",
	"Ca(OH)2":  wikimedia + "8/82/Calcium-hydroxide-3D-balls.png/320px-Calcium-hydroxide-3D-balls.png",
	"MgSO4":    wikimedia + "3/3a/Magnesium-sulfate-3D-balls.png/320px-Magnesium-sulfate-3D-balls.png",
	"NH4Cl":    wikimedia + "3/35/Ammonium-chloride-3D-ionic.png/320px-Ammonium-chloride-3D-ionic.png",
	"Pb(NO3)2": wikimedia + "3/32/Lead%28II%29-nitrate-3D-balls.png/320px-Lead%28II%29-nitrate-3D-balls.png",
	"Na2S2O3":  wikimedia + "7/78/Sodium-thiosulfate-3D-balls.png/320px-Sodium-thiosulfate-3D-balls.png",
	"H2O2":     wikimedia + "2/2e/Hydrogen-peroxide-3D-balls.png/320px-Hydrogen-peroxide-3D-balls.png",
}

// alnum indexes the same entries with punctuation removed, e.g. "CaOH2".
var alnum = func() map[string]string {
	out := make(map[string]string, len(images))
	for k, v := range images {
		out[alnumOnly(k)] = v
	}
	return out
}()

var stateSuffix = regexp.MustCompile(`(?i)\(\s*(s|l|g|aq)\s*\)`)

// Normalize strips physical-state annotations and whitespace and maps
// subscript digits to ASCII.
func Normalize(formula string) string {
	s := stateSuffix.ReplaceAllString(formula, "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
		case r >= '₀' && r <= '₉':
			b.WriteRune('0' + (r - '₀'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup returns the reference image for a formula, if one is curated.
func Lookup(formula string) (string, bool) {
	if strings.TrimSpace(formula) == "" {
		return "", false
	}
	norm := Normalize(formula)
	if v, ok := images[norm]; ok {
		return v, true
	}
	if v, ok := images[formula]; ok {
		return v, true
	}
	if key := alnumOnly(norm); key != "" {
		if v, ok := alnum[key]; ok {
			return v, true
		}
	}
	return "", false
}

// Formulas lists every curated formula key.
func Formulas() []string {
	out := make([]string, 0, len(images))
	for k := range images {
		out = append(out, k)
	}
	return out
}

func alnumOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
