package fallback

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elementx/internal/imaging"
)

func decode(t *testing.T, payload string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(payload, dataURLPrefix), "unexpected payload prefix: %.40s", payload)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, dataURLPrefix))
	require.NoError(t, err)
	return string(raw)
}

func TestRenderIsDeterministic(t *testing.T) {
	a := Render(imaging.KindCompound, "Glucose", "C6H12O6")
	b := Render(imaging.KindCompound, "Glucose", "C6H12O6")
	assert.Equal(t, a, b)

	s1 := Render(imaging.KindSolution, "Copper sulfate", "Water")
	s2 := Render(imaging.KindSolution, "Copper sulfate", "Water")
	assert.Equal(t, s1, s2)
}

func TestRenderCompoundBadge(t *testing.T) {
	svg := decode(t, Render(imaging.KindCompound, "Glucose", "C6H12O6"))
	assert.Contains(t, svg, ">C6H12O6</text>")
	assert.Contains(t, svg, ">Glucose</text>")
	assert.Contains(t, svg, ColorFor("C6H12O6"))
}

func TestRenderCompoundWithoutFormulaUsesName(t *testing.T) {
	svg := decode(t, Render(imaging.KindCompound, "Benzene", ""))
	assert.Contains(t, svg, ">Benzene</text>")
	assert.Contains(t, svg, ColorFor("Benzene"))
}

func TestRenderEscapesLabels(t *testing.T) {
	svg := decode(t, Render(imaging.KindCompound, `<script>&"`, "A<B"))
	assert.NotContains(t, svg, "<script>")
	assert.Contains(t, svg, "A&lt;B")
}

func TestRenderSolutionUsesSoluteHue(t *testing.T) {
	svg := decode(t, Render(imaging.KindSolution, "Copper sulfate", ""))
	assert.Contains(t, svg, "#3b82f6")
	assert.Contains(t, svg, "Dissolving in Water")

	svg = decode(t, Render(imaging.KindSolution, "Potassium permanganate", "Water"))
	assert.Contains(t, svg, "#a855f7")

	svg = decode(t, Render(imaging.KindSolution, "", "Ethanol"))
	assert.Contains(t, svg, ">Solute</text>")
	assert.Contains(t, svg, "Dissolving in Ethanol")
}

func TestColorFor(t *testing.T) {
	assert.Equal(t, "#000000", ColorFor(""))
	assert.Equal(t, "#000061", ColorFor("a"))
	assert.Equal(t, "#000C21", ColorFor("ab"))
	assert.Equal(t, ColorFor("NaCl"), ColorFor("NaCl"))
	assert.NotEqual(t, ColorFor("NaCl"), ColorFor("KCl"))
}

func TestSolutionPaletteOrder(t *testing.T) {
	assert.Equal(t, palette{"#3b82f6", "#1d4ed8"}, solutionPalette("CuSO4"))
	assert.Equal(t, palette{"#f97316", "#c2410c"}, solutionPalette("Iron(III) chloride"))
	assert.Equal(t, palette{"#e0f2fe", "#94a3b8"}, solutionPalette("NaCl"))
	assert.Equal(t, defaultPalette, solutionPalette("Urea"))
}
