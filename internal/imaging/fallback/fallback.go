// Package fallback synthesizes placeholder SVG images locally. Output depends
// only on its inputs, so the same request always renders the same bytes.
package fallback

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"elementx/internal/imaging"
)

const dataURLPrefix = "data:image/svg+xml;base64,"

// Render draws a placeholder for kind. For compounds label is the name and
// secondary the formula; for solutions label is the solute and secondary the
// solvent.
func Render(kind imaging.Kind, label, secondary string) string {
	var svg string
	switch kind {
	case imaging.KindSolution:
		svg = solutionSVG(label, secondary)
	default:
		svg = compoundSVG(label, secondary)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString([]byte(svg))
}

// ColorFor derives a stable #RRGGBB color from s using a 32-bit shift-add hash.
func ColorFor(s string) string {
	var h int32
	for _, r := range s {
		h = int32(r) + (h << 5) - h
	}
	return fmt.Sprintf("#%06X", uint32(h)&0x00FFFFFF)
}

type palette struct {
	liquid   string
	particle string
}

var defaultPalette = palette{liquid: "#eff6ff", particle: "#1e293b"}

// hues is checked in order; the first fragment found in the solute wins.
var hues = []struct {
	fragments []string
	palette
}{
	{[]string{"cu", "copper"}, palette{"#3b82f6", "#1d4ed8"}},
	{[]string{"permanganate", "mno4"}, palette{"#a855f7", "#7e22ce"}},
	{[]string{"iron", "fe"}, palette{"#f97316", "#c2410c"}},
	{[]string{"chromate", "cr"}, palette{"#eab308", "#a16207"}},
	{[]string{"nickel", "ni"}, palette{"#22c55e", "#15803d"}},
	{[]string{"cobalt", "co"}, palette{"#ec4899", "#be185d"}},
	{[]string{"iodine", "i2"}, palette{"#a21caf", "#4c0519"}},
	{[]string{"cl", "na", "k"}, palette{"#e0f2fe", "#94a3b8"}},
}

func solutionPalette(solute string) palette {
	s := strings.ToLower(solute)
	for _, h := range hues {
		for _, f := range h.fragments {
			if strings.Contains(s, f) {
				return h.palette
			}
		}
	}
	return defaultPalette
}

func compoundSVG(name, formula string) string {
	color := ColorFor(firstNonEmpty(formula, name))
	headline := firstNonEmpty(formula, name)
	caption := name
	if formula == "" {
		caption = ""
	}
	var b strings.Builder
	b.WriteString(`<svg width="300" height="300" viewBox="0 0 300 300" xmlns="http://www.w3.org/2000/svg">`)
	b.WriteString(`<rect width="300" height="300" fill="#f8fafc" rx="15"/>`)
	fmt.Fprintf(&b, `<circle cx="150" cy="150" r="100" fill="%s" opacity="0.2"/>`, color)
	fmt.Fprintf(&b, `<circle cx="150" cy="150" r="80" fill="%s" opacity="0.4"/>`, color)
	fmt.Fprintf(&b, `<text x="50%%" y="45%%" dominant-baseline="middle" text-anchor="middle" font-family="sans-serif" font-weight="bold" font-size="40" fill="#334155">%s</text>`, escape(headline))
	fmt.Fprintf(&b, `<text x="50%%" y="65%%" dominant-baseline="middle" text-anchor="middle" font-family="sans-serif" font-size="20" fill="#64748b">%s</text>`, escape(caption))
	b.WriteString(`</svg>`)
	return b.String()
}

func solutionSVG(solute, solvent string) string {
	solute = firstNonEmpty(solute, "Solute")
	solvent = firstNonEmpty(solvent, "Water")
	p := solutionPalette(solute)

	var b strings.Builder
	b.WriteString(`<svg width="300" height="300" viewBox="0 0 300 300" xmlns="http://www.w3.org/2000/svg">`)
	b.WriteString(`<defs><linearGradient id="liquidGrad" x1="0%" y1="0%" x2="0%" y2="100%">`)
	fmt.Fprintf(&b, `<stop offset="0%%" stop-color="%s" stop-opacity="0.5"/>`, p.liquid)
	fmt.Fprintf(&b, `<stop offset="100%%" stop-color="%s" stop-opacity="0.8"/>`, p.liquid)
	b.WriteString(`</linearGradient></defs>`)
	b.WriteString(`<rect width="300" height="300" fill="#f8fafc" rx="12"/>`)
	b.WriteString(`<ellipse cx="150" cy="80" rx="70" ry="10" fill="#cbd5e1" stroke="#94a3b8" stroke-width="2"/>`)
	b.WriteString(`<path d="M80,80 L80,220 Q80,250 110,250 L190,250 Q220,250 220,220 L220,80" fill="none" stroke="#94a3b8" stroke-width="4"/>`)
	b.WriteString(`<path d="M85,120 L85,220 Q85,245 110,245 L190,245 Q215,245 215,220 L215,120" fill="url(#liquidGrad)"/>`)
	fmt.Fprintf(&b, `<ellipse cx="150" cy="120" rx="65" ry="8" fill="%s" opacity="0.4"/>`, p.liquid)

	// sinking solid
	fmt.Fprintf(&b, `<circle cx="150" cy="150" r="5" fill="%s" opacity="0.9"><animate attributeName="cy" from="100" to="230" dur="2s" repeatCount="indefinite"/></circle>`, p.particle)
	fmt.Fprintf(&b, `<circle cx="140" cy="140" r="4" fill="%s" opacity="0.9"><animate attributeName="cy" from="110" to="235" dur="2.5s" repeatCount="indefinite"/></circle>`, p.particle)
	// dispersing ions
	fmt.Fprintf(&b, `<circle cx="130" cy="230" r="3" fill="%s" opacity="0.7"><animate attributeName="cx" values="130;110;130" dur="3s" repeatCount="indefinite"/></circle>`, p.particle)
	fmt.Fprintf(&b, `<circle cx="170" cy="235" r="3" fill="%s" opacity="0.7"><animate attributeName="cx" values="170;190;170" dur="4s" repeatCount="indefinite"/></circle>`, p.particle)
	// bubbles
	b.WriteString(`<circle cx="120" cy="180" r="2" fill="white" opacity="0.5"><animate attributeName="cy" from="230" to="120" dur="3s" repeatCount="indefinite"/></circle>`)
	b.WriteString(`<circle cx="160" cy="200" r="3" fill="white" opacity="0.5"><animate attributeName="cy" from="240" to="130" dur="4s" repeatCount="indefinite"/></circle>`)

	fmt.Fprintf(&b, `<text x="150" y="275" text-anchor="middle" font-family="sans-serif" font-weight="bold" font-size="16" fill="#475569">%s</text>`, escape(solute))
	fmt.Fprintf(&b, `<text x="150" y="292" text-anchor="middle" font-family="sans-serif" font-size="12" fill="#64748b">Dissolving in %s</text>`, escape(solvent))
	b.WriteString(`</svg>`)
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
