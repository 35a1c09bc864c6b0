// Package diagram generates architecture/dependency/test diagrams from
// the knowledge graph in three text formats, rendered
// through an external binary when one is locally available or else a
// deterministic fallback. Rendering runs on a small bounded worker
// pool (internal/workerpool); contrast validation implements the WCAG
// relative-luminance formula directly.
package diagram

import (
	"fmt"
	"math"
	"strconv"

	"github.com/c360studio/codetrail/internal/runerr"
)

// ThemeName is the closed set of diagram themes.
type ThemeName string

const (
	ThemeLight ThemeName = "light"
	ThemeDark  ThemeName = "dark"
	ThemeAuto  ThemeName = "auto"
)

// Theme declares a diagram's color and typography parameters.
type Theme struct {
	Foreground string
	Background string
	Accent     string
	FontSizePt float64
}

// themes holds each named theme's color/font declaration. ThemeAuto
// resolves to the light palette: without a host environment signal to
// key off of, light is this tool's documented default.
var themes = map[ThemeName]Theme{
	ThemeLight: {Foreground: "#1a1a1a", Background: "#ffffff", Accent: "#205081", FontSizePt: 12},
	ThemeDark:  {Foreground: "#e8e8e8", Background: "#121212", Accent: "#7aa7d9", FontSizePt: 12},
	ThemeAuto:  {Foreground: "#1a1a1a", Background: "#ffffff", Accent: "#205081", FontSizePt: 12},
}

// Resolve returns the named theme's declared parameters.
func Resolve(name ThemeName) (Theme, error) {
	t, ok := themes[name]
	if !ok {
		return Theme{}, runerr.Render("E_DIAGRAM_UNKNOWN_THEME", fmt.Sprintf("unknown theme %q", name), nil)
	}
	return t, nil
}

// minContrastRatio is the WCAG AA threshold for normal text.
const minContrastRatio = 4.5

// minFontSizePt is the WCAG-adjacent minimum legibility floor spec
// §4.10 enforces directly (not a WCAG-derived number itself).
const minFontSizePt = 10

// Validate enforces WCAG AA contrast between foreground and
// background (ratio >= 4.5) and a minimum font size. A violation is a
// fatal render error, not a warning.
func Validate(t Theme) error {
	fg, err := parseHexColor(t.Foreground)
	if err != nil {
		return runerr.Render("E_DIAGRAM_THEME_COLOR", "invalid foreground color", err)
	}
	bg, err := parseHexColor(t.Background)
	if err != nil {
		return runerr.Render("E_DIAGRAM_THEME_COLOR", "invalid background color", err)
	}

	ratio := contrastRatio(fg, bg)
	if ratio < minContrastRatio {
		return runerr.Render("E_DIAGRAM_CONTRAST", fmt.Sprintf("contrast ratio %.2f below WCAG AA minimum %.1f", ratio, minContrastRatio), nil)
	}

	if t.FontSizePt < minFontSizePt {
		return runerr.Render("E_DIAGRAM_FONT_SIZE", fmt.Sprintf("font_size_pt %.1f below minimum %d", t.FontSizePt, minFontSizePt), nil)
	}

	return nil
}

type rgb struct{ r, g, b float64 }

func parseHexColor(s string) (rgb, error) {
	if len(s) != 7 || s[0] != '#' {
		return rgb{}, fmt.Errorf("color %q must be in #rrggbb form", s)
	}
	r, err := strconv.ParseUint(s[1:3], 16, 8)
	if err != nil {
		return rgb{}, err
	}
	g, err := strconv.ParseUint(s[3:5], 16, 8)
	if err != nil {
		return rgb{}, err
	}
	b, err := strconv.ParseUint(s[5:7], 16, 8)
	if err != nil {
		return rgb{}, err
	}
	return rgb{r: float64(r) / 255, g: float64(g) / 255, b: float64(b) / 255}, nil
}

// relativeLuminance implements the WCAG 2.1 relative luminance formula.
func relativeLuminance(c rgb) float64 {
	lin := func(v float64) float64 {
		if v <= 0.03928 {
			return v / 12.92
		}
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return 0.2126*lin(c.r) + 0.7152*lin(c.g) + 0.0722*lin(c.b)
}

// contrastRatio implements the WCAG 2.1 contrast-ratio formula:
// (L1 + 0.05) / (L2 + 0.05) with L1 the lighter of the two luminances.
func contrastRatio(a, b rgb) float64 {
	la := relativeLuminance(a)
	lb := relativeLuminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}
