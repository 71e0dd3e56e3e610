package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Theme is a pair of square colours.
type Theme struct {
	ID    string
	Name  string
	Light color.RGBA
	Dark  color.RGBA
}

// DefaultThemeID is used when a request names no theme or an unknown one.
const DefaultThemeID = "green"

var themes = []Theme{
	{ID: "green", Name: "Green", Light: mustHex("#edeed1"), Dark: mustHex("#779952")},
	{ID: "blue", Name: "Blue", Light: mustHex("#c3cdd7"), Dark: mustHex("#4879ad")},
	{ID: "wood", Name: "Wood", Light: mustHex("#f0d9b5"), Dark: mustHex("#b58863")},
	{ID: "canvas", Name: "Canvas", Light: mustHex("#cccfe0"), Dark: mustHex("#71819b")},
	{ID: "purple", Name: "Purple", Light: mustHex("#f8f8f8"), Dark: mustHex("#8476ba")},
	{ID: "brown", Name: "Brown", Light: mustHex("#bfb7ae"), Dark: mustHex("#84643f")},
}

// Themes returns the board themes in menu order.
func Themes() []Theme {
	return append([]Theme(nil), themes...)
}

func ThemeByID(id string) (Theme, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, t := range themes {
		if t.ID == id {
			return t, true
		}
	}
	return Theme{}, false
}

func DefaultTheme() Theme {
	t, _ := ThemeByID(DefaultThemeID)
	return t
}

func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func ParseHex(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func mustHex(s string) color.RGBA {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}
