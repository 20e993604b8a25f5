package heatmap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NeutralTone is the background color for days with no recorded progress.
const NeutralTone = "#ebedf0"

// ColorPattern validates habit colors at the input boundary: a '#'
// followed by exactly six hex digits.
var ColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// MapColor converts a base #RRGGBB color and an intensity in [0,1] into a
// display color. Zero intensity maps to NeutralTone regardless of base;
// otherwise the base channels are kept and intensity becomes the alpha.
func MapColor(baseHex string, intensity float64) string {
	if intensity <= 0 {
		return NeutralTone
	}
	if intensity > 1 {
		intensity = 1
	}

	hex := strings.TrimPrefix(baseHex, "#")
	if len(hex) != 6 {
		return NeutralTone
	}
	rgb, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return NeutralTone
	}

	r := (rgb >> 16) & 0xFF
	g := (rgb >> 8) & 0xFF
	b := rgb & 0xFF
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, strconv.FormatFloat(intensity, 'g', 3, 64))
}
