package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	apperrors "github.com/hankolab/sealpress/errors"
)

// WrapText greedily packs words into lines no wider than width pixels,
// measured with face.  A word wider than the whole buffer is hard-broken on
// rune boundaries, which is also what makes unspaced CJK text wrap.
func WrapText(face font.Face, text string, width int) []string {
	maxW := fixed.I(width)
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		cur := ""
		for _, w := range words {
			if cur != "" {
				if font.MeasureString(face, cur+" "+w) <= maxW {
					cur += " " + w
					continue
				}
				lines = append(lines, cur)
				cur = ""
			}
			for font.MeasureString(face, w) > maxW {
				fit, rest := hardBreak(face, w, maxW)
				if fit == "" || rest == "" {
					break
				}
				lines = append(lines, fit)
				w = rest
			}
			cur = w
		}
		if cur != "" {
			lines = append(lines, cur)
		}
	}
	return lines
}

// hardBreak splits word at the widest rune prefix that still fits maxW.
// At least one rune is always consumed so the caller makes progress.
func hardBreak(face font.Face, word string, maxW fixed.Int26_6) (fit, rest string) {
	runes := []rune(word)
	for i := 1; i <= len(runes); i++ {
		if font.MeasureString(face, string(runes[:i])) > maxW {
			if i == 1 {
				i = 2
			}
			return string(runes[:i-1]), string(runes[i-1:])
		}
	}
	return word, ""
}

// Layout computes the wrapped lines and vertical metrics for text at the
// given font size.  Both rendering strategies call this, so line breaks are
// identical whichever backend rasterizes them.
func Layout(tf *Typeface, text string, size float64, width int) (lines []string, ascentPx, lineHeightPx int, err error) {
	face, err := opentype.NewFace(tf.Font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, 0, 0, apperrors.Wrap(apperrors.CategoryRender, "render.layout", err)
	}
	defer face.Close()
	m := face.Metrics()
	return WrapText(face, text, width), m.Ascent.Ceil(), m.Height.Ceil(), nil
}

// ParseHexColor parses a "#RRGGBB" string into an opaque NRGBA fill color.
func ParseHexColor(hex string) (color.NRGBA, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: must be 6 hex digits", hex)
	}
	var c [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
		}
		c[i] = uint8(v)
	}
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}, nil
}
