// Package render implements the text-layer renderer: a UTF-8 string plus
// styling parameters becomes a fixed-size transparent raster with the glyphs
// left-aligned, top-anchored, and word-wrapped within the buffer width.
package render

import (
	"context"
	"image"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"

	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
)

// DefaultPlaceholder is drawn when a layer has no text.  A layer is never
// silently omitted: missing, null, and empty-string text all render this.
const DefaultPlaceholder = "テキスト未指定"

// Glyph renders text by drawing glyph outlines directly onto a transparent
// NRGBA raster.  Safe for concurrent use: a fresh face is created per call
// and the parsed typeface itself is read-only.
type Glyph struct {
	tf          *Typeface
	placeholder string
}

// NewGlyph creates the direct glyph-drawing renderer.  An empty placeholder
// selects DefaultPlaceholder.
func NewGlyph(tf *Typeface, placeholder string) *Glyph {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return &Glyph{tf: tf, placeholder: placeholder}
}

func (g *Glyph) Render(ctx context.Context, spec core.LayerSpec) (*core.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRender, "render.glyph", err)
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryRender, "render.glyph", apperrors.ErrInvalidDimensions)
	}

	text := spec.Text
	if strings.TrimSpace(text) == "" {
		text = g.placeholder
	}
	text = norm.NFC.String(text)

	face, err := opentype.NewFace(g.tf.Font, &opentype.FaceOptions{
		Size:    spec.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRender, "render.glyph.face", err)
	}
	defer face.Close()

	fill, err := ParseHexColor(spec.Color)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRender, "render.glyph.color", err)
	}

	lines := WrapText(face, text, spec.Width)

	dst := image.NewNRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	lineH := m.Height.Ceil()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fill),
		Face: face,
	}
	y := ascent
	for _, line := range lines {
		if y-ascent >= spec.Height {
			break // line starts below the buffer; everything after clips too
		}
		d.Dot = fixed.P(0, y)
		d.DrawString(line)
		y += lineH
	}

	return &core.Raster{
		Image:    dst,
		Width:    spec.Width,
		Height:   spec.Height,
		HasAlpha: true,
	}, nil
}

var _ core.TextRenderer = (*Glyph)(nil)
