// Package vipsrender is the libvips-backed text rendering strategy: the
// layer is synthesized as an SVG fragment with the typeface embedded inline
// (see adapters/render), then rasterized by libvips.  The glyph strategy in
// adapters/render needs no cgo; this one trades that for pixel-identical
// output with libvips-based deployments.
package vipsrender

import (
	"bytes"
	"context"
	"runtime"
	"strings"

	govips "github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
	"golang.org/x/text/unicode/norm"

	"github.com/hankolab/sealpress/adapters/render"
	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
)

// Startup initialises libvips.  Call once at process start; pair with
// Shutdown at exit.
func Startup(workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{ConcurrencyLevel: workers})
}

// Shutdown releases all libvips resources.
func Shutdown() { govips.Shutdown() }

// SVG implements core.TextRenderer via SVG synthesis + libvips rasterization.
type SVG struct {
	tf          *render.Typeface
	placeholder string
}

// New creates the SVG strategy renderer.  An empty placeholder selects
// render.DefaultPlaceholder.
func New(tf *render.Typeface, placeholder string) *SVG {
	if placeholder == "" {
		placeholder = render.DefaultPlaceholder
	}
	return &SVG{tf: tf, placeholder: placeholder}
}

func (s *SVG) Render(ctx context.Context, spec core.LayerSpec) (*core.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRender, "render.svg", err)
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryRender, "render.svg", apperrors.ErrInvalidDimensions)
	}

	text := spec.Text
	if strings.TrimSpace(text) == "" {
		text = s.placeholder
	}
	text = norm.NFC.String(text)

	// Same layout pass as the glyph strategy, so line breaks match across
	// strategies.
	lines, ascent, lineH, err := render.Layout(s.tf, text, spec.FontSize, spec.Width)
	if err != nil {
		return nil, err
	}
	fragment := render.TextSVG(spec, lines, ascent, lineH, s.tf)

	ref, err := govips.NewImageFromBuffer(fragment)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRender, "render.svg.rasterize", err)
	}
	defer ref.Close()

	png, _, err := ref.ExportPng(govips.NewPngExportParams())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRender, "render.svg.export", err)
	}

	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRender, "render.svg.decode", err)
	}

	return &core.Raster{
		Image:    img,
		Data:     png,
		Width:    spec.Width,
		Height:   spec.Height,
		HasAlpha: true,
	}, nil
}

var _ core.TextRenderer = (*SVG)(nil)
