// Package compose merges ordered layers onto a base raster.  Paint order is
// the input order: later operations win at overlapping coordinates, which is
// how the stamp ends up above every text layer.
package compose

import (
	"bytes"
	"context"
	"image"

	"github.com/disintegration/imaging"

	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
)

// Decode turns encoded asset bytes into a Raster.
func Decode(data []byte) (*core.Raster, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryAsset, "compose.decode", apperrors.ErrEmptyInput)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryAsset, "compose.decode", err)
	}
	b := img.Bounds()
	return &core.Raster{
		Image:    img,
		Data:     data,
		Width:    b.Dx(),
		Height:   b.Dy(),
		HasAlpha: true,
	}, nil
}

// SourceOver applies operations strictly in input order with source-over
// alpha blending, so transparent pixels in text and stamp layers never
// occlude what is beneath them.  Placements beyond the base bounds clip
// silently: malformed coordinates must not abort an otherwise valid request.
type SourceOver struct{}

// New returns the source-over compositor.
func New() *SourceOver { return &SourceOver{} }

func (c *SourceOver) Compose(ctx context.Context, base *core.Raster, ops []core.CompositeOperation) (*core.Raster, error) {
	if base == nil || base.Image == nil {
		return nil, apperrors.New(apperrors.CategoryComposite, "compose", apperrors.ErrEmptyInput)
	}

	canvas := imaging.Clone(base.Image)
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryComposite, "compose", err)
		}
		if op.Raster == nil || op.Raster.Image == nil {
			return nil, apperrors.New(apperrors.CategoryComposite, "compose", apperrors.ErrEmptyInput)
		}
		canvas = imaging.Overlay(canvas, op.Raster.Image, image.Pt(op.Left, op.Top), 1.0)
	}

	// The published artifact is always PNG: lossless, alpha-capable, and
	// self-describing regardless of input encodings.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryComposite, "compose.encode", err)
	}

	b := canvas.Bounds()
	return &core.Raster{
		Image:    canvas,
		Data:     buf.Bytes(),
		Width:    b.Dx(),
		Height:   b.Dy(),
		HasAlpha: true,
	}, nil
}

var _ core.Compositor = (*SourceOver)(nil)
