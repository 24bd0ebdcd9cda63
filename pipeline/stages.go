package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hankolab/sealpress/compose"
	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
)

// ── fetch assets ──────────────────────────────────────────────────────

// FetchAssetsStage fetches the base document and the stamp concurrently and
// decodes both into rasters.
type FetchAssetsStage struct {
	Store    core.ObjectStore
	BaseKey  string
	StampKey string
}

func (f *FetchAssetsStage) Name() string { return "fetch_assets" }

func (f *FetchAssetsStage) Execute(ctx context.Context, ex *Exchange) error {
	keys := [2]string{f.BaseKey, f.StampKey}
	var (
		raw  [2][]byte
		errs [2]error
		wg   sync.WaitGroup
	)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw[i], errs[i] = f.Store.Fetch(ctx, keys[i])
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return apperrors.Ensure(apperrors.CategoryAsset, "fetch_assets",
				fmt.Errorf("fetch %s: %w", keys[i], err))
		}
	}

	base, err := compose.Decode(raw[0])
	if err != nil {
		return fmt.Errorf("decode %s: %w", keys[0], err)
	}
	stamp, err := compose.Decode(raw[1])
	if err != nil {
		return fmt.Errorf("decode %s: %w", keys[1], err)
	}
	ex.Base = base
	ex.Stamp = stamp
	return nil
}

// ── render layers ─────────────────────────────────────────────────────

// RenderLayersStage renders the three text layers concurrently and
// assembles the compositing operations in paint order: expiry date,
// issuer, recipient name, stamp.
type RenderLayersStage struct {
	Renderer core.TextRenderer

	Expiry    core.LayerSpec
	Issuer    core.LayerSpec
	Recipient core.LayerSpec

	StampTop  int
	StampLeft int
}

func (r *RenderLayersStage) Name() string { return "render_layers" }

func (r *RenderLayersStage) Execute(ctx context.Context, ex *Exchange) error {
	recipient := r.Recipient
	if msg := strings.TrimSpace(ex.Request.Message); msg != "" {
		recipient.Text = ex.Request.Message
	}
	specs := [3]core.LayerSpec{r.Expiry, r.Issuer, recipient}

	var (
		rasters [3]*core.Raster
		errs    [3]error
		wg      sync.WaitGroup
	)
	for i := range specs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rasters[i], errs[i] = r.Renderer.Render(ctx, specs[i])
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return apperrors.Ensure(apperrors.CategoryRender, "render_layers", err)
		}
	}

	ex.Ops = []core.CompositeOperation{
		{Raster: rasters[0], Top: specs[0].Top, Left: specs[0].Left},
		{Raster: rasters[1], Top: specs[1].Top, Left: specs[1].Left},
		{Raster: rasters[2], Top: specs[2].Top, Left: specs[2].Left},
		{Raster: ex.Stamp, Top: r.StampTop, Left: r.StampLeft},
	}
	return nil
}

// ── composite ─────────────────────────────────────────────────────────

// CompositeStage paints the operations over the base document.
type CompositeStage struct {
	Compositor core.Compositor
}

func (c *CompositeStage) Name() string { return "composite" }

func (c *CompositeStage) Execute(ctx context.Context, ex *Exchange) error {
	composed, err := c.Compositor.Compose(ctx, ex.Base, ex.Ops)
	if err != nil {
		return apperrors.Ensure(apperrors.CategoryComposite, "composite", err)
	}
	ex.Composed = composed
	return nil
}

// ── publish ───────────────────────────────────────────────────────────

// PublishStage writes the composed PNG to the store under a fresh
// timestamped key.  Publishing happens on every run regardless of the
// requested output mode.
type PublishStage struct {
	Store    core.ObjectStore
	BaseName string
	// Clock is injectable for tests; nil means time.Now.
	Clock func() time.Time
}

func (p *PublishStage) Name() string { return "publish" }

func (p *PublishStage) Execute(ctx context.Context, ex *Exchange) error {
	now := time.Now
	if p.Clock != nil {
		now = p.Clock
	}
	t := now()
	key := core.NewArtifactKey(t, p.BaseName)
	if err := p.Store.Publish(ctx, key, ex.Composed.Data, "image/png"); err != nil {
		return apperrors.Ensure(apperrors.CategoryPublish, "publish", err)
	}
	ex.Artifact = core.Artifact{Key: key, ContentType: "image/png", CreatedAt: t}
	return nil
}
