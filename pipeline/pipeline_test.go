package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hankolab/sealpress/compose"
	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
)

// ── fakes ─────────────────────────────────────────────────────────────

// fakeStore keeps objects in a map and records publishes.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	published map[string][]byte
	fetchErr  error
	pubErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:   make(map[string][]byte),
		published: make(map[string][]byte),
	}
}

func (f *fakeStore) Fetch(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, apperrors.WithStatus(apperrors.CategoryAsset, "fake.fetch", 404, apperrors.ErrNotFound)
	}
	return data, nil
}

func (f *fakeStore) Publish(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published[key] = data
	return nil
}

func (f *fakeStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

// fakeRenderer records the specs it was asked to render.
type fakeRenderer struct {
	mu    sync.Mutex
	specs []core.LayerSpec
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, spec core.LayerSpec) (*core.Raster, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	img := image.NewNRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	return &core.Raster{Image: img, Width: spec.Width, Height: spec.Height, HasAlpha: true}, nil
}

func (f *fakeRenderer) rendered() []core.LayerSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.LayerSpec, len(f.specs))
	copy(out, f.specs)
	return out
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func testStages(store *fakeStore, renderer core.TextRenderer) (*FetchAssetsStage, *RenderLayersStage, *CompositeStage, *PublishStage) {
	fetch := &FetchAssetsStage{Store: store, BaseKey: "base.png", StampKey: "stamp.png"}
	render := &RenderLayersStage{
		Renderer:  renderer,
		Expiry:    core.LayerSpec{Text: "expiry", Width: 700, Height: 80, FontSize: 24, Color: "#333333", Top: 538, Left: 125},
		Issuer:    core.LayerSpec{Text: "issuer", Width: 400, Height: 80, FontSize: 24, Color: "#333333", Top: 585, Left: 125},
		Recipient: core.LayerSpec{Text: "default name", Width: 400, Height: 100, FontSize: 40, Color: "#000000", Top: 572, Left: 450},
		StampTop:  580,
		StampLeft: 640,
	}
	return fetch, render, &CompositeStage{Compositor: compose.New()},
		&PublishStage{Store: store, BaseName: "output.png"}
}

func newTestPipeline(store *fakeStore, renderer core.TextRenderer) *Pipeline {
	fetch, render, comp, pub := testStages(store, renderer)
	return New().Use(fetch).Use(render).Use(comp).Use(pub)
}

func seedAssets(t *testing.T, store *fakeStore) {
	t.Helper()
	store.objects["base.png"] = pngOf(t, 800, 1000)
	store.objects["stamp.png"] = pngOf(t, 120, 120)
}

// ── tests ─────────────────────────────────────────────────────────────

func TestPipelineHappyPath(t *testing.T) {
	store := newFakeStore()
	seedAssets(t, store)
	renderer := &fakeRenderer{}
	ex := &Exchange{Request: core.Request{Mode: core.ModeJSON}}

	timings, err := newTestPipeline(store, renderer).Run(context.Background(), ex)
	require.NoError(t, err)

	for _, stage := range []string{"fetch_assets", "render_layers", "composite", "publish"} {
		assert.Contains(t, timings, stage)
	}
	require.NotNil(t, ex.Composed)
	assert.NotEmpty(t, ex.Composed.Data)
	assert.NotEmpty(t, ex.Artifact.Key)
	assert.Len(t, store.published, 1)
	assert.Equal(t, ex.Composed.Data, store.published[ex.Artifact.Key])
}

func TestRenderLayersFixedOperationOrder(t *testing.T) {
	store := newFakeStore()
	seedAssets(t, store)
	renderer := &fakeRenderer{}
	ex := &Exchange{Request: core.Request{}}

	_, err := newTestPipeline(store, renderer).Run(context.Background(), ex)
	require.NoError(t, err)

	require.Len(t, ex.Ops, 4)
	// Paint order: expiry, issuer, recipient, stamp on top.
	assert.Equal(t, 538, ex.Ops[0].Top)
	assert.Equal(t, 585, ex.Ops[1].Top)
	assert.Equal(t, 572, ex.Ops[2].Top)
	assert.Equal(t, 580, ex.Ops[3].Top)
	assert.Equal(t, 640, ex.Ops[3].Left)
	assert.Same(t, ex.Stamp, ex.Ops[3].Raster)
}

func TestRenderLayersMessageOverridesRecipient(t *testing.T) {
	store := newFakeStore()
	seedAssets(t, store)
	renderer := &fakeRenderer{}
	ex := &Exchange{Request: core.Request{Message: "鈴木 一郎"}}

	_, err := newTestPipeline(store, renderer).Run(context.Background(), ex)
	require.NoError(t, err)

	texts := map[string]bool{}
	for _, s := range renderer.rendered() {
		texts[s.Text] = true
	}
	assert.True(t, texts["鈴木 一郎"], "message should replace the recipient text")
	assert.False(t, texts["default name"], "default recipient must not render when a message is given")
	assert.True(t, texts["expiry"])
	assert.True(t, texts["issuer"])
}

func TestRenderLayersBlankMessageKeepsDefault(t *testing.T) {
	store := newFakeStore()
	seedAssets(t, store)
	renderer := &fakeRenderer{}
	ex := &Exchange{Request: core.Request{Message: "   "}}

	_, err := newTestPipeline(store, renderer).Run(context.Background(), ex)
	require.NoError(t, err)

	texts := map[string]bool{}
	for _, s := range renderer.rendered() {
		texts[s.Text] = true
	}
	assert.True(t, texts["default name"], "blank messages fall back to the default recipient")
}

func TestPipelinePublishesInBothModes(t *testing.T) {
	for _, mode := range []core.OutputMode{core.ModeJSON, core.ModeDownload} {
		store := newFakeStore()
		seedAssets(t, store)
		ex := &Exchange{Request: core.Request{Mode: mode}}

		_, err := newTestPipeline(store, &fakeRenderer{}).Run(context.Background(), ex)
		require.NoError(t, err)
		assert.Len(t, store.published, 1, "mode %s must publish", mode)
	}
}

func TestPipelineFetchFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = apperrors.WithStatus(apperrors.CategoryAsset, "fake.fetch", 404, apperrors.ErrNotFound)
	renderer := &fakeRenderer{}
	ex := &Exchange{}

	_, err := newTestPipeline(store, renderer).Run(context.Background(), ex)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 404, apperrors.StatusOf(err))
	assert.Empty(t, renderer.rendered(), "later stages must not run after a failure")
	assert.Empty(t, store.published)
}

func TestPipelineRenderFailureAborts(t *testing.T) {
	store := newFakeStore()
	seedAssets(t, store)
	renderer := &fakeRenderer{err: errors.New("face construction failed")}
	ex := &Exchange{}

	_, err := newTestPipeline(store, renderer).Run(context.Background(), ex)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryRender))
	assert.Empty(t, store.published)
}

func TestPipelinePublishFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	seedAssets(t, store)
	store.pubErr = fmt.Errorf("disk full")
	ex := &Exchange{Request: core.Request{Mode: core.ModeDownload}}

	_, err := newTestPipeline(store, &fakeRenderer{}).Run(context.Background(), ex)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryPublish))
}

func TestPublishStageKeyFromClock(t *testing.T) {
	store := newFakeStore()
	fixed := time.Date(2025, 5, 2, 12, 22, 33, 123456789, time.UTC)
	stage := &PublishStage{Store: store, BaseName: "output.png", Clock: func() time.Time { return fixed }}
	ex := &Exchange{Composed: &core.Raster{Data: []byte("png")}}

	require.NoError(t, stage.Execute(context.Background(), ex))
	assert.Equal(t, core.NewArtifactKey(fixed, "output.png"), ex.Artifact.Key)
	assert.Equal(t, "image/png", ex.Artifact.ContentType)
	assert.Equal(t, fixed, ex.Artifact.CreatedAt)
}

func TestPipelineCancelledContext(t *testing.T) {
	store := newFakeStore()
	seedAssets(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(store, &fakeRenderer{}).Run(ctx, &Exchange{})
	require.Error(t, err)
	assert.Empty(t, store.published)
}

// ── hooks ─────────────────────────────────────────────────────────────

type recordingHook struct {
	mu     sync.Mutex
	before []string
	after  []string
	errs   map[string]error
}

func (h *recordingHook) BeforeStage(_ context.Context, stage string, _ *Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before = append(h.before, stage)
}

func (h *recordingHook) AfterStage(_ context.Context, stage string, _ *Exchange, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.after = append(h.after, stage)
	if h.errs == nil {
		h.errs = map[string]error{}
	}
	h.errs[stage] = err
}

func TestPipelineHooksObserveEveryStage(t *testing.T) {
	store := newFakeStore()
	seedAssets(t, store)
	hook := &recordingHook{}
	p := newTestPipeline(store, &fakeRenderer{}).AddHook(hook)

	_, err := p.Run(context.Background(), &Exchange{})
	require.NoError(t, err)

	want := []string{"fetch_assets", "render_layers", "composite", "publish"}
	assert.Equal(t, want, hook.before)
	assert.Equal(t, want, hook.after)
	for _, stage := range want {
		assert.NoError(t, hook.errs[stage])
	}
}

func TestPipelineHooksSeeFailure(t *testing.T) {
	store := newFakeStore()
	hook := &recordingHook{}
	p := newTestPipeline(store, &fakeRenderer{}).AddHook(hook)

	_, err := p.Run(context.Background(), &Exchange{})
	require.Error(t, err)
	assert.Equal(t, []string{"fetch_assets"}, hook.after)
	assert.Error(t, hook.errs["fetch_assets"])
}
