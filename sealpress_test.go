package sealpress

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/hankolab/sealpress/adapters/render"
	"github.com/hankolab/sealpress/adapters/storage"
	"github.com/hankolab/sealpress/config"
	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Local.RootDir = t.TempDir()
	cfg.Storage.Local.URLSecret = "test-secret"
	cfg.Renderer.FontName = "Go"
	return cfg
}

func testService(t *testing.T, cfg config.Config) *Service {
	t.Helper()
	tf, err := render.ParseTypeface("Go", goregular.TTF)
	require.NoError(t, err)
	svc, err := NewWith(cfg, render.NewGlyph(tf, cfg.Renderer.Placeholder))
	require.NoError(t, err)
	return svc
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func seedAssets(t *testing.T, svc *Service, cfg config.Config) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.Store().Publish(ctx, cfg.Assets.BaseKey, pngOf(t, 800, 1000), "image/png"))
	require.NoError(t, svc.Store().Publish(ctx, cfg.Assets.StampKey, pngOf(t, 120, 120), "image/png"))
}

func TestProcessJSONMode(t *testing.T) {
	cfg := testConfig(t)
	svc := testService(t, cfg)
	seedAssets(t, svc, cfg)

	res, err := svc.Process(context.Background(), core.Request{Message: "鈴木 一郎", Mode: core.ModeJSON})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Key, "dist/processed_"))
	assert.NotEmpty(t, res.PNG)
	require.NotEmpty(t, res.URL, "json mode must return a signed URL")

	// The signed URL resolves to the published artifact.
	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	local, ok := svc.Store().(*storage.Local)
	require.True(t, ok)
	key := strings.TrimPrefix(u.Path, "/artifacts/")
	q := u.Query()
	require.NoError(t, local.Verify(key, q.Get("exp"), q.Get("sig")))

	stored, err := local.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, res.PNG, stored)
}

func TestProcessDownloadMode(t *testing.T) {
	cfg := testConfig(t)
	svc := testService(t, cfg)
	seedAssets(t, svc, cfg)

	res, err := svc.Process(context.Background(), core.Request{Mode: core.ModeDownload})
	require.NoError(t, err)

	assert.Empty(t, res.URL, "download mode skips URL minting")
	assert.NotEmpty(t, res.PNG)

	// Publishing still happened.
	stored, err := svc.Store().Fetch(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, res.PNG, stored)
}

func TestProcessOutputMatchesBaseDimensions(t *testing.T) {
	cfg := testConfig(t)
	svc := testService(t, cfg)
	seedAssets(t, svc, cfg)

	res, err := svc.Process(context.Background(), core.Request{})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(res.PNG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 1000), img.Bounds())
}

func TestProcessDistinctKeysAcrossRuns(t *testing.T) {
	cfg := testConfig(t)
	svc := testService(t, cfg)
	seedAssets(t, svc, cfg)
	ctx := context.Background()

	a, err := svc.Process(ctx, core.Request{})
	require.NoError(t, err)
	b, err := svc.Process(ctx, core.Request{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, b.Key, "back-to-back runs must not collide")
}

func TestProcessMissingBaseAsset(t *testing.T) {
	cfg := testConfig(t)
	svc := testService(t, cfg)
	// No seeded assets.

	_, err := svc.Process(context.Background(), core.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 404, apperrors.StatusOf(err))
}

func TestNewWithRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Assets.BaseKey = ""
	tf, err := render.ParseTypeface("Go", goregular.TTF)
	require.NoError(t, err)

	_, err = NewWith(cfg, render.NewGlyph(tf, ""))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfig))
}
