// Package sealpress composes personalized certificate images: a base
// document fetched from a content store, three rendered text layers and a
// stamp graphic painted over it, and the result published back to the store.
package sealpress

import (
	"context"
	"os"
	"time"

	"github.com/hankolab/sealpress/adapters/render"
	"github.com/hankolab/sealpress/adapters/storage"
	"github.com/hankolab/sealpress/compose"
	"github.com/hankolab/sealpress/config"
	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
	"github.com/hankolab/sealpress/pipeline"
)

// Service wires the store, renderer and compositor into a ready pipeline.
// One Service is built per process and shared across requests.
type Service struct {
	cfg   config.Config
	store core.ObjectStore
	pipe  *pipeline.Pipeline
	ttl   time.Duration
}

// New builds a Service from cfg using the glyph renderer.  Deployments on
// the vips strategy construct their renderer first and call NewWith.
func New(cfg config.Config) (*Service, error) {
	tf, err := render.ResolveTypeface(cfg.Renderer.FontName, cfg.Renderer.FontFile)
	if err != nil {
		return nil, err
	}
	return NewWith(cfg, render.NewGlyph(tf, cfg.Renderer.Placeholder))
}

// NewWith builds a Service around an externally constructed renderer.
func NewWith(cfg config.Config, renderer core.TextRenderer) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "service.new", err)
	}
	store, err := newStore(cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "service.new", err)
	}

	pipe := pipeline.New().
		Use(&pipeline.FetchAssetsStage{
			Store:    store,
			BaseKey:  cfg.Assets.BaseKey,
			StampKey: cfg.Assets.StampKey,
		}).
		Use(&pipeline.RenderLayersStage{
			Renderer:  renderer,
			Expiry:    layerSpec(cfg.Layers.Expiry),
			Issuer:    layerSpec(cfg.Layers.Issuer),
			Recipient: layerSpec(cfg.Layers.Name),
			StampTop:  cfg.Layers.StampTop,
			StampLeft: cfg.Layers.StampLeft,
		}).
		Use(&pipeline.CompositeStage{Compositor: compose.New()}).
		Use(&pipeline.PublishStage{Store: store, BaseName: "output.png"})

	return &Service{
		cfg:   cfg,
		store: store,
		pipe:  pipe,
		ttl:   time.Duration(cfg.Assets.SignedURLTTLSecs) * time.Second,
	}, nil
}

// AddHook registers a pipeline observer.
func (s *Service) AddHook(h pipeline.Hook) {
	s.pipe.AddHook(h)
}

// Store exposes the underlying store, used by the HTTP adapter to serve
// locally published artifacts.
func (s *Service) Store() core.ObjectStore { return s.store }

// Process runs one composition.  The artifact is always published; the
// signed URL is minted only when the caller wants a link rather than the
// bytes themselves.
func (s *Service) Process(ctx context.Context, req core.Request) (*core.Result, error) {
	ex := &pipeline.Exchange{Request: req}
	if _, err := s.pipe.Run(ctx, ex); err != nil {
		return nil, err
	}

	res := &core.Result{
		Key: ex.Artifact.Key,
		PNG: ex.Composed.Data,
	}
	if req.Mode != core.ModeDownload {
		u, err := s.store.SignedURL(ctx, ex.Artifact.Key, s.ttl)
		if err != nil {
			return nil, apperrors.Ensure(apperrors.CategoryStorage, "service.signed_url", err)
		}
		res.URL = u
	}
	return res, nil
}

func layerSpec(lc config.LayerConfig) core.LayerSpec {
	return core.LayerSpec{
		Text:     lc.Text,
		Width:    lc.Width,
		Height:   lc.Height,
		FontSize: lc.FontSize,
		Color:    lc.Color,
		Top:      lc.Top,
		Left:     lc.Left,
	}
}

func newStore(cfg config.Config) (core.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return storage.NewS3(storage.S3Options{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			Endpoint:        cfg.Storage.S3.Endpoint,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			MaxBytes:        cfg.Storage.MaxAssetBytes,
		})
	default:
		var secret []byte
		if cfg.Storage.Local.URLSecret != "" {
			secret = []byte(cfg.Storage.Local.URLSecret)
		}
		return storage.NewLocal(storage.LocalOptions{
			RootDir:     cfg.Storage.Local.RootDir,
			Secret:      secret,
			BaseURL:     cfg.Storage.Local.PublicBaseURL,
			Permissions: permOf(cfg.Storage.Local.Permissions),
			MaxBytes:    cfg.Storage.MaxAssetBytes,
		})
	}
}

func permOf(p uint32) os.FileMode {
	// zero lets the store apply its own default
	return os.FileMode(p)
}
