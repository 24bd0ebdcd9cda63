package core

import (
	"context"
	"time"
)

// TextRenderer turns a layer spec into a transparent raster of exactly
// spec.Width × spec.Height pixels: glyphs left-aligned, top-anchored,
// word-wrapped within the width, everything else fully transparent.
// Implementations live in adapters/render/ and adapters/vipsrender/; the
// strategy is chosen once at startup and never per call.
type TextRenderer interface {
	Render(ctx context.Context, spec LayerSpec) (*Raster, error)
}

// Compositor merges an ordered sequence of operations onto a base raster
// using source-over alpha blending, clipping out-of-bounds placements.
type Compositor interface {
	Compose(ctx context.Context, base *Raster, ops []CompositeOperation) (*Raster, error)
}

// ObjectStore is the content-store port. Implementations live in
// adapters/storage/. A single instance is built at cold start and shared
// read-only across concurrent requests.
type ObjectStore interface {
	// Fetch returns the object's bytes, fully drained into an owned buffer;
	// no partial reads leak to callers.
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Publish writes data under key. Callers never reuse keys, but a repeat
	// write of identical bytes must not corrupt state.
	Publish(ctx context.Context, key string, data []byte, contentType string) error
	// SignedURL mints a time-limited read-only capability URL for key.
	// Implementations need not confirm the key exists; a missing key is a
	// deferred 404 at access time.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}
