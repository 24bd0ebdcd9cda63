package core

import (
	"image"
	"strings"
	"time"
)

// OutputMode selects how the processed artifact is returned to the caller.
// It governs response shaping only; the composition work is identical in
// both modes.
type OutputMode string

const (
	ModeJSON     OutputMode = "json"
	ModeDownload OutputMode = "download"
)

// ParseOutputMode interprets a caller-supplied format value, case-insensitively.
// ok reports whether the value was recognized; unrecognized values resolve to
// ModeJSON so the adapter can attach an advisory message instead of failing.
func ParseOutputMode(s string) (mode OutputMode, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeJSON):
		return ModeJSON, true
	case string(ModeDownload):
		return ModeDownload, true
	}
	return ModeJSON, false
}

// Raster is an in-memory image passed through the pipeline: decoded pixels
// plus, when available, the encoded bytes they came from or will be published
// as. Rasters are request-scoped and never outlive the request that created
// them.
type Raster struct {
	Image    image.Image
	Data     []byte // encoded bytes; nil until an encode or decode produced them
	Width    int
	Height   int
	HasAlpha bool
}

// LayerSpec is a declarative instruction for one text layer: what to draw,
// into how large a transparent buffer, and where the buffer is pasted onto
// the base canvas. Offsets are deliberately not validated against the base
// bounds; out-of-canvas placement is clipped at composite time.
type LayerSpec struct {
	Text     string // empty or blank text is replaced by the renderer's placeholder
	Width    int
	Height   int
	FontSize float64
	Color    string // #rrggbb
	Top      int
	Left     int
}

// CompositeOperation pairs a ready raster with its placement on the base.
// Slice order is paint order: later operations are painted over earlier ones
// at overlapping coordinates.
type CompositeOperation struct {
	Raster *Raster
	Top    int
	Left   int
}

// Request is the orchestrator's view of one personalization call.
type Request struct {
	Message string // optional caller-supplied text for the recipient layer
	Mode    OutputMode
}

// Artifact describes a published output object.
type Artifact struct {
	Key         string
	ContentType string
	CreatedAt   time.Time
}

// Result is what a completed pipeline run hands back to the adapter.
type Result struct {
	Key string
	PNG []byte
	URL string // signed read URL; set for json mode only
}

var keyReplacer = strings.NewReplacer(":", "-", ".", "-")

// NewArtifactKey builds the storage key for a processed artifact:
// dist/processed_<timestamp>_<basename>, with the timestamp's ':' and '.'
// replaced by '-' so keys stay filesystem- and URL-safe. Nanosecond
// resolution keeps keys distinct even for back-to-back requests, and
// lexicographic key order matches chronological order.
func NewArtifactKey(t time.Time, basename string) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000000000Z")
	return "dist/processed_" + keyReplacer.Replace(ts) + "_" + basename
}
