// Package errors defines the structured error type shared by the pipeline
// and its adapters, plus the category taxonomy used to map failures onto
// HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies error types for targeted handling and response mapping.
type Category string

const (
	CategoryRequest   Category = "request"
	CategoryAsset     Category = "asset"
	CategoryFont      Category = "font"
	CategoryRender    Category = "render"
	CategoryComposite Category = "composite"
	CategoryPublish   Category = "publish"
	CategoryStorage   Category = "storage"
	CategoryConfig    Category = "config"
	CategoryInternal  Category = "internal"
)

// PipelineError is the structured error type used throughout the module.
// Status carries the upstream HTTP status when the failure originated from
// the content store; 0 means unknown.
type PipelineError struct {
	Category Category
	Op       string // operation name, e.g. "s3.fetch"
	Err      error
	Status   int
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// New creates a PipelineError with no upstream status.
func New(category Category, op string, err error) *PipelineError {
	return &PipelineError{Category: category, Op: op, Err: err}
}

// WithStatus creates a PipelineError carrying an upstream HTTP status.
func WithStatus(category Category, op string, status int, err error) *PipelineError {
	return &PipelineError{Category: category, Op: op, Err: err, Status: status}
}

// Wrap wraps an existing error with context. Returns nil for a nil error.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// Ensure returns err unchanged when it already is a PipelineError, preserving
// its category and upstream status; otherwise it wraps err like Wrap does.
func Ensure(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return New(category, op, err)
}

// StatusOf returns the HTTP status a failure response should use: the
// upstream status when one was recorded, 500 otherwise.
func StatusOf(err error) int {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Status > 0 {
		return pe.Status
	}
	return http.StatusInternalServerError
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// Sentinel errors for common failure modes.
var (
	ErrNotFound          = errors.New("object not found")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrFontUnavailable   = errors.New("font unavailable")
	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidDimensions = errors.New("invalid dimensions")
)
