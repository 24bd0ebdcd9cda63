// Package pipeline orchestrates the composition flow: fetch assets, render
// text layers, composite, publish.  Stages run strictly in order with no
// retries; the first error aborts the run.
package pipeline

import (
	"context"
	"time"

	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
)

// Exchange is the mutable state threaded through a single run.  Each stage
// reads the fields of earlier stages and fills in its own.
type Exchange struct {
	Request core.Request

	// Fetched and decoded assets.
	Base  *core.Raster
	Stamp *core.Raster

	// Compositing operations in paint order.
	Ops []core.CompositeOperation

	// Final composed PNG.
	Composed *core.Raster

	// Published artifact, set by the publish stage.
	Artifact core.Artifact
}

// Stage is one step of a run.
type Stage interface {
	Name() string
	Execute(ctx context.Context, ex *Exchange) error
}

// Hook observes stage execution.  Hooks must not mutate the exchange.
type Hook interface {
	BeforeStage(ctx context.Context, stage string, ex *Exchange)
	AfterStage(ctx context.Context, stage string, ex *Exchange, elapsed time.Duration, err error)
}

// Pipeline runs stages in registration order.
type Pipeline struct {
	stages []Stage
	hooks  []Hook
}

func New() *Pipeline {
	return &Pipeline{}
}

// Use appends a stage.
func (p *Pipeline) Use(s Stage) *Pipeline {
	p.stages = append(p.stages, s)
	return p
}

// AddHook registers an observer for every stage.
func (p *Pipeline) AddHook(h Hook) *Pipeline {
	p.hooks = append(p.hooks, h)
	return p
}

// Run executes all stages against ex and reports per-stage timings.  On
// error the timings cover the stages that ran, including the failed one.
func (p *Pipeline) Run(ctx context.Context, ex *Exchange) (map[string]time.Duration, error) {
	timings := make(map[string]time.Duration, len(p.stages))
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return timings, apperrors.Wrap(apperrors.CategoryInternal, "pipeline.run", err)
		}
		for _, h := range p.hooks {
			h.BeforeStage(ctx, s.Name(), ex)
		}
		start := time.Now()
		err := s.Execute(ctx, ex)
		elapsed := time.Since(start)
		timings[s.Name()] = elapsed
		for _, h := range p.hooks {
			h.AfterStage(ctx, s.Name(), ex, elapsed, err)
		}
		if err != nil {
			return timings, err
		}
	}
	return timings, nil
}
