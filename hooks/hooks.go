// Package hooks provides the observability hooks that plug into the
// pipeline: a structured logging adapter and an in-memory metrics recorder.
package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hankolab/sealpress/core"
	"github.com/hankolab/sealpress/pipeline"
)

// ── logging ───────────────────────────────────────────────────────────

// SlogLogger adapts *slog.Logger to core.Logger.
type SlogLogger struct {
	L *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{L: l}
}

func (s *SlogLogger) Debug(msg string, fields ...interface{}) { s.L.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...interface{})  { s.L.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...interface{})  { s.L.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...interface{}) { s.L.Error(msg, fields...) }

var _ core.Logger = (*SlogLogger)(nil)

// LoggingHook logs every stage transition.
type LoggingHook struct {
	Log core.Logger
}

func NewLoggingHook(log core.Logger) *LoggingHook {
	return &LoggingHook{Log: log}
}

func (h *LoggingHook) BeforeStage(_ context.Context, stage string, _ *pipeline.Exchange) {
	h.Log.Debug("stage start", "stage", stage)
}

func (h *LoggingHook) AfterStage(_ context.Context, stage string, _ *pipeline.Exchange, elapsed time.Duration, err error) {
	if err != nil {
		h.Log.Error("stage failed", "stage", stage, "elapsed_ms", elapsed.Milliseconds(), "error", err.Error())
		return
	}
	h.Log.Info("stage done", "stage", stage, "elapsed_ms", elapsed.Milliseconds())
}

var _ pipeline.Hook = (*LoggingHook)(nil)

// ── metrics ───────────────────────────────────────────────────────────

// StageMetrics accumulates counters for one stage.
type StageMetrics struct {
	Calls       int64         `json:"calls"`
	Errors      int64         `json:"errors"`
	TotalTime   time.Duration `json:"total_time_ns"`
	LastElapsed time.Duration `json:"last_elapsed_ns"`
}

// InMemoryMetrics records per-stage counters and published output size.
// Safe for concurrent use.
type InMemoryMetrics struct {
	mu             sync.Mutex
	stages         map[string]*StageMetrics
	publishedBytes int64
	runs           int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{stages: make(map[string]*StageMetrics)}
}

func (m *InMemoryMetrics) record(stage string, elapsed time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok := m.stages[stage]
	if !ok {
		sm = &StageMetrics{}
		m.stages[stage] = sm
	}
	sm.Calls++
	sm.TotalTime += elapsed
	sm.LastElapsed = elapsed
	if err != nil {
		sm.Errors++
	}
}

// RecordRun counts one completed pipeline run and its output size.
func (m *InMemoryMetrics) RecordRun(outputBytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	m.publishedBytes += int64(outputBytes)
}

// Snapshot is the state served by the metrics endpoint.
type Snapshot struct {
	Runs           int64                   `json:"runs"`
	PublishedBytes int64                   `json:"published_bytes"`
	Stages         map[string]StageMetrics `json:"stages"`
}

func (m *InMemoryMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Snapshot{
		Runs:           m.runs,
		PublishedBytes: m.publishedBytes,
		Stages:         make(map[string]StageMetrics, len(m.stages)),
	}
	for name, sm := range m.stages {
		out.Stages[name] = *sm
	}
	return out
}

// MetricsHook feeds stage timings into an InMemoryMetrics.
type MetricsHook struct {
	M *InMemoryMetrics
}

func NewMetricsHook(m *InMemoryMetrics) *MetricsHook {
	return &MetricsHook{M: m}
}

func (h *MetricsHook) BeforeStage(context.Context, string, *pipeline.Exchange) {}

func (h *MetricsHook) AfterStage(_ context.Context, stage string, _ *pipeline.Exchange, elapsed time.Duration, err error) {
	h.M.record(stage, elapsed, err)
}

var _ pipeline.Hook = (*MetricsHook)(nil)
