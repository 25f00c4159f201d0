// Package metrics exposes research run metrics in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/research"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ttdr"

// Metrics holds the collectors of one process. It implements
// research.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// StepsTotal counts finished steps.
	// Labels: kind (evolved, synthesized, done)
	StepsTotal *prometheus.CounterVec

	// FallbacksTotal counts degraded operations.
	// Labels: kind (question, search, vector, synthesis, evolution, denoise)
	FallbacksTotal *prometheus.CounterVec

	// StepDurationSeconds measures wall time per step.
	StepDurationSeconds prometheus.Histogram

	// SnippetsPerStep measures retrieved snippets per researched step.
	SnippetsPerStep prometheus.Histogram

	// DraftRevisions is the revision counter of the latest step.
	DraftRevisions prometheus.Gauge

	// CompletionsTotal counts completion calls.
	// Labels: op (prompt label), status (ok, error)
	CompletionsTotal *prometheus.CounterVec

	// CompletionDurationSeconds measures completion latency.
	// Labels: op
	CompletionDurationSeconds *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "steps_total",
			Help:      "Finished research steps by kind.",
		}, []string{"kind"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "fallbacks_total",
			Help:      "Operations that degraded to a local fallback.",
		}, []string{"kind"}),
		StepDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "step_duration_seconds",
			Help:      "Wall time of one research step.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		SnippetsPerStep: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "snippets_per_step",
			Help:      "Snippets retrieved for one question.",
			Buckets:   prometheus.LinearBuckets(0, 2, 8),
		}),
		DraftRevisions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "draft_revisions",
			Help:      "Draft revisions committed so far in the current run.",
		}),
		CompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "completions_total",
			Help:      "Completion calls by operation and outcome.",
		}, []string{"op", "status"}),
		CompletionDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "completion_duration_seconds",
			Help:      "Completion call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.StepsTotal,
		m.FallbacksTotal,
		m.StepDurationSeconds,
		m.SnippetsPerStep,
		m.DraftRevisions,
		m.CompletionsTotal,
		m.CompletionDurationSeconds,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// StepFinished implements research.Observer.
func (m *Metrics) StepFinished(_ context.Context, ev research.StepEvent) {
	kind := "synthesized"
	switch {
	case ev.Done:
		kind = "done"
	case ev.Evolved:
		kind = "evolved"
	}
	m.StepsTotal.WithLabelValues(kind).Inc()
	for _, f := range ev.Fallbacks {
		m.FallbacksTotal.WithLabelValues(f).Inc()
	}
	m.StepDurationSeconds.Observe(ev.Duration.Seconds())
	if !ev.Done {
		m.SnippetsPerStep.Observe(float64(ev.Snippets))
	}
	m.DraftRevisions.Set(float64(ev.Revisions))
}

// Instrument wraps a completer with call counting and latency.
func (m *Metrics) Instrument(next llm.Completer) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, p llm.Prompt) (string, error) {
		op := p.Label
		if op == "" {
			op = "unlabelled"
		}
		started := time.Now()
		out, err := next.Complete(ctx, p)
		m.CompletionDurationSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.CompletionsTotal.WithLabelValues(op, status).Inc()
		return out, err
	})
}

// WriteTextfile writes the current values in text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics file path is empty")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
