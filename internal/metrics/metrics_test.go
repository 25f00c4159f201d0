package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/research"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepFinished_CountsKindsAndFallbacks(t *testing.T) {
	t.Parallel()

	m := New()
	ctx := context.Background()
	m.StepFinished(ctx, research.StepEvent{Step: 0, Evolved: true, Snippets: 4, Revisions: 1, Duration: time.Second})
	m.StepFinished(ctx, research.StepEvent{Step: 1, Snippets: 2, Revisions: 2, Fallbacks: []string{research.FallbackVector}})
	m.StepFinished(ctx, research.StepEvent{Step: 2, Done: true, Revisions: 2})

	assert.InDelta(t, 1, testutil.ToFloat64(m.StepsTotal.WithLabelValues("evolved")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StepsTotal.WithLabelValues("synthesized")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StepsTotal.WithLabelValues("done")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("vector")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.DraftRevisions), 0)
}

func TestInstrument_RecordsOutcome(t *testing.T) {
	t.Parallel()

	m := New()
	calls := 0
	c := m.Instrument(llm.CompleterFunc(func(context.Context, llm.Prompt) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}))

	_, _ = c.Complete(context.Background(), llm.Prompt{Label: "judge"})
	_, err := c.Complete(context.Background(), llm.Prompt{Label: "judge"})
	require.Error(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.CompletionsTotal.WithLabelValues("judge", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CompletionsTotal.WithLabelValues("judge", "error")), 0)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m := New()
	m.StepFinished(context.Background(), research.StepEvent{Evolved: true})
	path := filepath.Join(t.TempDir(), "ttdr.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `ttdr_research_steps_total{kind="evolved"} 1`))
}
