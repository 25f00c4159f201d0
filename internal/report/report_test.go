package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedState() *model.ResearchState {
	plan := model.Plan{Sections: []model.Section{
		{ID: "costs", Title: "Costs"},
		{ID: "outlook", Title: "Outlook"},
	}}
	st := model.NewResearchState("EV battery prices", plan)
	st.Append(model.Finding{Question: "What did packs cost in 2015?", Answer: "About $380/kWh.", Sources: []string{"https://example.com/a"}})
	st.Append(model.Finding{Question: "And in 2023?", Answer: "About $139/kWh.", Sources: []string{"https://example.com/a", "https://example.com/b"}})
	st.CommitDraft(map[string]string{"costs": "Prices fell about 63%."})
	st.Advance()
	st.Advance()
	st.Finish(model.StatusDoneBudget)
	return st
}

func TestFallback_RendersDraftAndFindings(t *testing.T) {
	t.Parallel()

	got := Fallback(finishedState())
	assert.Contains(t, got, "## Costs\n\nPrices fell about 63%.")
	assert.Contains(t, got, "## Outlook\n\n_No content._")
	assert.Contains(t, got, "### And in 2023?\n\nAbout $139/kWh.")
	assert.Equal(t, 1, strings.Count(got, "- https://example.com/a"))
	assert.Contains(t, got, "- https://example.com/b")
	assert.Equal(t, got, Fallback(finishedState()))
}

func TestWriter_FallsBackOnFailure(t *testing.T) {
	t.Parallel()

	st := finishedState()
	for name, c := range map[string]llm.Completer{
		"error": llm.CompleterFunc(func(context.Context, llm.Prompt) (string, error) { return "", errors.New("timeout") }),
		"empty": llm.CompleterFunc(func(context.Context, llm.Prompt) (string, error) { return "  ", nil }),
	} {
		assert.Equal(t, Fallback(st), NewWriter(c, zerolog.Nop()).Write(context.Background(), st), name)
	}
}

func TestWriter_UsesCompletion(t *testing.T) {
	t.Parallel()

	var prompt llm.Prompt
	c := llm.CompleterFunc(func(_ context.Context, p llm.Prompt) (string, error) {
		prompt = p
		return "## Costs\n\nDown.\n", nil
	})
	got := NewWriter(c, zerolog.Nop()).Write(context.Background(), finishedState())
	assert.Equal(t, "## Costs\n\nDown.", got)
	assert.Equal(t, "report", prompt.Label)
	assert.Contains(t, prompt.User, "Q2: And in 2023?")
	assert.Contains(t, prompt.User, "Prices fell about 63%.")
}

func TestDocument_Header(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	got := Document(finishedState(), "## Costs\n\nDown.", at)
	assert.True(t, strings.HasPrefix(got, "# EV battery prices\n\n"))
	assert.Contains(t, got, "- Status: done_budget\n")
	assert.Contains(t, got, "- Steps: 2\n")
	assert.Contains(t, got, "- Draft revisions: 1\n")
	assert.Contains(t, got, "- Generated: 2025-01-02T03:04:05Z\n")
}

func TestRender_PlainStyle(t *testing.T) {
	t.Parallel()

	out, err := Render("# Title\n\nSome *text*.", "notty", 60)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "text")
}
