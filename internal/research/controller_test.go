package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQuery = "How did EV battery prices change since 2015?"

func TestControllerRun_StopsOnBudget(t *testing.T) {
	t.Parallel()

	fake := happyLLM()
	sink := &recordingSink{}
	obs := &recordingObserver{}
	web := staticSearcher(model.Snippet{Text: "Pack prices fell 89%.", Source: "https://example.com/bnef"})

	c := NewController(fake, testParams(),
		WithWebSearcher(web),
		WithSnapshotSink(sink),
		WithObserver(obs),
		WithClock(fixedClock),
	)
	st, err := c.Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Equal(t, model.StatusDoneBudget, st.Status())
	assert.Equal(t, 3, st.Step())
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, 3, st.Revisions())
	assert.Equal(t, "merged draft", st.Draft()["general"])

	history := st.History()
	assert.True(t, history[0].Evolved)
	assert.False(t, history[1].Evolved)
	assert.False(t, history[2].Evolved)
	assert.Equal(t, "revised answer", history[0].Answer)
	for _, f := range history {
		assert.Equal(t, []string{"https://example.com/bnef"}, f.Sources)
		assert.Equal(t, fixedNow, f.Timestamp)
	}

	// Two candidates on step 0, one plain synthesis on steps 1 and 2.
	assert.Equal(t, 4, fake.count("synthesis"))
	assert.Equal(t, 2, fake.count("judge"))
	assert.Equal(t, 1, fake.count("revision"))
	assert.Equal(t, 3, fake.count("denoise"))
	assert.Len(t, web.calls, 3)

	require.Len(t, sink.snaps, 4)
	assert.Equal(t, 0, sink.snaps[0].Step)
	assert.Empty(t, sink.snaps[0].History)
	require.Len(t, obs.events, 3)
	assert.Equal(t, model.StatusDoneBudget, obs.events[2].Status)
}

func TestControllerRun_StatusIsMonotonic(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	c := NewController(happyLLM(), testParams(), WithSnapshotSink(sink))
	_, err := c.Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	terminal := false
	for i, snap := range sink.snaps {
		if terminal {
			assert.True(t, snap.Status.Terminal(), "snapshot %d went back to running", i)
		}
		terminal = snap.Status.Terminal()
		if i > 0 {
			assert.GreaterOrEqual(t, snap.Step, sink.snaps[i-1].Step)
			assert.GreaterOrEqual(t, len(snap.History), len(sink.snaps[i-1].History))
		}
	}
	assert.True(t, terminal)
}

func TestControllerRun_FindingsAreNeverRewritten(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	params := testParams()
	params.MaxSteps = 5
	c := NewController(happyLLM(), params, WithSnapshotSink(sink), WithClock(fixedClock))
	st, err := c.Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	final := hashes(st.History())
	require.Len(t, final, 5)
	for _, snap := range sink.snaps {
		got := hashes(snap.History)
		if diff := cmp.Diff(final[:len(got)], got); diff != "" {
			t.Fatalf("history prefix changed at step %d (-want +got):\n%s", snap.Step, diff)
		}
	}
}

func hashes(history []model.Finding) []string {
	out := make([]string, 0, len(history))
	for _, f := range history {
		out = append(out, f.Hash())
	}
	return out
}

func TestControllerRun_EvolvesOnFrequencySteps(t *testing.T) {
	t.Parallel()

	params := testParams()
	params.MaxSteps = 7
	params.EvolutionFrequency = 3
	obs := &recordingObserver{}
	c := NewController(happyLLM(), params, WithObserver(obs))
	st, err := c.Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	var evolved []int
	for i, f := range st.History() {
		if f.Evolved {
			evolved = append(evolved, i)
		}
	}
	assert.Equal(t, []int{0, 3, 6}, evolved)
	for _, ev := range obs.events {
		assert.Equal(t, ev.Step%3 == 0, ev.Evolved, "step %d", ev.Step)
	}
}

func TestControllerRun_SemanticStopSkipsRetrieval(t *testing.T) {
	t.Parallel()

	fake := happyLLM().on("question", func(n int, _ llm.Prompt) (string, error) {
		if n == 1 {
			return "DONE", nil
		}
		return "What is the 2023 pack price?", nil
	})
	web := staticSearcher(model.Snippet{Text: "$139/kWh", Source: "https://example.com/2023"})
	sink := &recordingSink{}
	obs := &recordingObserver{}

	params := testParams()
	params.MaxSteps = 10
	c := NewController(fake, params, WithWebSearcher(web), WithSnapshotSink(sink), WithObserver(obs))
	st, err := c.Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Equal(t, model.StatusDoneSemantic, st.Status())
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, 1, st.Step())
	assert.Equal(t, []string{"What is the 2023 pack price?"}, web.calls)
	assert.Equal(t, 2, fake.count("question"))

	require.Len(t, obs.events, 2)
	assert.True(t, obs.events[1].Done)
	assert.Empty(t, obs.events[1].Question)
	last := sink.snaps[len(sink.snaps)-1]
	assert.Equal(t, model.StatusDoneSemantic, last.Status)
}

func TestControllerRun_EmptyQuestionMeansDone(t *testing.T) {
	t.Parallel()

	fake := happyLLM().reply("question", "  \n")
	st, err := NewController(fake, testParams()).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Equal(t, model.StatusDoneSemantic, st.Status())
	assert.Zero(t, st.Len())
	assert.Zero(t, fake.count("synthesis"))
}

func TestControllerRun_OneEvolutionWithDefaults(t *testing.T) {
	t.Parallel()

	fake := happyLLM()
	st, err := NewController(fake, testParams()).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Equal(t, model.StatusDoneBudget, st.Status())
	var evolved int
	for _, f := range st.History() {
		if f.Evolved {
			evolved++
		}
	}
	assert.Equal(t, 1, evolved)
	assert.True(t, st.History()[0].Evolved)
}

func TestControllerRun_VectorFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	web := staticSearcher(model.Snippet{Text: "web text", Source: "https://example.com/web"})
	vector := &fakeSearcher{fn: func(context.Context, string, int) ([]model.Snippet, error) {
		return nil, errors.New("weaviate: connection refused")
	}}
	obs := &recordingObserver{}
	fake := happyLLM()

	c := NewController(fake, testParams(), WithWebSearcher(web), WithVectorRetriever(vector), WithObserver(obs))
	st, err := c.Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Equal(t, model.StatusDoneBudget, st.Status())
	assert.Equal(t, 3, st.Len())
	assert.Len(t, vector.calls, 3)
	for _, f := range st.History() {
		assert.Equal(t, []string{"https://example.com/web"}, f.Sources)
	}
	for _, ev := range obs.events {
		assert.Contains(t, ev.Fallbacks, FallbackVector)
		assert.Equal(t, 1, ev.Snippets)
	}
	for _, p := range fake.promptsFor("synthesis") {
		assert.Contains(t, p.User, "web text")
	}
}

func TestControllerRun_WebSnippetsPrecedeVectorSnippets(t *testing.T) {
	t.Parallel()

	web := staticSearcher(model.Snippet{Text: "from the web", Source: "https://example.com/a"})
	vector := staticSearcher(model.Snippet{Text: "from the store", Source: "notes.md"})
	fake := happyLLM()

	params := testParams()
	params.MaxSteps = 1
	c := NewController(fake, params, WithWebSearcher(web), WithVectorRetriever(vector))
	st, err := c.Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/a", "notes.md"}, st.History()[0].Sources)
	user := fake.promptsFor("synthesis")[0].User
	assert.Less(t, strings.Index(user, "from the web"), strings.Index(user, "from the store"))
}

func TestControllerRun_DenoiseSeesOnlyAvailableFindings(t *testing.T) {
	t.Parallel()

	fake := happyLLM()
	params := testParams()
	params.MaxSteps = 1
	params.DenoiseBatchSize = 3
	st, err := NewController(fake, params).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)
	require.Equal(t, 1, st.Len())

	prompts := fake.promptsFor("denoise")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].User, "Q1:")
	assert.NotContains(t, prompts[0].User, "Q2:")
}

func TestControllerRun_DenoiseUsesLastKFindings(t *testing.T) {
	t.Parallel()

	fake := happyLLM()
	params := testParams()
	params.MaxSteps = 4
	params.DenoiseBatchSize = 2
	_, err := NewController(fake, params).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	prompts := fake.promptsFor("denoise")
	require.Len(t, prompts, 4)
	last := prompts[3].User
	assert.Contains(t, last, "year 3")
	assert.Contains(t, last, "year 4")
	assert.NotContains(t, last, "year 2")
}

func TestControllerRun_ZeroBatchDisablesDenoise(t *testing.T) {
	t.Parallel()

	fake := happyLLM()
	params := testParams()
	params.DenoiseBatchSize = 0
	st, err := NewController(fake, params).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Zero(t, fake.count("denoise"))
	assert.Zero(t, st.Revisions())
	assert.Empty(t, st.Draft()["general"])
}

func TestControllerRun_Fallbacks(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream 503")
	fake := happyLLM().
		fail("question", boom).
		fail("synthesis", boom).
		fail("denoise", boom)
	web := staticSearcher(model.Snippet{Text: "Cell prices fell to $100/kWh.", Source: "https://example.com/cells"})
	obs := &recordingObserver{}

	plan := model.Plan{Sections: []model.Section{
		{ID: "costs", Title: "Costs", Intent: "How did pack costs change?"},
		{ID: "drivers", Title: "Drivers", Questions: []string{"What drove the decline?"}},
	}}
	params := testParams()
	params.MaxSteps = 2
	c := NewController(fake, params, WithWebSearcher(web), WithObserver(obs))
	st, err := c.Run(context.Background(), testQuery, plan)
	require.NoError(t, err)

	assert.Equal(t, model.StatusDoneBudget, st.Status())
	history := st.History()
	require.Len(t, history, 2)
	assert.Equal(t, "How did pack costs change?", history[0].Question)
	assert.Equal(t, "What drove the decline?", history[1].Question)
	for _, f := range history {
		assert.Equal(t, "Cell prices fell to $100/kWh.", f.Answer)
		assert.False(t, f.Evolved)
	}
	assert.Zero(t, st.Revisions())
	assert.Equal(t, map[string]string{"costs": "", "drivers": ""}, st.Draft())

	require.Len(t, obs.events, 2)
	assert.Equal(t, []string{FallbackQuestionGen, FallbackEvolution, FallbackSynthesis, FallbackDenoise}, obs.events[0].Fallbacks)
	assert.Equal(t, []string{FallbackQuestionGen, FallbackSynthesis, FallbackDenoise}, obs.events[1].Fallbacks)
}

func TestControllerRun_InvalidPlanUsesDefault(t *testing.T) {
	t.Parallel()

	st, err := NewController(happyLLM(), testParams()).Run(context.Background(), testQuery, model.Plan{})
	require.NoError(t, err)

	assert.Equal(t, []string{"general"}, st.Plan().IDs())
	assert.Equal(t, "merged draft", st.Draft()["general"])
}

func TestControllerRun_SeedsDraft(t *testing.T) {
	t.Parallel()

	fake := happyLLM()
	params := testParams()
	params.SeedDraft = true
	params.DenoiseBatchSize = 0
	sink := &recordingSink{}
	st, err := NewController(fake, params, WithSnapshotSink(sink)).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Equal(t, 1, fake.count("seed"))
	assert.Equal(t, "seed draft", sink.snaps[0].Draft["general"])
	assert.Equal(t, "seed draft", st.Draft()["general"])
	assert.Zero(t, st.Revisions())
}

func TestControllerRun_SinkErrorsDoNotStopTheLoop(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{err: errors.New("disk full")}
	st, err := NewController(happyLLM(), testParams(), WithSnapshotSink(sink)).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.NoError(t, err)

	assert.Equal(t, model.StatusDoneBudget, st.Status())
	assert.Len(t, sink.snaps, 4)
}

func TestControllerRun_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	_, err := NewController(nil, testParams()).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.ErrorIs(t, err, ErrNoCompleter)

	params := testParams()
	params.MaxSteps = 0
	_, err = NewController(happyLLM(), params).Run(context.Background(), testQuery, model.DefaultPlan(testQuery))
	require.ErrorIs(t, err, ErrInvalidParams)
}
