package research

import (
	"context"
	"time"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/rs/zerolog"
)

// Controller drives the research loop. A Controller may run several
// queries, one at a time or concurrently; each Run owns its own state.
type Controller struct {
	llm      llm.Completer
	params   Params
	web      WebSearcher
	vector   VectorRetriever
	sink     SnapshotSink
	scorer   Scorer
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithWebSearcher sets the web search provider.
func WithWebSearcher(s WebSearcher) Option { return func(c *Controller) { c.web = s } }

// WithVectorRetriever sets the optional vector store.
func WithVectorRetriever(r VectorRetriever) Option { return func(c *Controller) { c.vector = r } }

// WithSnapshotSink sets the persistence sink.
func WithSnapshotSink(s SnapshotSink) Option { return func(c *Controller) { c.sink = s } }

// WithScorer replaces the LLM judge.
func WithScorer(s Scorer) Option { return func(c *Controller) { c.scorer = s } }

// WithObserver sets the step observer.
func WithObserver(o Observer) Option { return func(c *Controller) { c.observer = o } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithClock overrides time.Now for finding timestamps.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// NewController constructs a controller. Providers left unset are skipped.
func NewController(completer llm.Completer, params Params, opts ...Option) *Controller {
	c := &Controller{
		llm:    completer,
		params: params,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scorer == nil && completer != nil {
		c.scorer = NewLLMJudge(completer)
	}
	c.logger = c.logger.With().Str("component", "research").Logger()
	return c
}

// Run researches query along plan until the question generator signals
// completion or the step budget is spent. Only configuration errors are
// returned; every other failure degrades to a local fallback.
func (c *Controller) Run(ctx context.Context, query string, plan model.Plan) (*model.ResearchState, error) {
	if c.llm == nil {
		return nil, ErrNoCompleter
	}
	if err := c.params.Validate(); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		c.logger.Warn().Err(err).Msg("unusable plan, using default plan")
		plan = model.DefaultPlan(query)
	}

	st := model.NewResearchState(query, plan)
	r := c.newRun(st)

	if c.params.SeedDraft {
		r.seed(ctx)
	}
	r.snapshot(ctx)

	for !st.Status().Terminal() {
		r.step(ctx)
	}

	c.logger.Info().
		Str("status", string(st.Status())).
		Int("steps", st.Step()).
		Int("findings", st.Len()).
		Int("revisions", st.Revisions()).
		Msg("research finished")
	return st, nil
}

// run bundles the per-run collaborators around one state.
type run struct {
	c         *Controller
	st        *model.ResearchState
	policy    StopPolicy
	questions *QuestionGenerator
	synth     *Synthesizer
	evolver   *Evolver
	denoiser  *Denoiser
}

func (c *Controller) newRun(st *model.ResearchState) *run {
	synth := NewSynthesizer(c.llm, c.params.SnippetTruncationLength)
	evolver := NewEvolver(synth, c.scorer, c.llm, c.params.CandidateCount, c.logger)
	evolver.now = c.now
	return &run{
		c:         c,
		st:        st,
		policy:    StopPolicy{MaxSteps: c.params.MaxSteps},
		questions: NewQuestionGenerator(c.llm),
		synth:     synth,
		evolver:   evolver,
		denoiser:  NewDenoiser(c.llm),
	}
}

func (r *run) seed(ctx context.Context) {
	sections, err := r.denoiser.Seed(ctx, r.st.Query(), r.st.Plan())
	if err != nil {
		r.c.logger.Warn().Err(err).Msg("seed draft failed, starting from empty sections")
		return
	}
	r.st.SeedDraft(sections)
}

func (r *run) step(ctx context.Context) {
	started := time.Now()
	step := r.st.Step()
	logger := r.c.logger.With().Int("step", step).Logger()
	ev := StepEvent{Step: step}

	history := r.st.History()
	q, err := r.questions.Next(ctx, r.st, SelectContext(history, r.c.params.ContextWindowLimit))
	if err != nil {
		logger.Warn().Err(err).Msg("question generation failed, using plan section")
		q = FallbackQuestion(r.st.Plan(), r.st.Query(), step)
		ev.Fallbacks = append(ev.Fallbacks, FallbackQuestionGen)
	}

	if q.IsDone() {
		r.policy.Semantic(r.st)
		ev.Done = true
		logger.Info().Str("status", string(r.st.Status())).Msg("research complete signal")
		r.finishStep(ctx, ev, started)
		return
	}
	ev.Question = q.Text()
	logger.Info().Str("question", q.Text()).Msg("researching")

	snippets := r.retrieve(ctx, q.Text(), &ev)
	ev.Snippets = len(snippets)
	draft := RenderDraft(r.st.Plan(), r.st.Draft())

	var finding model.Finding
	if step%r.c.params.EvolutionFrequency == 0 {
		finding, err = r.evolver.Evolve(ctx, q.Text(), draft, snippets)
		if err != nil {
			logger.Warn().Err(err).Msg("self-evolution failed, falling back")
			ev.Fallbacks = append(ev.Fallbacks, FallbackEvolution)
			finding = r.synthesize(ctx, q.Text(), draft, snippets, &ev, logger)
		}
	} else {
		finding = r.synthesize(ctx, q.Text(), draft, snippets, &ev, logger)
	}
	r.st.Append(finding)
	ev.Evolved = finding.Evolved
	ev.Sources = len(finding.Sources)

	r.denoise(ctx, &ev, logger)

	r.st.Advance()
	r.policy.Budget(r.st)
	r.finishStep(ctx, ev, started)
}

func (r *run) synthesize(ctx context.Context, question, draft string, snippets []model.Snippet, ev *StepEvent, logger zerolog.Logger) model.Finding {
	answer, err := r.synth.Synthesize(ctx, question, draft, snippets)
	if err != nil {
		logger.Warn().Err(err).Msg("synthesis failed, using retrieved snippets")
		ev.Fallbacks = append(ev.Fallbacks, FallbackSynthesis)
		answer = r.synth.Fallback(question, snippets)
	}
	return model.Finding{
		Question:  question,
		Answer:    answer,
		Sources:   Sources(snippets),
		Timestamp: r.c.now().UTC(),
	}
}

// retrieve concatenates web results and vector results, in that order.
// Provider failures yield no snippets.
func (r *run) retrieve(ctx context.Context, question string, ev *StepEvent) []model.Snippet {
	var out []model.Snippet
	if r.c.web != nil && r.c.params.SearchMaxResults > 0 {
		web, err := r.c.web.Search(ctx, question, r.c.params.SearchMaxResults)
		if err != nil {
			r.c.logger.Warn().Err(err).Msg("web search unavailable")
			ev.Fallbacks = append(ev.Fallbacks, FallbackSearch)
		} else {
			out = append(out, web...)
		}
	}
	if r.c.vector != nil && r.c.params.VectorTopK > 0 {
		docs, err := r.c.vector.Retrieve(ctx, question, r.c.params.VectorTopK)
		if err != nil {
			r.c.logger.Warn().Err(err).Msg("vector store unavailable")
			ev.Fallbacks = append(ev.Fallbacks, FallbackVector)
		} else {
			out = append(out, docs...)
		}
	}
	return out
}

func (r *run) denoise(ctx context.Context, ev *StepEvent, logger zerolog.Logger) {
	k := r.c.params.DenoiseBatchSize
	if k == 0 {
		return
	}
	recent := Window(r.st.History(), k)
	updates, err := r.denoiser.Denoise(ctx, r.st.Plan(), r.st.Draft(), recent)
	if err != nil {
		logger.Warn().Err(err).Msg("denoise failed, keeping previous draft")
		ev.Fallbacks = append(ev.Fallbacks, FallbackDenoise)
		return
	}
	changed := r.st.CommitDraft(updates)
	logger.Debug().Strs("sections", changed).Int("revision", r.st.Revisions()).Msg("draft denoised")
}

func (r *run) finishStep(ctx context.Context, ev StepEvent, started time.Time) {
	ev.Status = r.st.Status()
	ev.Revisions = r.st.Revisions()
	ev.Duration = time.Since(started)
	r.snapshot(ctx)
	if r.c.observer != nil {
		r.c.observer.StepFinished(ctx, ev)
	}
}

func (r *run) snapshot(ctx context.Context) {
	if r.c.sink == nil {
		return
	}
	if err := r.c.sink.SaveSnapshot(ctx, r.st.Snapshot()); err != nil {
		r.c.logger.Warn().Err(err).Int("step", r.st.Step()).Msg("snapshot failed")
	}
}
