package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Candidate is one alternative answer inside a single self-evolution pass.
type Candidate struct {
	Text     string
	Score    float64
	Critique string
	// Scored is false when the judge call failed. Such candidates carry
	// MinScore and are never selected.
	Scored bool
}

// Evolver runs self-evolution: fan out candidates, judge, revise the best
// once and merge.
type Evolver struct {
	synth    *Synthesizer
	scorer   Scorer
	llm      llm.Completer
	n        int
	criteria []Criterion
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEvolver constructs an Evolver producing n candidates per pass.
func NewEvolver(synth *Synthesizer, scorer Scorer, reviser llm.Completer, n int, logger zerolog.Logger) *Evolver {
	if n <= 0 {
		n = 1
	}
	return &Evolver{
		synth:    synth,
		scorer:   scorer,
		llm:      reviser,
		n:        n,
		criteria: DefaultCriteria,
		logger:   logger.With().Str("component", "evolution").Logger(),
		now:      time.Now,
	}
}

// Evolve returns an evolved finding. It fails only when every candidate
// generation failed.
func (e *Evolver) Evolve(ctx context.Context, question, draft string, snippets []model.Snippet) (model.Finding, error) {
	candidates, err := e.generate(ctx, question, draft, snippets)
	if err != nil {
		return model.Finding{}, err
	}

	for i := range candidates {
		s, err := e.scorer.Score(ctx, question, candidates[i].Text, e.criteria)
		if err != nil {
			e.logger.Warn().Err(err).Int("candidate", i).Msg("judge failed, using minimum score")
			candidates[i].Score = MinScore
			continue
		}
		candidates[i].Score = s.Value
		candidates[i].Critique = s.Critique
		candidates[i].Scored = true
	}

	answer := candidates[0].Text
	if best, ok := selectBest(candidates); ok {
		answer = e.revise(ctx, question, best)
	} else {
		e.logger.Warn().Msg("all judge calls failed, keeping first candidate unrevised")
	}

	return model.Finding{
		Question:  question,
		Answer:    answer,
		Sources:   Sources(snippets),
		Timestamp: e.now().UTC(),
		Evolved:   true,
	}, nil
}

// generate issues the candidate calls concurrently and keeps the successful
// ones in generation order.
func (e *Evolver) generate(ctx context.Context, question, draft string, snippets []model.Snippet) ([]Candidate, error) {
	texts := make([]string, e.n)
	errs := make([]error, e.n)

	var g errgroup.Group
	for i := range e.n {
		g.Go(func() error {
			texts[i], errs[i] = e.synth.Synthesize(ctx, question, draft, snippets)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Candidate, 0, e.n)
	for i := range e.n {
		if errs[i] != nil {
			e.logger.Warn().Err(errs[i]).Int("candidate", i).Msg("candidate generation failed")
			continue
		}
		out = append(out, Candidate{Text: texts[i]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("all %d candidate generations failed: %w", e.n, errors.Join(errs...))
	}
	return out, nil
}

// selectBest returns the highest scoring judged candidate; ties keep the
// earlier one. It reports false when no candidate was judged.
func selectBest(candidates []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if !c.Scored {
			continue
		}
		if !found || c.Score > best.Score {
			best, found = c, true
		}
	}
	return best, found
}

func (e *Evolver) revise(ctx context.Context, question string, c Candidate) string {
	if strings.TrimSpace(c.Critique) == "" {
		c.Critique = "Make the answer more complete and precise."
	}
	out, err := e.llm.Complete(ctx, revisionPrompt(question, c.Text, c.Critique))
	if err == nil {
		out = strings.TrimSpace(out)
	}
	if err != nil || out == "" {
		e.logger.Warn().Err(err).Msg("revision failed, keeping selected candidate")
		return c.Text
	}
	return out
}
