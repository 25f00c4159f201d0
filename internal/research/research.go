// Package research implements the iterative draft-refinement loop: question
// generation, retrieval, answer synthesis with periodic self-evolution,
// draft denoising and the stopping policy.
package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/ttdr/internal/model"
)

var (
	// ErrNoCompleter is returned by Run when no completion capability is set.
	ErrNoCompleter = errors.New("no completion capability configured")
	// ErrInvalidParams is returned by Run for out-of-range parameters.
	ErrInvalidParams = errors.New("invalid research parameters")
)

// WebSearcher returns snippets from a web search provider.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.Snippet, error)
}

// VectorRetriever returns snippets from a vector knowledge store.
type VectorRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]model.Snippet, error)
}

// SnapshotSink persists state snapshots.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Observer is notified after each step.
type Observer interface {
	StepFinished(ctx context.Context, ev StepEvent)
}

// StepEvent summarizes one finished step.
type StepEvent struct {
	Step      int
	Question  string
	Done      bool
	Evolved   bool
	Snippets  int
	Sources   int
	Fallbacks []string
	Status    model.Status
	Revisions int
	Duration  time.Duration
}

// Fallback names reported in StepEvent.Fallbacks.
const (
	FallbackQuestionGen = "question"
	FallbackSearch      = "search"
	FallbackVector      = "vector"
	FallbackSynthesis   = "synthesis"
	FallbackEvolution   = "evolution"
	FallbackDenoise     = "denoise"
)

// Params holds the loop parameters.
type Params struct {
	MaxSteps                int
	EvolutionFrequency      int
	CandidateCount          int
	ContextWindowLimit      int
	DenoiseBatchSize        int
	SnippetTruncationLength int
	SearchMaxResults        int
	VectorTopK              int
	SeedDraft               bool
}

// DefaultParams returns the stock parameters.
func DefaultParams() Params {
	return Params{
		MaxSteps:                3,
		EvolutionFrequency:      3,
		CandidateCount:          2,
		ContextWindowLimit:      5,
		DenoiseBatchSize:        3,
		SnippetTruncationLength: 300,
		SearchMaxResults:        5,
		VectorTopK:              2,
		SeedDraft:               true,
	}
}

// Validate reports parameters the loop cannot run with. A zero
// DenoiseBatchSize disables denoising; zero result counts disable the
// corresponding provider.
func (p Params) Validate() error {
	switch {
	case p.MaxSteps <= 0:
		return fmt.Errorf("%w: max_steps must be > 0, got %d", ErrInvalidParams, p.MaxSteps)
	case p.EvolutionFrequency <= 0:
		return fmt.Errorf("%w: evolution_frequency must be > 0, got %d", ErrInvalidParams, p.EvolutionFrequency)
	case p.CandidateCount <= 0:
		return fmt.Errorf("%w: candidate_count must be > 0, got %d", ErrInvalidParams, p.CandidateCount)
	case p.SnippetTruncationLength <= 0:
		return fmt.Errorf("%w: snippet_truncation_length must be > 0, got %d", ErrInvalidParams, p.SnippetTruncationLength)
	case p.ContextWindowLimit < 0, p.DenoiseBatchSize < 0, p.SearchMaxResults < 0, p.VectorTopK < 0:
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidParams)
	}
	return nil
}
