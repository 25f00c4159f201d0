package research

import (
	"context"
	"strings"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
)

// Synthesizer turns one question and its snippets into one answer.
type Synthesizer struct {
	llm      llm.Completer
	truncate int
}

// NewSynthesizer constructs a synthesizer that truncates each snippet to
// truncate runes.
func NewSynthesizer(c llm.Completer, truncate int) *Synthesizer {
	return &Synthesizer{llm: c, truncate: truncate}
}

// Synthesize makes one completion call. draft is the rendered read-only
// view of the current draft.
func (s *Synthesizer) Synthesize(ctx context.Context, question, draft string, snippets []model.Snippet) (string, error) {
	out, err := s.llm.Complete(ctx, synthesisPrompt(question, draft, snippets, s.truncate))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", llm.ErrEmptyOutput
	}
	return out, nil
}

// Fallback returns the truncated snippets verbatim, used when synthesis
// fails after retries.
func (s *Synthesizer) Fallback(question string, snippets []model.Snippet) string {
	if len(snippets) == 0 {
		return "No answer could be produced for: " + question
	}
	parts := make([]string, 0, len(snippets))
	for _, sn := range snippets {
		if text := strings.TrimSpace(truncateRunes(sn.Text, s.truncate)); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "No answer could be produced for: " + question
	}
	return strings.Join(parts, "\n\n")
}

// Sources returns snippet citations in order, de-duplicated, blanks dropped.
func Sources(snippets []model.Snippet) []string {
	out := make([]string, 0, len(snippets))
	seen := make(map[string]struct{}, len(snippets))
	for _, s := range snippets {
		src := strings.TrimSpace(s.Source)
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}
