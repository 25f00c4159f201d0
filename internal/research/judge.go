package research

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/metalagman/ttdr/internal/llm"
)

// Criterion is one axis an answer is scored on, from 0 to 10.
type Criterion struct {
	Name        string
	Description string
}

// Label is the capitalized name used in judge output.
func (c Criterion) Label() string {
	if c.Name == "" {
		return ""
	}
	return strings.ToUpper(c.Name[:1]) + c.Name[1:]
}

// DefaultCriteria are the fixed self-evolution criteria.
var DefaultCriteria = []Criterion{
	{Name: "helpfulness", Description: "matches the intent of the question, is clear and accurate"},
	{Name: "completeness", Description: "covers the question fully with no missing information"},
}

// MinScore and MaxScore bound Score.Value.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Score is a judge verdict.
type Score struct {
	Value    float64
	Critique string
}

// Scorer rates a candidate answer against criteria.
type Scorer interface {
	Score(ctx context.Context, question, candidate string, criteria []Criterion) (Score, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, question, candidate string, criteria []Criterion) (Score, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, question, candidate string, criteria []Criterion) (Score, error) {
	return f(ctx, question, candidate, criteria)
}

// LLMJudge scores answers with the completion capability. The verdict is
// the mean of the per-criterion scores.
type LLMJudge struct {
	llm llm.Completer
}

// NewLLMJudge constructs a judge.
func NewLLMJudge(c llm.Completer) *LLMJudge {
	return &LLMJudge{llm: c}
}

// Score asks for one score per criterion and a critique.
func (j *LLMJudge) Score(ctx context.Context, question, candidate string, criteria []Criterion) (Score, error) {
	if len(criteria) == 0 {
		criteria = DefaultCriteria
	}
	out, err := j.llm.Complete(ctx, judgePrompt(question, candidate, criteria))
	if err != nil {
		return Score{}, err
	}
	return ParseJudgement(out, criteria)
}

var critiqueRe = regexp.MustCompile(`(?is)(?:critique|feedback)\s*:\s*(.+)`)

// ParseJudgement reads "<Criterion>: <n>" lines and a "Critique:" block.
// Each score is clamped to [MinScore, MaxScore]. A missing criterion makes
// the output malformed.
func ParseJudgement(out string, criteria []Criterion) (Score, error) {
	if len(criteria) == 0 {
		criteria = DefaultCriteria
	}
	var sum float64
	for _, c := range criteria {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(c.Name) + `[\s*_]*[:=]\s*\**\s*(\d+(?:\.\d+)?)`)
		m := re.FindStringSubmatch(out)
		if m == nil {
			return Score{}, fmt.Errorf("judge output lacks %s score: %w", c.Name, llm.ErrMalformedOutput)
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Score{}, fmt.Errorf("judge %s score %q: %w", c.Name, m[1], llm.ErrMalformedOutput)
		}
		sum += clamp(v)
	}

	critique := ""
	if m := critiqueRe.FindStringSubmatch(out); m != nil {
		critique = strings.TrimSpace(m[1])
	}
	return Score{Value: sum / float64(len(criteria)), Critique: critique}, nil
}

func clamp(v float64) float64 {
	switch {
	case v < MinScore:
		return MinScore
	case v > MaxScore:
		return MaxScore
	}
	return v
}
