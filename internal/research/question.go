package research

import (
	"context"
	"strings"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
)

// Question is the tagged result of question generation: either a question
// to research or the signal that research is complete.
type Question struct {
	text string
	done bool
}

// Ask returns a question result.
func Ask(text string) Question { return Question{text: text} }

// Done returns the completion signal.
func Done() Question { return Question{done: true} }

// IsDone reports whether research is complete.
func (q Question) IsDone() bool { return q.done }

// Text returns the question text. It is empty for Done.
func (q Question) Text() string { return q.text }

// ParseQuestion converts raw completion output into a Question. Empty output
// and the DONE sentinel (any case, optional trailing punctuation or
// markdown) both mean done. Only the first non-empty line is kept.
func ParseQuestion(output string) Question {
	var line string
	for _, l := range strings.Split(output, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	for _, prefix := range []string{"Next question:", "Question:"} {
		if len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			line = strings.TrimSpace(line[len(prefix):])
		}
	}
	bare := strings.Trim(line, " \t*`\"'.!")
	if bare == "" || strings.EqualFold(bare, DoneSentinel) {
		return Done()
	}
	return Ask(strings.Trim(line, "\"'`"))
}

// QuestionGenerator asks the completion capability for the next question.
type QuestionGenerator struct {
	llm llm.Completer
}

// NewQuestionGenerator constructs a generator.
func NewQuestionGenerator(c llm.Completer) *QuestionGenerator {
	return &QuestionGenerator{llm: c}
}

// Next returns the next question for the state, given rendered context.
func (g *QuestionGenerator) Next(ctx context.Context, st *model.ResearchState, window string) (Question, error) {
	plan := st.Plan()
	out, err := g.llm.Complete(ctx, questionPrompt(st.Query(), RenderPlan(plan), window, RenderDraft(plan, st.Draft())))
	if err != nil {
		return Question{}, err
	}
	return ParseQuestion(out), nil
}

// FallbackQuestion derives a question from the plan section at step modulo
// the plan length.
func FallbackQuestion(plan model.Plan, query string, step int) Question {
	if len(plan.Sections) == 0 {
		return Ask(query)
	}
	s := plan.Sections[step%len(plan.Sections)]
	for _, candidate := range []string{s.Intent, firstOf(s.Questions), s.Title} {
		if strings.TrimSpace(candidate) != "" {
			return Ask(strings.TrimSpace(candidate))
		}
	}
	return Ask(query)
}

func firstOf(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}
