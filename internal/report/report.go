// Package report turns a finished research state into the final Markdown
// report.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/rs/zerolog"
)

// Writer produces the report body.
type Writer struct {
	llm    llm.Completer
	logger zerolog.Logger
}

// NewWriter constructs a Writer. A nil completer always uses Fallback.
func NewWriter(c llm.Completer, logger zerolog.Logger) *Writer {
	return &Writer{llm: c, logger: logger.With().Str("component", "report").Logger()}
}

// Write synthesizes the report from the whole state. On failure the
// deterministic rendering of the draft and history is used.
func (w *Writer) Write(ctx context.Context, st *model.ResearchState) string {
	if w.llm == nil {
		return Fallback(st)
	}
	out, err := w.llm.Complete(ctx, finalPrompt(st))
	if err == nil {
		out = strings.TrimSpace(out)
	}
	if err != nil || out == "" {
		if err == nil {
			err = llm.ErrEmptyOutput
		}
		w.logger.Warn().Err(err).Msg("final report synthesis failed, rendering draft")
		return Fallback(st)
	}
	return out
}

func finalPrompt(st *model.ResearchState) llm.Prompt {
	plan := st.Plan()
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nSections:\n", st.Query())
	for i, s := range plan.Sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Title)
	}
	b.WriteString("\nDraft:\n")
	for _, s := range plan.Sections {
		fmt.Fprintf(&b, "## %s\n%s\n\n", s.Title, orEmpty(st.Draft()[s.ID]))
	}
	b.WriteString("Findings:\n")
	for i, f := range st.History() {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, f.Question, i+1, f.Answer)
		if len(f.Sources) > 0 {
			fmt.Fprintf(&b, "Sources: %s\n", strings.Join(f.Sources, ", "))
		}
	}
	return llm.Prompt{
		Label: "report",
		System: "Write the final research report in Markdown. Use one '##' heading per section, in the given order. " +
			"Ground every claim in the findings, cite sources as links, and end with a '## Sources' list. " +
			"Do not add a title line.",
		User: b.String(),
	}
}

// Fallback renders the draft sections followed by every finding. It uses
// no completion calls.
func Fallback(st *model.ResearchState) string {
	var b strings.Builder
	draft := st.Draft()
	for _, s := range st.Plan().Sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.Title, orEmpty(draft[s.ID]))
	}
	history := st.History()
	if len(history) > 0 {
		b.WriteString("## Findings\n\n")
		for _, f := range history {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", f.Question, strings.TrimSpace(f.Answer))
		}
	}
	if sources := allSources(history); len(sources) > 0 {
		b.WriteString("## Sources\n\n")
		for _, src := range sources {
			fmt.Fprintf(&b, "- %s\n", src)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func allSources(history []model.Finding) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, f := range history {
		for _, src := range f.Sources {
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}

func orEmpty(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "_No content._"
	}
	return s
}

// Document prefixes body with the report header.
func Document(st *model.ResearchState, body string, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", st.Query())
	fmt.Fprintf(&b, "- Status: %s\n", st.Status())
	fmt.Fprintf(&b, "- Steps: %d\n", st.Step())
	fmt.Fprintf(&b, "- Findings: %d\n", st.Len())
	fmt.Fprintf(&b, "- Draft revisions: %d\n", st.Revisions())
	fmt.Fprintf(&b, "- Generated: %s\n\n", generatedAt.UTC().Format(time.RFC3339))
	b.WriteString(strings.TrimSpace(body))
	b.WriteByte('\n')
	return b.String()
}

// Render formats Markdown for the terminal. style is a glamour standard
// style name; empty picks one from the terminal background.
func Render(markdown, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}
