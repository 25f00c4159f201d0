package research

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
)

// DoneSentinel is the question generator's "research complete" output.
const DoneSentinel = "DONE"

const sectionsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "sections": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    }
  },
  "required": ["sections"]
}`

// RenderPlan lists plan sections with up to three guiding questions each.
func RenderPlan(plan model.Plan) string {
	var b strings.Builder
	for i, s := range plan.Sections {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, s.ID, s.Title)
		if s.Intent != "" && s.Intent != s.Title {
			fmt.Fprintf(&b, ": %s", s.Intent)
		}
		b.WriteByte('\n')
		for j, q := range s.Questions {
			if j == 3 {
				break
			}
			fmt.Fprintf(&b, "   - %s\n", q)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderDraft renders the draft in plan order. Empty sections are marked.
func RenderDraft(plan model.Plan, draft map[string]string) string {
	var b strings.Builder
	for _, s := range plan.Sections {
		text := strings.TrimSpace(draft[s.ID])
		if text == "" {
			text = "(empty)"
		}
		fmt.Fprintf(&b, "## %s [%s]\n%s\n\n", s.Title, s.ID, text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSnippets(snippets []model.Snippet, limit int) string {
	if len(snippets) == 0 {
		return "No sources retrieved. Answer from general knowledge and say so."
	}
	var b strings.Builder
	for i, s := range snippets {
		source := s.Source
		if strings.TrimSpace(source) == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, source, truncateRunes(s.Text, limit))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderFindings(findings []model.Finding) string {
	var b strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, f.Question, i+1, f.Answer)
		if len(f.Sources) > 0 {
			fmt.Fprintf(&b, "Sources: %s\n", strings.Join(f.Sources, ", "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func questionPrompt(query, plan, context, draft string) llm.Prompt {
	if context == "" {
		context = "None"
	}
	return llm.Prompt{
		Label: "question",
		System: "You plan the next step of a research project. Given the plan, the findings so far and the " +
			"current draft, write the single most useful next search question that closes a gap in the draft. " +
			"Reply with the question only. If the draft already covers every section well, reply with exactly " + DoneSentinel + ".",
		User: fmt.Sprintf("Query: %s\n\nPlan:\n%s\n\nRecent findings:\n%s\n\nDraft:\n%s\n\nNext question:",
			query, plan, context, draft),
		MaxTokens: 200,
	}
}

func synthesisPrompt(question, draft string, snippets []model.Snippet, limit int) llm.Prompt {
	return llm.Prompt{
		Label: "synthesis",
		System: "Synthesize one concise, factual answer to the question from the numbered sources. " +
			"Do not copy sources verbatim. Cite sources inline as [n]. Keep it consistent with the draft, " +
			"and state plainly what the sources do not cover.",
		User: fmt.Sprintf("Question: %s\n\nSources:\n%s\n\nCurrent draft (read only):\n%s\n\nAnswer:",
			question, renderSnippets(snippets, limit), draft),
	}
}

func judgePrompt(question, answer string, criteria []Criterion) llm.Prompt {
	var names, lines strings.Builder
	for i, c := range criteria {
		if i > 0 {
			names.WriteString(", ")
		}
		names.WriteString(c.Name)
		fmt.Fprintf(&lines, "%s: <0-10>\n", c.Label())
	}
	var desc strings.Builder
	for _, c := range criteria {
		fmt.Fprintf(&desc, "- %s: %s\n", c.Label(), c.Description)
	}
	return llm.Prompt{
		Label: "judge",
		System: "You are an expert evaluator. Rate the answer on " + names.String() + ", each from 0 to 10.\n" +
			desc.String() +
			"Reply in exactly this format:\n" + lines.String() + "Critique: <what is missing or wrong, and how to fix it>",
		User:        fmt.Sprintf("Question: %s\n\nAnswer:\n%s", question, answer),
		Temperature: llm.Float(0),
	}
}

func revisionPrompt(question, answer, critique string) llm.Prompt {
	return llm.Prompt{
		Label:  "revision",
		System: "Improve the answer using the feedback. Keep what is correct, fix what the feedback names and keep the citations.",
		User:   fmt.Sprintf("Question: %s\n\nAnswer:\n%s\n\nFeedback:\n%s\n\nImproved answer:", question, answer, critique),
	}
}

func denoisePrompt(plan model.Plan, draft map[string]string, recent []model.Finding) (llm.Prompt, error) {
	current, err := json.Marshal(orderedSections(plan, draft))
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("encode draft: %w", err)
	}
	return llm.Prompt{
		Label: "denoise",
		System: "You revise a research report draft section by section. Merge the new findings into the sections " +
			"they affect. Preserve existing content unless a finding contradicts or extends it. " +
			`Reply with JSON only: {"sections": {"<section id>": "<full new text>"}} containing only the sections you changed. ` +
			"Use only the section ids given.",
		User: fmt.Sprintf("Plan:\n%s\n\nCurrent sections (JSON):\n%s\n\nNew findings:\n%s",
			RenderPlan(plan), current, renderFindings(recent)),
	}, nil
}

func seedPrompt(query string, plan model.Plan) llm.Prompt {
	return llm.Prompt{
		Label: "seed",
		System: "Write a preliminary draft of a research report from your own knowledge. It will be refined with " +
			"research later, so mark uncertain statements as such. " +
			`Reply with JSON only: {"sections": {"<section id>": "<text>"}} with one entry per section id.`,
		User: fmt.Sprintf("Query: %s\n\nPlan:\n%s", query, RenderPlan(plan)),
	}
}

type sectionEntry struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func orderedSections(plan model.Plan, draft map[string]string) []sectionEntry {
	out := make([]sectionEntry, 0, len(plan.Sections))
	for _, s := range plan.Sections {
		out = append(out, sectionEntry{ID: s.ID, Text: draft[s.ID]})
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
