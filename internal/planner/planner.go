// Package planner produces the research plan: ordered report sections with
// guiding questions, generated by a completion call or loaded from a file.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/rs/zerolog"
)

const planOutputSchema = `{
  "type":"object",
  "properties":{
    "sections":{
      "type":"array",
      "minItems":1,
      "items":{
        "type":"object",
        "properties":{
          "id":{"type":"string"},
          "title":{"type":"string"},
          "intent":{"type":"string"},
          "questions":{"type":"array","items":{"type":"string"}}
        },
        "required":["title"]
      }
    }
  },
  "required":["sections"]
}`

// Planner asks the completion capability for a plan.
type Planner struct {
	llm    llm.Completer
	logger zerolog.Logger
}

// New constructs a Planner.
func New(c llm.Completer, logger zerolog.Logger) *Planner {
	return &Planner{llm: c, logger: logger.With().Str("component", "planner").Logger()}
}

// Generate returns a validated plan for query.
func (p *Planner) Generate(ctx context.Context, query string) (model.Plan, error) {
	if strings.TrimSpace(query) == "" {
		return model.Plan{}, fmt.Errorf("query is required")
	}
	raw, err := p.llm.Complete(ctx, llm.Prompt{
		Label:  "plan",
		System: buildPlanPrompt(),
		User:   "Research query: " + query,
	})
	if err != nil {
		return model.Plan{}, fmt.Errorf("generate plan: %w", err)
	}
	var out Output
	if err := llm.DecodeJSON(raw, planOutputSchema, &out); err != nil {
		return model.Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	if err := out.Validate(); err != nil {
		return model.Plan{}, fmt.Errorf("invalid plan: %w", err)
	}
	plan := out.ToPlan()
	if err := plan.Validate(); err != nil {
		return model.Plan{}, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}

// Plan is Generate with the minimal default plan as fallback.
func (p *Planner) Plan(ctx context.Context, query string) model.Plan {
	plan, err := p.Generate(ctx, query)
	if err != nil {
		p.logger.Warn().Err(err).Msg("planning failed, using default plan")
		return model.DefaultPlan(query)
	}
	p.logger.Info().Int("sections", len(plan.Sections)).Msg("plan generated")
	return plan
}

func buildPlanPrompt() string {
	return strings.TrimSpace(`
You are a research planner.
Break the research query into the sections of a final report.

Rules:
- Output ONLY valid JSON: {"sections": [{"title": "...", "intent": "...", "questions": ["..."]}]}
- Do not include markdown, comments, or prose outside JSON.
- Prefer 3-6 sections in the order they should appear in the report.
- Give each section 2-4 concrete, searchable questions.
- Keep titles short.
`)
}
