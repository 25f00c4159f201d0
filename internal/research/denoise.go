package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
)

type sectionsOutput struct {
	Sections map[string]string `json:"sections"`
}

// Denoiser folds recent findings into the draft section by section.
type Denoiser struct {
	llm llm.Completer
}

// NewDenoiser constructs a Denoiser.
func NewDenoiser(c llm.Completer) *Denoiser {
	return &Denoiser{llm: c}
}

// Denoise returns replacement text for the sections the completion changed.
// Ids outside the plan are dropped. On any error the caller keeps the
// previous draft.
func (d *Denoiser) Denoise(ctx context.Context, plan model.Plan, draft map[string]string, recent []model.Finding) (map[string]string, error) {
	if len(recent) == 0 {
		return map[string]string{}, nil
	}
	prompt, err := denoisePrompt(plan, draft, recent)
	if err != nil {
		return nil, err
	}
	out, err := d.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("denoise: %w", err)
	}
	return decodeSections(out, plan)
}

// Seed produces an initial draft from model knowledge alone.
func (d *Denoiser) Seed(ctx context.Context, query string, plan model.Plan) (map[string]string, error) {
	out, err := d.llm.Complete(ctx, seedPrompt(query, plan))
	if err != nil {
		return nil, fmt.Errorf("seed draft: %w", err)
	}
	return decodeSections(out, plan)
}

func decodeSections(out string, plan model.Plan) (map[string]string, error) {
	var decoded sectionsOutput
	if err := llm.DecodeJSON(out, sectionsSchema, &decoded); err != nil {
		return nil, err
	}
	updates := make(map[string]string, len(decoded.Sections))
	for id, text := range decoded.Sections {
		id = strings.TrimSpace(id)
		if !plan.Has(id) {
			continue
		}
		updates[id] = strings.TrimSpace(text)
	}
	return updates, nil
}
