package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/metalagman/ttdr/internal/model"
)

// Output is the plan as the planning completion returns it.
type Output struct {
	Sections []SectionPlan `json:"sections" yaml:"sections"`
}

func (o Output) Validate() error {
	if len(o.Sections) == 0 {
		return fmt.Errorf("at least one section is required")
	}
	for i := range o.Sections {
		if err := o.Sections[i].Validate(); err != nil {
			return fmt.Errorf("section[%d]: %w", i, err)
		}
	}
	return nil
}

// SectionPlan is one planned report section.
type SectionPlan struct {
	ID        string   `json:"id,omitempty"        yaml:"id,omitempty"`
	Title     string   `json:"title"               yaml:"title"`
	Intent    string   `json:"intent,omitempty"    yaml:"intent,omitempty"`
	Questions []string `json:"questions,omitempty" yaml:"questions,omitempty"`
}

func (s SectionPlan) Validate() error {
	if strings.TrimSpace(s.Title) == "" && strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// ToPlan converts the output into a model plan. Missing ids are derived from
// titles and made unique.
func (o Output) ToPlan() model.Plan {
	plan := model.Plan{Sections: make([]model.Section, 0, len(o.Sections))}
	used := make(map[string]int, len(o.Sections))
	for i, s := range o.Sections {
		id := slug(s.ID)
		if id == "" {
			id = slug(s.Title)
		}
		if id == "" {
			id = "section-" + strconv.Itoa(i+1)
		}
		if n := used[id]; n > 0 {
			used[id] = n + 1
			id = id + "-" + strconv.Itoa(n+1)
		}
		used[id]++

		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = s.ID
		}
		questions := make([]string, 0, len(s.Questions))
		for _, q := range s.Questions {
			if q = strings.TrimSpace(q); q != "" {
				questions = append(questions, q)
			}
		}
		plan.Sections = append(plan.Sections, model.Section{
			ID:        id,
			Title:     title,
			Intent:    strings.TrimSpace(s.Intent),
			Questions: questions,
		})
	}
	return plan
}

// FromPlan is the inverse of ToPlan.
func FromPlan(plan model.Plan) Output {
	out := Output{Sections: make([]SectionPlan, 0, len(plan.Sections))}
	for _, s := range plan.Sections {
		out.Sections = append(out.Sections, SectionPlan{
			ID:        s.ID,
			Title:     s.Title,
			Intent:    s.Intent,
			Questions: s.Questions,
		})
	}
	return out
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}
