// Package model defines the research state shared by the loop, the stores and the CLI.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a research run.
type Status string

const (
	StatusRunning      Status = "running"
	StatusDoneSemantic Status = "done_semantic"
	StatusDoneBudget   Status = "done_budget"
)

// Terminal reports whether no further steps may run.
func (s Status) Terminal() bool {
	return s == StatusDoneSemantic || s == StatusDoneBudget
}

// Section is one entry of a research plan.
type Section struct {
	ID        string   `json:"id"                  yaml:"id"`
	Title     string   `json:"title"               yaml:"title"`
	Intent    string   `json:"intent,omitempty"    yaml:"intent,omitempty"`
	Questions []string `json:"questions,omitempty" yaml:"questions,omitempty"`
}

// Plan is the ordered list of report sections.
type Plan struct {
	Sections []Section `json:"sections" yaml:"sections"`
}

// IDs returns section identifiers in plan order.
func (p Plan) IDs() []string {
	ids := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		ids = append(ids, s.ID)
	}
	return ids
}

// Has reports whether the plan contains a section with the given id.
func (p Plan) Has(id string) bool {
	return slices.ContainsFunc(p.Sections, func(s Section) bool { return s.ID == id })
}

// Validate checks that the plan is usable as draft keys.
func (p Plan) Validate() error {
	if len(p.Sections) == 0 {
		return errors.New("plan has no sections")
	}
	seen := make(map[string]struct{}, len(p.Sections))
	for i, s := range p.Sections {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("plan section %d has empty id", i)
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("plan section id %q is duplicated", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	out := Plan{Sections: make([]Section, len(p.Sections))}
	for i, s := range p.Sections {
		s.Questions = slices.Clone(s.Questions)
		out.Sections[i] = s
	}
	return out
}

// DefaultPlan is the minimal plan used when no usable plan is available.
func DefaultPlan(query string) Plan {
	return Plan{Sections: []Section{{
		ID:        "general",
		Title:     "General Research",
		Intent:    strings.TrimSpace(query),
		Questions: []string{strings.TrimSpace(query)},
	}}}
}

// Snippet is a retrieved piece of evidence with its citation.
type Snippet struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Finding is one committed question/answer pair. Findings are never edited
// after they are appended to a state; corrections arrive as later findings.
type Finding struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
	Evolved   bool      `json:"evolved"`
}

// Hash returns a stable content hash of the finding.
func (f Finding) Hash() string {
	data, _ := json.Marshal(f)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (f Finding) clone() Finding {
	f.Sources = slices.Clone(f.Sources)
	if f.Sources == nil {
		f.Sources = []string{}
	}
	return f
}

// ResearchState is the aggregate owned by a single research run.
type ResearchState struct {
	query     string
	plan      Plan
	draft     map[string]string
	history   []Finding
	step      int
	status    Status
	revisions int
	report    string
}

// NewResearchState creates a running state with one empty draft entry per plan section.
func NewResearchState(query string, plan Plan) *ResearchState {
	draft := make(map[string]string, len(plan.Sections))
	for _, id := range plan.IDs() {
		draft[id] = ""
	}
	return &ResearchState{
		query:  query,
		plan:   plan.Clone(),
		draft:  draft,
		status: StatusRunning,
	}
}

func (s *ResearchState) Query() string            { return s.query }
func (s *ResearchState) Plan() Plan               { return s.plan.Clone() }
func (s *ResearchState) Step() int                { return s.step }
func (s *ResearchState) Status() Status           { return s.status }
func (s *ResearchState) Revisions() int           { return s.revisions }
func (s *ResearchState) Report() string           { return s.report }
func (s *ResearchState) Len() int                 { return len(s.history) }
func (s *ResearchState) Draft() map[string]string { return maps.Clone(s.draft) }

// History returns a copy of the findings in append order.
func (s *ResearchState) History() []Finding {
	out := make([]Finding, len(s.history))
	for i, f := range s.history {
		out[i] = f.clone()
	}
	return out
}

// Append commits a finding to the history.
func (s *ResearchState) Append(f Finding) {
	s.history = append(s.history, f.clone())
}

// CommitDraft replaces the sections present in updates. Ids outside the plan
// are ignored. It counts as one revision and returns the ids that changed.
func (s *ResearchState) CommitDraft(updates map[string]string) []string {
	var changed []string
	for _, id := range s.plan.IDs() {
		text, ok := updates[id]
		if !ok || s.draft[id] == text {
			continue
		}
		s.draft[id] = text
		changed = append(changed, id)
	}
	s.revisions++
	return changed
}

// SeedDraft fills sections that are still empty. It runs before the first
// step and does not count as a revision.
func (s *ResearchState) SeedDraft(sections map[string]string) {
	for _, id := range s.plan.IDs() {
		if text, ok := sections[id]; ok && s.draft[id] == "" {
			s.draft[id] = text
		}
	}
}

// Advance increments the step counter after a step completes.
func (s *ResearchState) Advance() {
	s.step++
}

// Finish moves a running state into a terminal status. It returns false and
// leaves the state unchanged when the state is already terminal.
func (s *ResearchState) Finish(status Status) bool {
	if s.status.Terminal() || !status.Terminal() {
		return false
	}
	s.status = status
	return true
}

// SetReport stores the final report text produced after the loop.
func (s *ResearchState) SetReport(report string) {
	s.report = report
}

// Snapshot is the serializable view of a state handed to persistence.
type Snapshot struct {
	Query     string            `json:"query"`
	Plan      Plan              `json:"plan"`
	History   []Finding         `json:"history"`
	Draft     map[string]string `json:"draft"`
	Step      int               `json:"step"`
	Status    Status            `json:"status"`
	Revisions int               `json:"revisions"`
	Report    string            `json:"report,omitempty"`
	TakenAt   time.Time         `json:"taken_at"`
}

// Snapshot returns a deep copy of the state.
func (s *ResearchState) Snapshot() Snapshot {
	return Snapshot{
		Query:     s.query,
		Plan:      s.plan.Clone(),
		History:   s.History(),
		Draft:     s.Draft(),
		Step:      s.step,
		Status:    s.status,
		Revisions: s.revisions,
		Report:    s.report,
		TakenAt:   time.Now().UTC(),
	}
}

// Restore rebuilds a state from a snapshot.
func Restore(snap Snapshot) (*ResearchState, error) {
	if err := snap.Plan.Validate(); err != nil {
		return nil, fmt.Errorf("restore state: %w", err)
	}
	switch snap.Status {
	case StatusRunning, StatusDoneSemantic, StatusDoneBudget:
	default:
		return nil, fmt.Errorf("restore state: unknown status %q", snap.Status)
	}
	st := NewResearchState(snap.Query, snap.Plan)
	for id, text := range snap.Draft {
		if snap.Plan.Has(id) {
			st.draft[id] = text
		}
	}
	for _, f := range snap.History {
		st.Append(f)
	}
	st.step = snap.Step
	st.status = snap.Status
	st.revisions = snap.Revisions
	st.report = snap.Report
	return st, nil
}
