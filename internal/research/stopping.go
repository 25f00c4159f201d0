package research

import "github.com/metalagman/ttdr/internal/model"

// StopPolicy decides terminal transitions of a running state.
type StopPolicy struct {
	MaxSteps int
}

// Semantic moves the state to done_semantic. It reports false when the state
// was already terminal.
func (p StopPolicy) Semantic(st *model.ResearchState) bool {
	return st.Finish(model.StatusDoneSemantic)
}

// Budget moves the state to done_budget once its step reaches MaxSteps.
func (p StopPolicy) Budget(st *model.ResearchState) bool {
	if st.Step() < p.MaxSteps {
		return false
	}
	return st.Finish(model.StatusDoneBudget)
}
