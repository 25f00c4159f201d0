package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSectionPlan() Plan {
	return Plan{Sections: []Section{{ID: "market", Title: "Market"}, {ID: "risks", Title: "Risks"}}}
}

func TestRestore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		snap    Snapshot
		wantErr string
	}{
		{
			name: "running",
			snap: Snapshot{Query: "q", Plan: twoSectionPlan(), Status: StatusRunning, Step: 2},
		},
		{
			name: "finished with report",
			snap: Snapshot{Query: "q", Plan: twoSectionPlan(), Status: StatusDoneBudget, Report: "# r"},
		},
		{
			name:    "unknown status",
			snap:    Snapshot{Query: "q", Plan: twoSectionPlan(), Status: "paused"},
			wantErr: `unknown status "paused"`,
		},
		{
			name:    "empty plan",
			snap:    Snapshot{Query: "q", Status: StatusRunning},
			wantErr: "plan has no sections",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st, err := Restore(tt.snap)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, st)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.snap.Status, st.Status())
			assert.Equal(t, tt.snap.Step, st.Step())
			assert.Equal(t, tt.snap.Report, st.Report())
		})
	}
}

func TestRestore_DropsDraftOutsidePlan(t *testing.T) {
	t.Parallel()

	st, err := Restore(Snapshot{
		Query:  "q",
		Plan:   twoSectionPlan(),
		Status: StatusRunning,
		Draft:  map[string]string{"market": "m", "stray": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"market": "m", "risks": ""}, st.Draft())
}

func TestCommitDraft(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		updates     map[string]string
		wantChanged []string
		wantDraft   map[string]string
	}{
		{
			name:        "ids outside the plan are ignored",
			updates:     map[string]string{"market": "growing", "weather": "sunny"},
			wantChanged: []string{"market"},
			wantDraft:   map[string]string{"market": "growing", "risks": ""},
		},
		{
			name:      "unchanged text is not reported",
			updates:   map[string]string{"risks": ""},
			wantDraft: map[string]string{"market": "", "risks": ""},
		},
		{
			name:        "changes reported in plan order",
			updates:     map[string]string{"risks": "rates", "market": "flat"},
			wantChanged: []string{"market", "risks"},
			wantDraft:   map[string]string{"market": "flat", "risks": "rates"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := NewResearchState("q", twoSectionPlan())
			changed := st.CommitDraft(tt.updates)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantDraft, st.Draft())
			assert.Equal(t, 1, st.Revisions())
		})
	}
}

func TestFinish(t *testing.T) {
	t.Parallel()

	st := NewResearchState("q", twoSectionPlan())
	assert.False(t, st.Finish(StatusRunning), "running is not terminal")
	assert.Equal(t, StatusRunning, st.Status())

	assert.True(t, st.Finish(StatusDoneSemantic))
	assert.False(t, st.Finish(StatusDoneSemantic))
	assert.False(t, st.Finish(StatusDoneBudget))
	assert.Equal(t, StatusDoneSemantic, st.Status())
}

func TestHistoryIsAppendOnlyCopy(t *testing.T) {
	t.Parallel()

	st := NewResearchState("q", twoSectionPlan())
	st.Append(Finding{Question: "q1", Answer: "a1", Sources: []string{"s1"}})

	h := st.History()
	h[0].Answer = "edited"
	h[0].Sources[0] = "edited"

	got := st.History()
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].Answer)
	assert.Equal(t, []string{"s1"}, got[0].Sources)
}
