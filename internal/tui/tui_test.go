package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/metalagman/ttdr/internal/research"
)

func TestModel_StepMessagesAppendLines(t *testing.T) {
	m := NewModel("battery chemistries", 5)

	updated, cmd := m.Update(stepMsg(research.StepEvent{
		Step:      0,
		Question:  "Which cathodes dominate?",
		Evolved:   true,
		Snippets:  4,
		Sources:   2,
		Revisions: 1,
		Duration:  1500 * time.Millisecond,
		Status:    model.StatusRunning,
	}))
	if cmd != nil {
		t.Errorf("step message should not produce a command")
	}
	m = updated.(Model)
	if len(m.steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(m.steps))
	}

	view := m.View()
	for _, want := range []string{"battery chemistries", "Which cathodes dominate?", "evolved", "step 2/5"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_FallbacksAreShown(t *testing.T) {
	m := NewModel("q", 3)
	updated, _ := m.Update(stepMsg(research.StepEvent{
		Question:  "q1",
		Fallbacks: []string{research.FallbackSearch, research.FallbackDenoise},
	}))
	view := updated.(Model).View()
	if !strings.Contains(view, "fallback: search,denoise") {
		t.Errorf("view missing fallbacks:\n%s", view)
	}
}

func TestModel_DoneQuits(t *testing.T) {
	m := NewModel("q", 3)
	updated, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg")
	}
	m = updated.(Model)
	if !m.done {
		t.Errorf("model should be done")
	}
	if !strings.Contains(m.View(), "research finished") {
		t.Errorf("unexpected view:\n%s", m.View())
	}
}

func TestModel_DoneWithError(t *testing.T) {
	m := NewModel("q", 3)
	updated, _ := m.Update(doneMsg{err: errors.New("no completer")})
	if !strings.Contains(updated.(Model).View(), "failed: no completer") {
		t.Errorf("error not rendered:\n%s", updated.(Model).View())
	}
}

func TestModel_CtrlCCancels(t *testing.T) {
	m := NewModel("q", 3)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	m = updated.(Model)
	if !m.cancelled {
		t.Errorf("model should be cancelled")
	}
	if !strings.Contains(m.View(), "cancelled") {
		t.Errorf("unexpected view:\n%s", m.View())
	}
}

func TestRenderStep_Done(t *testing.T) {
	got := renderStep(research.StepEvent{Step: 3, Done: true})
	if !strings.Contains(got, "step 4: research complete") {
		t.Errorf("unexpected line %q", got)
	}
}
