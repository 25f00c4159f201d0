// Package tui shows live progress of a research run in the terminal.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/metalagman/ttdr/internal/research"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A89"))
	evolvedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F"))
	fallbackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C"))
	doneStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))
)

type stepMsg research.StepEvent

type doneMsg struct{ err error }

// Model is the bubbletea model of the progress view.
type Model struct {
	spinner   spinner.Model
	query     string
	maxSteps  int
	steps     []research.StepEvent
	done      bool
	err       error
	cancelled bool
}

// NewModel constructs the progress model.
func NewModel(query string, maxSteps int) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = titleStyle
	return Model{spinner: s, query: query, maxSteps: maxSteps}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.cancelled = true
			return m, tea.Quit
		}
	case stepMsg:
		m.steps = append(m.steps, research.StepEvent(msg))
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Researching: "+m.query) + "\n\n")
	for _, ev := range m.steps {
		b.WriteString(renderStep(ev) + "\n")
	}
	switch {
	case m.err != nil:
		b.WriteString(fallbackStyle.Render("failed: "+m.err.Error()) + "\n")
	case m.done:
		b.WriteString(doneStyle.Render("research finished, writing report") + "\n")
	case m.cancelled:
		b.WriteString(mutedStyle.Render("cancelled") + "\n")
	default:
		fmt.Fprintf(&b, "%s step %d/%d\n", m.spinner.View(), len(m.steps)+1, m.maxSteps)
	}
	return b.String()
}

func renderStep(ev research.StepEvent) string {
	if ev.Done {
		return doneStyle.Render(fmt.Sprintf("✓ step %d: research complete", ev.Step+1))
	}
	line := fmt.Sprintf("• step %d: %s ", ev.Step+1, ev.Question)
	meta := fmt.Sprintf("(%d snippets, %d sources, rev %d, %s)", ev.Snippets, ev.Sources, ev.Revisions, ev.Duration.Round(1e8))
	out := line + mutedStyle.Render(meta)
	if ev.Evolved {
		out += " " + evolvedStyle.Render("evolved")
	}
	if len(ev.Fallbacks) > 0 {
		out += " " + fallbackStyle.Render("fallback: "+strings.Join(ev.Fallbacks, ","))
	}
	return out
}

// Progress runs work while rendering its step events.
type Progress struct {
	query    string
	maxSteps int
	out      io.Writer
	in       io.Reader

	mu      sync.Mutex
	program *tea.Program
}

// NewProgress constructs a progress view writing to out.
func NewProgress(query string, maxSteps int, in io.Reader, out io.Writer) *Progress {
	return &Progress{query: query, maxSteps: maxSteps, in: in, out: out}
}

// StepFinished implements research.Observer.
func (p *Progress) StepFinished(_ context.Context, ev research.StepEvent) {
	p.mu.Lock()
	prog := p.program
	p.mu.Unlock()
	if prog != nil {
		prog.Send(stepMsg(ev))
	}
}

// Run executes work and blocks until both work and the view finish. Quitting
// the view cancels the context passed to work.
func (p *Progress) Run(ctx context.Context, work func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(NewModel(p.query, p.maxSteps),
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)
	p.mu.Lock()
	p.program = prog
	p.mu.Unlock()

	workErr := make(chan error, 1)
	go func() {
		err := work(ctx)
		workErr <- err
		prog.Send(doneMsg{err: err})
	}()

	final, runErr := prog.Run()
	if m, ok := final.(Model); ok && m.cancelled {
		cancel()
	}
	err := <-workErr

	p.mu.Lock()
	p.program = nil
	p.mu.Unlock()

	if err != nil {
		return err
	}
	return runErr
}
