package ui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type doneMsg struct {
	details []string
	err     error
}

type tickMsg struct{}

type model struct {
	title   string
	frame   int
	done    bool
	details []string
	err     error
	cancel  context.CancelFunc
}

// Run executes fn under an interactive spinner and returns its result. Ctrl-C
// cancels fn's context and reports the cancellation error.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	results := make(chan doneMsg, 1)
	go func() {
		details, err := fn(ctx)
		results <- doneMsg{details: details, err: err}
	}()

	m := model{title: title, cancel: cancel}
	p := tea.NewProgram(m)
	go func() {
		p.Send(<-results)
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	fm := final.(model)
	if fm.err != nil {
		return fm.details, fm.err
	}
	if !fm.done {
		return fm.details, ctx.Err()
	}
	return fm.details, nil
}

func (m model) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	out := titleStyle.Render(m.title) + "\n"
	for _, d := range m.details {
		out += detailStyle.Render("  • "+d) + "\n"
	}
	switch {
	case !m.done:
		out += spinnerStyle.Render(spinnerFrames[m.frame]) + " running...\n"
	case m.err != nil:
		out += failStyle.Render(fmt.Sprintf("✗ %v", m.err)) + "\n"
	default:
		out += okStyle.Render("✓ done") + "\n"
	}
	return out
}
