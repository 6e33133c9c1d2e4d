// Package tui is the live terminal view for long runs: a progress bar
// over the particle batch with per-status counts, fed by the runner's
// completion callback.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/solwind/ptrace/internal/particle"
	"github.com/solwind/ptrace/internal/viz"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// TickMsg drives the spinner.
type TickMsg time.Time

// ParticleMsg reports one particle reaching a terminal status.
type ParticleMsg struct {
	Status particle.Status
}

// DoneMsg ends the program once the whole batch has finished.
type DoneMsg struct {
	Err error
}

// Model is the bubbletea state for a live run.
type Model struct {
	total    int
	done     int
	statuses map[particle.Status]int
	start    time.Time
	frame    int
	finished bool
	err      error

	// Cancel is invoked when the user quits mid-run.
	Cancel func()
}

func NewModel(total int, cancel func()) Model {
	return Model{
		total:    total,
		statuses: make(map[particle.Status]int),
		start:    time.Now(),
		Cancel:   cancel,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/15, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.Cancel != nil {
				m.Cancel()
			}
			return m, tea.Quit
		}
	case ParticleMsg:
		m.done++
		m.statuses[msg.Status]++
	case DoneMsg:
		m.finished = true
		m.err = msg.Err
		return m, tea.Quit
	case TickMsg:
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("TRACING PARTICLES") + "\n\n")

	spin := spinnerFrames[m.frame%len(spinnerFrames)]
	if m.finished {
		spin = " "
	}
	b.WriteString(fmt.Sprintf("%s %s %d/%d\n\n",
		spin, viz.ProgressBar(m.done, m.total, 40), m.done, m.total))

	for _, st := range []particle.Status{
		particle.CompletedNormal,
		particle.CompletedBoundary,
		particle.CompletedTimeout,
		particle.FailedIntegration,
	} {
		if n := m.statuses[st]; n > 0 {
			b.WriteString(fmt.Sprintf("  %s %d\n", viz.StatusStyle(st).Render(st.String()), n))
		}
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("\nelapsed %s", time.Since(m.start).Round(time.Second))))
	if m.err != nil {
		b.WriteString("\n" + fmt.Sprintf("error: %v", m.err))
	}
	b.WriteString(dimStyle.Render("\nq: cancel\n"))
	return b.String()
}

// Err reports the terminal error, if the run failed.
func (m Model) Err() error { return m.err }
