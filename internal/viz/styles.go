// Package viz renders run summaries and terminal trajectory plots.
package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/solwind/ptrace/internal/particle"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// StatusStyle returns the display style for a terminal status.
func StatusStyle(st particle.Status) lipgloss.Style {
	switch st {
	case particle.CompletedNormal, particle.CompletedTimeout:
		return okStyle
	case particle.CompletedBoundary:
		return warnStyle
	case particle.FailedIntegration:
		return failStyle
	default:
		return activeStyle
	}
}

// Summary renders the end-of-run panel: run id, particle counts per
// status, and elapsed wall time.
func Summary(runID string, statuses map[particle.Status]int, elapsed time.Duration) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("RUN COMPLETE") + "\n\n")
	b.WriteString(labelStyle.Render("Run") + valueStyle.Render(runID) + "\n")
	b.WriteString(labelStyle.Render("Elapsed") + valueStyle.Render(elapsed.Round(time.Millisecond).String()) + "\n")

	total := 0
	keys := make([]particle.Status, 0, len(statuses))
	for st, n := range statuses {
		keys = append(keys, st)
		total += n
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	b.WriteString(labelStyle.Render("Particles") + valueStyle.Render(fmt.Sprintf("%d", total)) + "\n")
	for _, st := range keys {
		b.WriteString(labelStyle.Render("  "+st.String()) + StatusStyle(st).Render(fmt.Sprintf("%d", statuses[st])) + "\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// ProgressBar renders a fixed-width completion bar.
func ProgressBar(done, total, width int) string {
	if total < 1 {
		total = 1
	}
	frac := float64(done) / float64(total)
	filled := int(frac * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if done >= total {
		return okStyle.Render(bar)
	}
	return activeStyle.Render(bar)
}
