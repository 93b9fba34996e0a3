package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gjermundgaraba/libzaap/zaap"
	"github.com/pkg/errors"
)

var (
	titleStyle = func() lipgloss.Style {
		b := lipgloss.RoundedBorder()
		b.Right = "├"
		return lipgloss.NewStyle().BorderStyle(b).Padding(0, 1)
	}()

	infoStyle = func() lipgloss.Style {
		b := lipgloss.RoundedBorder()
		b.Left = "┤"
		return titleStyle.BorderStyle(b)
	}()

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Bold(true).
			Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

// LogSource is where the TUI gets its log lines from.
type LogSource interface {
	AddExtraLogger(logger func(string))
}

// Tui is safe to update from any goroutine. Updates sent before Run block
// until the program starts.
type Tui struct {
	program *tea.Program
}

func NewTui(logs LogSource, title string, initStatus string) *Tui {
	model := NewModel(title, "", NewStatusModel(initStatus))
	t := &Tui{
		program: tea.NewProgram(
			model,
			tea.WithAltScreen(),       // use the full size of the terminal in its "alternate screen buffer"
			tea.WithMouseCellMotion(), // turn on mouse support so we can track the mouse wheel
		),
	}
	if logs != nil {
		logs.AddExtraLogger(t.AddLogEntry)
	}

	return t
}

func (t *Tui) AddLogEntry(entry string) {
	t.program.Send(logUpdate{content: entry})
}

func (t *Tui) UpdateMainStatus(status string) {
	t.program.Send(statusUpdate{content: status})
}

func (t *Tui) UpdateMainErrorStatus(status string) {
	t.program.Send(errorStatusUpdate{content: status})
}

func (t *Tui) UpdateOutcome(outcome zaap.Outcome, status string) {
	t.program.Send(outcomeUpdate{outcome: outcome, content: status})
}

func (t *Tui) UpdateCached(status string) {
	t.program.Send(cachedUpdate{content: status})
}

func (t *Tui) UpdateProgress(percent int) {
	t.program.Send(progressUpdate{percent: percent})
}

// Run blocks until the user quits.
func (t *Tui) Run() error {
	if _, err := t.program.Run(); err != nil {
		return errors.Wrap(err, "failed to run tui")
	}
	return nil
}
