package tui

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gjermundgaraba/libzaap/zaap"
)

type settlementState uint8

const (
	statePending settlementState = iota
	stateSettled
	stateCached
	stateFailed
)

var outcomeBadges = map[zaap.Outcome]struct {
	label string
	color lipgloss.Color
}{
	zaap.DeliveredSwapped:           {"SWAPPED", lipgloss.Color("#25A065")},
	zaap.DeliveredUnswapped:         {"UNSWAPPED", lipgloss.Color("#2E6FD8")},
	zaap.DeliveredWithErrorFallback: {"FALLBACK", lipgloss.Color("#D98E04")},
}

// StatusModel follows one settlement: a spinner while it is in flight, then a
// badge for how the destination chain resolved it.
type StatusModel struct {
	spinner  spinner.Model
	progress progress.Model

	state   settlementState
	outcome zaap.Outcome
	text    string
	percent int
}

func NewStatusModel(initialStatus string) *StatusModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle

	return &StatusModel{
		spinner:  s,
		progress: progress.New(progress.WithGradient("#5A56E0", "#25A065"), progress.WithoutPercentage()),
		text:     initialStatus,
	}
}

func (m *StatusModel) UpdateStatus(status string) {
	m.state = statePending
	m.text = status
}

// UpdateOutcome marks the settlement as delivered on the destination chain.
func (m *StatusModel) UpdateOutcome(outcome zaap.Outcome, status string) {
	m.state = stateSettled
	m.outcome = outcome
	m.text = status
	m.percent = 100
}

// UpdateCached marks the settlement as waiting in the destination cache.
func (m *StatusModel) UpdateCached(status string) {
	m.state = stateCached
	m.text = status
	m.percent = 100
}

func (m *StatusModel) UpdateErrorStatus(status string) {
	m.state = stateFailed
	m.text = status
}

// UpdateProgress ignores values outside 0-100 and anything after the
// settlement was resolved.
func (m *StatusModel) UpdateProgress(percent int) {
	if m.state != statePending || percent < 0 || percent > 100 {
		return
	}
	m.percent = percent
}

func (m *StatusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.state == statePending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - 2
	}

	target := float64(m.percent) / 100
	if m.progress.Percent() != target {
		cmds = append(cmds, m.progress.SetPercent(target))
	}

	return m, tea.Batch(cmds...)
}

func (m *StatusModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Center, m.badge(), " ", m.text),
		m.progress.View(),
	)
}

func (m *StatusModel) badge() string {
	switch m.state {
	case stateSettled:
		badge, ok := outcomeBadges[m.outcome]
		if !ok {
			return badgeStyle.Background(lipgloss.Color("#6C6C6C")).Render(m.outcome.String())
		}
		return badgeStyle.Background(badge.color).Render(badge.label)
	case stateCached:
		return badgeStyle.Background(lipgloss.Color("#8A2BE2")).Render("CACHED")
	case stateFailed:
		return badgeStyle.Background(lipgloss.Color("#B22222")).Render("FAILED")
	default:
		return m.spinner.View()
	}
}
