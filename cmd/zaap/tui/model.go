package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model is a scrolling log view above a status line.
type Model struct {
	title    string
	logs     string
	ready    bool
	viewport viewport.Model

	mainStatus *StatusModel
}

func NewModel(title string, initialLog string, mainStatus *StatusModel) *Model {
	return &Model{
		title:      title,
		logs:       initialLog,
		mainStatus: mainStatus,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.mainStatus.Init(), tick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "ctrl+c" || k == "q" || k == "esc" {
			return m, tea.Quit
		}

	case logUpdate:
		m.logs += "\n" + strings.TrimRight(msg.content, "\n")
		if m.ready {
			m.viewport.SetContent(m.logs)
			m.viewport.GotoBottom()
		}

	case statusUpdate:
		m.mainStatus.UpdateStatus(msg.content)

	case errorStatusUpdate:
		m.mainStatus.UpdateErrorStatus(msg.content)

	case outcomeUpdate:
		m.mainStatus.UpdateOutcome(msg.outcome, msg.content)

	case cachedUpdate:
		m.mainStatus.UpdateCached(msg.content)

	case progressUpdate:
		m.mainStatus.UpdateProgress(msg.percent)

	case tickMsg:
		cmds = append(cmds, tick())

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		statusHeight := lipgloss.Height(m.statusView())
		verticalMarginHeight := headerHeight + footerHeight + statusHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(m.logs)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
		}
	}

	viewportModel, cmd := m.viewport.Update(msg)
	m.viewport = viewportModel
	cmds = append(cmds, cmd)

	statusModel, cmd := m.mainStatus.Update(msg)
	m.mainStatus = statusModel.(*StatusModel)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s",
		m.headerView(),
		m.viewport.View(),
		m.footerView(),
		m.statusView(),
	)
}

func (m *Model) headerView() string {
	title := titleStyle.Render(m.title)
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, line)
}

func (m *Model) footerView() string {
	info := infoStyle.Render(fmt.Sprintf("Scroll %3.f%%", m.viewport.ScrollPercent()*100))
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(info)))
	return lipgloss.JoinHorizontal(lipgloss.Center, line, info)
}

func (m *Model) statusView() string {
	return m.mainStatus.View()
}
