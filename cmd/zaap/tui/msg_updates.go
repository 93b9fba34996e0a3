package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gjermundgaraba/libzaap/zaap"
)

type logUpdate struct {
	content string
}

type statusUpdate struct {
	content string
}

type errorStatusUpdate struct {
	content string
}

type outcomeUpdate struct {
	outcome zaap.Outcome
	content string
}

type cachedUpdate struct {
	content string
}

type progressUpdate struct {
	percent int
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
