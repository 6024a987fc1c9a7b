package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/chatgpt-local/internal/session"
)

const (
	sidebarWidth = 28
	inputHeight  = 3
)

var (
	accentColor = lipgloss.Color("#6b5bd6")
	mutedColor  = lipgloss.Color("#8a8a8a")
	errorColor  = lipgloss.Color("#e05561")

	sidebarTitleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	sidebarItemStyle   = lipgloss.NewStyle().Padding(0, 1)
	sidebarCursorStyle = lipgloss.NewStyle().Padding(0, 1).Reverse(true)
	sidebarActiveStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(accentColor)
	sidebarBorderStyle = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderRight(true).BorderForeground(mutedColor)

	statusStyle  = lipgloss.NewStyle().Foreground(mutedColor).Padding(0, 1)
	helpStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	noticeStyle  = lipgloss.NewStyle().Foreground(accentColor).Padding(0, 1)
	alertStyle   = lipgloss.NewStyle().Foreground(errorColor).Padding(0, 1)
	confirmStyle = lipgloss.NewStyle().Bold(true).Foreground(errorColor).Padding(0, 1)

	inputStyle        = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(mutedColor)
	inputFocusedStyle = inputStyle.BorderForeground(accentColor)

	dialogStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(accentColor).Padding(1, 2)
	dialogTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	dialogLabelStyle = lipgloss.NewStyle().Width(10)
)

// mainWidth is the width of the conversation pane.
func (m *Model) mainWidth() int {
	return max(m.width-sidebarWidth-1, 20)
}

// layout resizes the children after a window change.
func (m *Model) layout() {
	w := m.mainWidth()
	// status line, bordered input, footer
	chrome := 1 + inputHeight + 2 + 1
	m.list.SetSize(w, max(m.height-chrome, 1))
	m.input.SetWidth(max(w-2, 10))
}

func (m *Model) View() string {
	if m.width == 0 {
		return "loading…"
	}
	if m.dialog != nil {
		box := m.dialog.view(m.width, m.keys, m.provider)
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}

	side := sidebarBorderStyle.Render(
		m.sidebar.view(sidebarWidth, m.height, m.focus == focusSidebar, m.session.ConversationID()),
	)

	input := inputStyle
	if m.focus == focusInput {
		input = inputFocusedStyle
	}
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.statusView(),
		m.list.View(),
		input.Render(m.input.View()),
		m.footerView(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, side, main)
}

func (m *Model) statusView() string {
	provider := m.provider
	if provider == "" {
		provider = "default provider"
	}
	state := "ready"
	if m.turn.State() == session.TurnStreaming {
		state = "streaming…"
	}
	cid := m.session.ConversationID()
	if len(cid) > 8 {
		cid = cid[len(cid)-8:]
	}
	line := fmt.Sprintf("%s · %s · %s · %s", m.deps.Config.Model, provider, cid, state)
	return statusStyle.Width(m.mainWidth()).Render(line)
}

func (m *Model) footerView() string {
	width := m.mainWidth()
	switch {
	case m.confirm != nil:
		return confirmStyle.Width(width).Render(m.confirm.question)
	case m.toast.text != "" && m.toast.err:
		return alertStyle.Width(width).Render(m.toast.text)
	case m.toast.text != "":
		return noticeStyle.Width(width).Render(m.toast.text)
	}
	return statusStyle.Width(width).Render(helpLine(
		m.keys.Send, m.keys.Newline, m.keys.NewChat, m.keys.Providers, m.keys.Focus, m.keys.Quit,
	))
}

func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}
