package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/comigor/chatgpt-local/internal/history"
)

// sidebar lists one row per stored conversation: its earliest message.
type sidebar struct {
	rows          []history.Row
	cursor        int
	previewLength int
}

func (s *sidebar) setRows(rows []history.Row) {
	s.rows = rows
	s.cursor = min(s.cursor, max(len(rows)-1, 0))
}

func (s *sidebar) contains(cid string) bool {
	for _, r := range s.rows {
		if r.CID == cid {
			return true
		}
	}
	return false
}

// selected returns the conversation id under the cursor.
func (s *sidebar) selected() (string, bool) {
	if len(s.rows) == 0 {
		return "", false
	}
	return s.rows[s.cursor].CID, true
}

func (s *sidebar) move(delta int) {
	if len(s.rows) == 0 {
		return
	}
	s.cursor = min(max(s.cursor+delta, 0), len(s.rows)-1)
}

// preview is the first previewLength runes of the row's first line.
func (s *sidebar) preview(r history.Row) string {
	text, _, _ := strings.Cut(strings.TrimSpace(r.Content), "\n")
	runes := []rune(text)
	if len(runes) > s.previewLength {
		return strings.TrimRight(string(runes[:s.previewLength]), " ") + "…"
	}
	return text
}

func (s *sidebar) view(width, height int, focused bool, activeCID string) string {
	var b strings.Builder
	title := sidebarTitleStyle
	if focused {
		title = title.Foreground(accentColor)
	}
	b.WriteString(title.Render("Conversations"))

	lines := max(height-1, 0)
	start := max(s.cursor-lines+1, 0)
	for i := start; i < len(s.rows) && i-start < lines; i++ {
		r := s.rows[i]
		line := runewidth.Truncate(s.preview(r), width-2, "…")
		style := sidebarItemStyle
		switch {
		case focused && i == s.cursor:
			style = sidebarCursorStyle
		case r.CID == activeCID:
			style = sidebarActiveStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Width(width).Render(line))
	}
	return lipgloss.NewStyle().Width(width).Height(height).Render(b.String())
}
