// Package bubblelist stacks chat bubbles in a vertically scrolling viewport.
package bubblelist

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/comigor/chatgpt-local/internal/ui/bubble"
)

const DefaultScrollDelay = 100 * time.Millisecond

// scrollMsg is delivered by the deferred timer of RequestScroll.
type scrollMsg struct{ seq int }

// Model is an append-only (plus Clear) list of bubbles. Layout is rebuilt
// lazily: mutations only mark it dirty.
type Model struct {
	items    []*bubble.Bubble
	viewport viewport.Model
	delay    time.Duration
	pending  int
	dirty    bool
}

func New(width, height int, delay time.Duration) *Model {
	if delay <= 0 {
		delay = DefaultScrollDelay
	}
	return &Model{
		viewport: viewport.New(width, height),
		delay:    delay,
	}
}

// AddItem appends b, or inserts it at the top when atEnd is false.
func (m *Model) AddItem(b *bubble.Bubble, atEnd bool) {
	if atEnd {
		m.items = append(m.items, b)
	} else {
		m.items = append([]*bubble.Bubble{b}, m.items...)
	}
	m.dirty = true
}

// Clear drops every bubble and resets the scroll position.
func (m *Model) Clear() {
	m.items = nil
	m.dirty = false
	m.viewport.SetContent("")
	m.viewport.GotoTop()
}

// Refresh marks the layout stale after a bubble changed in place.
func (m *Model) Refresh() { m.dirty = true }

func (m *Model) Len() int { return len(m.items) }

// Items returns the bubbles in display order.
func (m *Model) Items() []*bubble.Bubble {
	return append([]*bubble.Bubble(nil), m.items...)
}

func (m *Model) SetSize(width, height int) {
	if width == m.viewport.Width && height == m.viewport.Height {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.Width = width
	m.viewport.Height = height
	m.dirty = true
	if atBottom {
		m.ScrollToNewest()
	}
}

// ScrollToNewest moves the viewport to its maximum offset.
func (m *Model) ScrollToNewest() {
	m.sync()
	m.viewport.GotoBottom()
}

// RequestScroll schedules ScrollToNewest after the scroll delay. Requests made
// before the timer fires coalesce: only the latest one scrolls.
func (m *Model) RequestScroll() tea.Cmd {
	m.pending++
	seq := m.pending
	return tea.Tick(m.delay, func(time.Time) tea.Msg {
		return scrollMsg{seq: seq}
	})
}

// Offset and MaxOffset report the scroll position in lines.
func (m *Model) Offset() int { return m.viewport.YOffset }

func (m *Model) MaxOffset() int {
	m.sync()
	return max(m.viewport.TotalLineCount()-m.viewport.Height, 0)
}

func (m *Model) AtNewest() bool {
	m.sync()
	return m.viewport.AtBottom()
}

func (m *Model) Update(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(scrollMsg); ok {
		if msg.seq == m.pending {
			m.ScrollToNewest()
		}
		return nil
	}
	m.sync()
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return cmd
}

func (m *Model) View() string {
	m.sync()
	return m.viewport.View()
}

func (m *Model) sync() {
	if !m.dirty {
		return
	}
	m.dirty = false
	rendered := make([]string, len(m.items))
	for i, b := range m.items {
		rendered[i] = b.Render(m.viewport.Width)
	}
	// SetContent clamps the offset when content shrinks.
	m.viewport.SetContent(strings.Join(rendered, "\n\n"))
}
