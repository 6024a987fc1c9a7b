package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const toastDuration = 3 * time.Second

// Notices shown for rejected user actions.
const (
	noticeFillAllFields   = "fill in all fields"
	noticeChooseProvider  = "choose a provider"
	noticeProviderMissing = "provider not found"
	noticeSelectItem      = "select an item"
	noticeInvalidProvider = "invalid provider"
)

// toast is a transient one-line notice. Showing a new one replaces the old.
type toast struct {
	id   int
	text string
	err  bool
}

func (m *Model) notify(text string) tea.Cmd { return m.showToast(text, false) }

func (m *Model) alert(text string) tea.Cmd { return m.showToast(text, true) }

func (m *Model) showToast(text string, isErr bool) tea.Cmd {
	m.toast = toast{id: m.toast.id + 1, text: text, err: isErr}
	id := m.toast.id
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func (m *Model) expireToast(id int) {
	if m.toast.id == id {
		m.toast.text = ""
	}
}
