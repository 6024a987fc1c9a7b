package chat

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/comigor/chatgpt-local/internal/logger"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	msg, ok := m.deps.Dispatcher.Open(msg)
	if !ok {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		return m, m.list.Update(msg)

	case chunkMsg:
		if !m.session.ApplyAssistantChunk(msg.chunk.ID, msg.chunk.Delta) {
			return m, nil
		}
		m.streamMID = msg.chunk.ID
		return m, m.list.RequestScroll()

	case streamDoneMsg:
		return m, m.finishTurn(msg)

	case conversationsMsg:
		m.sidebar.setRows(msg.rows)
		return m, nil

	case conversationLoadedMsg:
		m.session.LoadConversation(msg.cid, msg.rows)
		m.list.ScrollToNewest()
		logger.L.Info("conversation loaded", "cid", msg.cid, "messages", len(msg.rows))
		return m, nil

	case conversationDeletedMsg:
		logger.L.Info("conversation deleted", "cid", msg.cid, "rows", msg.removed)
		if msg.cid == m.session.ConversationID() {
			m.newChat()
		}
		m.loadConversations()
		return m, nil

	case persistedMsg:
		if !m.sidebar.contains(msg.cid) {
			m.loadConversations()
		}
		return m, nil

	case toastExpiredMsg:
		m.expireToast(msg.id)
		return m, nil
	}

	return m, m.forward(msg)
}

// forward passes other messages, such as cursor blinks and scroll timers, to
// the children that may own them.
func (m *Model) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	cmds := []tea.Cmd{m.list.Update(msg)}
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if d := m.dialog; d != nil && d.mode == dialogForm {
		d.alias, cmd = d.alias.Update(msg)
		cmds = append(cmds, cmd)
		d.endpoint, cmd = d.endpoint.Update(msg)
		cmds = append(cmds, cmd)
		d.apiKey, cmd = d.apiKey.Update(msg)
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// finishTurn finalizes the reply, also when the stream failed part way.
func (m *Model) finishTurn(msg streamDoneMsg) tea.Cmd {
	m.streamMID = ""
	reply, ok := m.session.FinalizeAssistantMessage(msg.mid, msg.text)
	if ok {
		m.persist(reply)
	}
	if msg.err != nil {
		m.turn.Fail(msg.err)
		return tea.Batch(m.list.RequestScroll(), m.alert(fmt.Sprintf("request failed: %v", msg.err)))
	}
	m.turn.Finish()
	return m.list.RequestScroll()
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.confirm != nil {
		return m.answer(msg)
	}
	if m.dialog != nil {
		return m.updateDialog(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ask("Quit? (y/n)", func() tea.Cmd { return tea.Quit })
		return nil
	case key.Matches(msg, m.keys.NewChat):
		m.newChat()
		return m.focusOn(focusInput)
	case key.Matches(msg, m.keys.Providers):
		return m.openDialog()
	case key.Matches(msg, m.keys.Focus):
		return m.focusOn((m.focus + 1) % focusCount)
	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		return m.list.Update(msg)
	}

	switch m.focus {
	case focusSidebar:
		return m.updateSidebar(msg)
	case focusMessages:
		return m.list.Update(msg)
	}

	if key.Matches(msg, m.keys.Send) {
		return m.send()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) updateSidebar(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.sidebar.move(-1)
	case key.Matches(msg, m.keys.Down):
		m.sidebar.move(1)
	case key.Matches(msg, m.keys.Open):
		cid, ok := m.sidebar.selected()
		if !ok {
			return m.alert(noticeSelectItem)
		}
		m.openConversation(cid)
	case key.Matches(msg, m.keys.Delete):
		cid, ok := m.sidebar.selected()
		if !ok {
			return m.alert(noticeSelectItem)
		}
		m.ask("Delete this conversation? (y/n)", func() tea.Cmd {
			m.deleteConversation(cid)
			return nil
		})
	}
	return nil
}

func (m *Model) focusOn(f focusArea) tea.Cmd {
	m.focus = f
	if f == focusInput {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

// ask shows a y/n prompt; onYes runs if the user confirms.
func (m *Model) ask(question string, onYes func() tea.Cmd) {
	m.confirm = &confirmPrompt{question: question, onYes: onYes}
}

func (m *Model) answer(msg tea.KeyMsg) tea.Cmd {
	prompt := m.confirm
	switch {
	case key.Matches(msg, m.keys.Yes):
		m.confirm = nil
		return prompt.onYes()
	case key.Matches(msg, m.keys.No), key.Matches(msg, m.keys.Quit):
		m.confirm = nil
	}
	return nil
}
