package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/comigor/chatgpt-local/internal/config"
	"github.com/comigor/chatgpt-local/internal/llm"
	"github.com/comigor/chatgpt-local/internal/logger"
	"github.com/comigor/chatgpt-local/internal/session"
)

// send records the typed message and starts its completion.
func (m *Model) send() tea.Cmd {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	provider, err := m.activeProvider()
	if err != nil {
		logger.L.Warn("send: no usable provider", "alias", m.provider, "error", err)
		if errors.Is(err, llm.ErrNoProvider) {
			return m.alert(noticeChooseProvider)
		}
		return m.alert(noticeProviderMissing)
	}
	streamer, err := m.deps.NewStreamer(provider)
	if err != nil {
		logger.L.Warn("send: provider rejected", "alias", provider.Name, "error", err)
		return m.alert(noticeInvalidProvider)
	}

	m.supersede()
	msg := m.session.RecordUserMessage(text)
	m.input.Reset()
	m.persist(msg)

	history := m.session.CompletionMessages()
	m.turn.Submit()
	logger.L.Info("completion requested", "cid", msg.ConversationID, "provider", provider.Name, "messages", len(history))

	m.deps.Dispatcher.Go(keyCompletion, func(ctx context.Context, emit func(tea.Msg)) error {
		var mid string
		reply, err := streamer.Stream(ctx, history, func(c llm.Chunk) {
			if c.ID != "" {
				mid = c.ID
			}
			emit(chunkMsg{chunk: c})
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emit(streamDoneMsg{mid: mid, text: reply, err: err})
		return err
	})
	return m.list.RequestScroll()
}

// supersede ends the reply still streaming, keeping what arrived so far, so
// the log alternates user and assistant turns before the next request.
func (m *Model) supersede() {
	if !m.turn.Streaming() {
		return
	}
	mid := m.streamMID
	m.streamMID = ""
	m.deps.Dispatcher.Cancel(keyCompletion)
	text, _ := m.session.Pending(mid)
	if reply, ok := m.session.FinalizeAssistantMessage(mid, text); ok {
		logger.L.Info("reply superseded", "mid", reply.ID, "length", len(text))
		m.persist(reply)
	}
	m.turn.Finish()
}

// activeProvider resolves the chosen alias, falling back to the first one.
func (m *Model) activeProvider() (config.Provider, error) {
	if m.provider != "" {
		return m.deps.Providers.Get(m.provider)
	}
	p, err := m.deps.Providers.Default()
	if errors.Is(err, config.ErrProviderNotFound) {
		return config.Provider{}, llm.ErrNoProvider
	}
	return p, err
}

// persist stores msg in the background. Writes never supersede each other.
func (m *Model) persist(msg session.Message) {
	store := m.deps.Store
	row := msg.Row()
	m.deps.Dispatcher.Spawn("persist", func(ctx context.Context, emit func(tea.Msg)) error {
		if _, err := store.Insert(ctx, row); err != nil {
			return fmt.Errorf("persist message %s: %w", row.MID, err)
		}
		emit(persistedMsg{cid: row.CID})
		return nil
	})
}

func (m *Model) loadConversations() {
	store := m.deps.Store
	m.deps.Dispatcher.Go(keyConversations, func(ctx context.Context, emit func(tea.Msg)) error {
		rows, err := store.Conversations(ctx)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		emit(conversationsMsg{rows: rows})
		return nil
	})
}

// openConversation abandons the current turn and loads cid.
func (m *Model) openConversation(cid string) {
	m.abandonTurn()
	store := m.deps.Store
	m.deps.Dispatcher.Go(keyLoad, func(ctx context.Context, emit func(tea.Msg)) error {
		rows, err := store.Messages(ctx, cid)
		if err != nil {
			return fmt.Errorf("load conversation %s: %w", cid, err)
		}
		emit(conversationLoadedMsg{cid: cid, rows: rows})
		return nil
	})
}

func (m *Model) deleteConversation(cid string) {
	store := m.deps.Store
	m.deps.Dispatcher.Spawn("delete", func(ctx context.Context, emit func(tea.Msg)) error {
		n, err := store.DeleteConversation(ctx, cid)
		if err != nil {
			return fmt.Errorf("delete conversation %s: %w", cid, err)
		}
		emit(conversationDeletedMsg{cid: cid, removed: n})
		return nil
	})
}

// newChat abandons the current turn and starts an empty conversation.
func (m *Model) newChat() {
	m.abandonTurn()
	m.deps.Dispatcher.Cancel(keyLoad)
	cid := m.session.StartNewConversation("")
	logger.L.Info("new conversation", "cid", cid)
}

// abandonTurn cancels any completion in flight. Chunks it already queued are
// dropped as stale.
func (m *Model) abandonTurn() {
	m.deps.Dispatcher.Cancel(keyCompletion)
	m.streamMID = ""
	m.turn.Reset()
}
