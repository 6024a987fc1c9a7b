// Package chat is the full-screen chat application: a conversation sidebar,
// the bubble list of the active conversation, an input box and the provider
// dialog.
package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/chatgpt-local/internal/config"
	"github.com/comigor/chatgpt-local/internal/dispatch"
	"github.com/comigor/chatgpt-local/internal/history"
	"github.com/comigor/chatgpt-local/internal/llm"
	"github.com/comigor/chatgpt-local/internal/session"
	"github.com/comigor/chatgpt-local/internal/ui/bubblelist"
)

// Store is the message history. *history.Store satisfies it.
type Store interface {
	Insert(ctx context.Context, row history.Row) (int64, error)
	Conversations(ctx context.Context) ([]history.Row, error)
	Messages(ctx context.Context, cid string) ([]history.Row, error)
	DeleteConversation(ctx context.Context, cid string) (int64, error)
}

// Providers is the provider alias map. *config.ProviderStore satisfies it.
type Providers interface {
	Put(p config.Provider) error
	Get(alias string) (config.Provider, error)
	Delete(alias string) error
	Aliases() ([]string, error)
	Default() (config.Provider, error)
}

// Streamer streams one completion. *llm.Completer satisfies it.
type Streamer interface {
	Stream(ctx context.Context, messages []openai.ChatCompletionMessage, onChunk func(llm.Chunk)) (string, error)
}

type Deps struct {
	Config      *config.Config
	Store       Store
	Providers   Providers
	Dispatcher  *dispatch.Dispatcher
	NewStreamer func(config.Provider) (Streamer, error)
}

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
	focusMessages
	focusCount
)

// confirmPrompt is a pending y/n question.
type confirmPrompt struct {
	question string
	onYes    func() tea.Cmd
}

type Model struct {
	deps Deps
	keys keyMap

	width  int
	height int

	session *session.Session
	turn    *session.Turn
	list    *bubblelist.Model
	input   textarea.Model
	sidebar sidebar
	dialog  *providerDialog
	confirm *confirmPrompt
	toast   toast
	focus   focusArea

	// provider is the alias chosen in the dialog; empty means the default.
	provider string
	// streamMID is the response id of the reply being streamed.
	streamMID string
}

func New(deps Deps) *Model {
	cfg := deps.Config
	list := bubblelist.New(80, 20, cfg.ScrollDelay)

	input := textarea.New()
	input.Placeholder = "Message (enter to send, ctrl+j for a newline)"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(3)
	input.KeyMap.InsertNewline.SetKeys("ctrl+j")
	input.Focus()

	return &Model{
		deps:  deps,
		keys:  defaultKeyMap(),
		list:  list,
		input: input,
		turn:  session.NewTurn(),
		session: session.New(list, session.Options{
			SystemPrompt: cfg.SystemPrompt,
		}),
		sidebar: sidebar{previewLength: cfg.PreviewLength},
	}
}

func (m *Model) Init() tea.Cmd {
	m.loadConversations()
	return textarea.Blink
}
