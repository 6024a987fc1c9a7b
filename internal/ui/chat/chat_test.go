package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/chatgpt-local/internal/config"
	"github.com/comigor/chatgpt-local/internal/dispatch"
	"github.com/comigor/chatgpt-local/internal/history"
	"github.com/comigor/chatgpt-local/internal/llm"
	"github.com/comigor/chatgpt-local/internal/session"
)

type chanNotifier chan tea.Msg

func (c chanNotifier) Send(msg tea.Msg) { c <- msg }

type fakeStreamer struct {
	chunks []llm.Chunk
	err    error
	// hold blocks the stream after its chunks until ctx is cancelled.
	hold    bool
	emitted chan struct{}
	seen    []openai.ChatCompletionMessage
}

func (f *fakeStreamer) Stream(ctx context.Context, messages []openai.ChatCompletionMessage, onChunk func(llm.Chunk)) (string, error) {
	f.seen = messages
	var text strings.Builder
	for _, c := range f.chunks {
		onChunk(c)
		text.WriteString(c.Delta)
	}
	if f.emitted != nil {
		close(f.emitted)
	}
	if f.hold {
		<-ctx.Done()
		return text.String(), ctx.Err()
	}
	return text.String(), f.err
}

type harness struct {
	m         *Model
	store     *history.Store
	providers *config.ProviderStore
	disp      *dispatch.Dispatcher
	notifier  chanNotifier
	streamer  *fakeStreamer
	streamErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := history.Open(filepath.Join(dir, "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:     store,
		providers: config.NewProviderStore(filepath.Join(dir, "providers.json")),
		disp:      dispatch.New(),
		notifier:  make(chanNotifier, 256),
		streamer:  &fakeStreamer{},
	}
	h.disp.Bind(h.notifier)
	t.Cleanup(h.disp.Close)

	cfg := &config.Config{
		Model:         "gpt-4o",
		SystemPrompt:  "You are a helpful assistant.",
		ProvidersPath: filepath.Join(dir, "providers.json"),
		ScrollDelay:   time.Millisecond,
		PreviewLength: 20,
	}
	h.m = New(Deps{
		Config:     cfg,
		Store:      store,
		Providers:  h.providers,
		Dispatcher: h.disp,
		NewStreamer: func(config.Provider) (Streamer, error) {
			if h.streamErr != nil {
				return nil, h.streamErr
			}
			return h.streamer, nil
		},
	})
	h.m.Init()
	h.m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	h.pump(t)
	return h
}

func (h *harness) addProvider(t *testing.T, alias string) {
	t.Helper()
	require.NoError(t, h.providers.Put(config.Provider{
		Name: alias, Kind: config.KindGeneric, Endpoint: "http://localhost:1234/v1", Key: "sk-test",
	}))
}

// pump delivers every queued message to the model until the dispatcher is
// idle and the queue is empty.
func (h *harness) pump(t *testing.T) {
	t.Helper()
	for range 50 {
		h.disp.Wait()
		if len(h.notifier) == 0 {
			return
		}
		for len(h.notifier) > 0 {
			h.m.Update(<-h.notifier)
		}
	}
	t.Fatal("dispatcher never went idle")
}

func (h *harness) press(t *testing.T, msgs ...tea.KeyMsg) tea.Cmd {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range msgs {
		_, cmd = h.m.Update(k)
	}
	return cmd
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	ctrlN = tea.KeyMsg{Type: tea.KeyCtrlN}
	ctrlO = tea.KeyMsg{Type: tea.KeyCtrlO}
	ctrlS = tea.KeyMsg{Type: tea.KeyCtrlS}
	ctrlC = tea.KeyMsg{Type: tea.KeyCtrlC}
)

func roles(msgs []session.Message) []session.Role {
	out := make([]session.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestSend_HelloScenario(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "local")
	h.streamer.chunks = []llm.Chunk{{ID: "R1", Delta: "Hi"}, {ID: "R1", Delta: " there"}}

	h.m.input.SetValue("Hello")
	h.press(t, enter)
	require.True(t, h.m.turn.Streaming())
	require.Empty(t, h.m.input.Value())
	h.pump(t)

	require.Equal(t, session.TurnIdle, h.m.turn.State())
	msgs := h.m.session.Messages()
	require.Equal(t, []session.Role{session.RoleSystem, session.RoleUser, session.RoleAssistant}, roles(msgs))
	require.Equal(t, "Hello", msgs[1].Content)
	require.Equal(t, "Hi there", msgs[2].Content)
	require.Equal(t, 2, h.m.list.Len())

	require.Equal(t, []openai.ChatCompletionMessage{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "Hello"},
	}, h.streamer.seen)

	rows, err := h.store.Messages(context.Background(), h.m.session.ConversationID())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, rows[0].Send)
	require.Equal(t, "Hello", rows[0].Content)
	require.False(t, rows[1].Send)
	require.Equal(t, "R1", rows[1].MID)
	require.Equal(t, "Hi there", rows[1].Content)

	require.Len(t, h.m.sidebar.rows, 1)
	require.Contains(t, ansi.Strip(h.m.View()), "Hi there")
}

func TestSend_NewChatDropsStaleChunks(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "local")
	h.streamer.chunks = []llm.Chunk{{ID: "R1", Delta: "stale"}}
	h.streamer.hold = true
	h.streamer.emitted = make(chan struct{})

	h.m.input.SetValue("Hello")
	h.press(t, enter)
	<-h.streamer.emitted
	oldCID := h.m.session.ConversationID()

	h.press(t, ctrlN)
	h.pump(t)

	require.NotEqual(t, oldCID, h.m.session.ConversationID())
	require.Equal(t, []session.Role{session.RoleSystem}, roles(h.m.session.Messages()))
	require.Zero(t, h.m.session.BubbleCount())
	require.Zero(t, h.m.list.Len())
	require.Equal(t, session.TurnIdle, h.m.turn.State())

	rows, err := h.store.Messages(context.Background(), oldCID)
	require.NoError(t, err)
	require.Len(t, rows, 1, "only the user message was stored")
}

func TestSend_StreamErrorKeepsPartialReply(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "local")
	h.streamer.chunks = []llm.Chunk{{ID: "R9", Delta: "Hi"}}
	h.streamer.err = errors.New("connection reset")

	h.m.input.SetValue("Hello")
	h.press(t, enter)
	h.pump(t)

	require.Equal(t, session.TurnIdle, h.m.turn.State())
	require.True(t, h.m.toast.err)
	require.Contains(t, h.m.toast.text, "connection reset")

	rows, err := h.store.Messages(context.Background(), h.m.session.ConversationID())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Hi", rows[1].Content)
}

func TestSend_WhileStreamingFinalizesPartialReply(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "local")
	first := &fakeStreamer{
		chunks:  []llm.Chunk{{ID: "R1", Delta: "partial"}},
		hold:    true,
		emitted: make(chan struct{}),
	}
	h.streamer = first

	h.m.input.SetValue("first")
	h.press(t, enter)
	<-first.emitted
	for len(h.notifier) > 0 {
		h.m.Update(<-h.notifier)
	}
	text, ok := h.m.session.Pending("R1")
	require.True(t, ok)
	require.Equal(t, "partial", text)

	second := &fakeStreamer{chunks: []llm.Chunk{{ID: "R2", Delta: "second reply"}}}
	h.streamer = second
	h.m.input.SetValue("second")
	h.press(t, enter)
	h.pump(t)

	require.Equal(t, session.TurnIdle, h.m.turn.State())
	_, ok = h.m.session.Pending("R1")
	require.False(t, ok)

	msgs := h.m.session.Messages()
	require.Equal(t, []session.Role{
		session.RoleSystem, session.RoleUser, session.RoleAssistant, session.RoleUser, session.RoleAssistant,
	}, roles(msgs))
	require.Equal(t, "partial", msgs[2].Content)
	require.Equal(t, "second reply", msgs[4].Content)
	require.Equal(t, 4, h.m.session.BubbleCount())

	require.Equal(t, []openai.ChatCompletionMessage{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "partial"},
		{Role: "user", Content: "second"},
	}, second.seen)

	rows, err := h.store.Messages(context.Background(), h.m.session.ConversationID())
	require.NoError(t, err)
	contents := make([]string, len(rows))
	for i, r := range rows {
		contents[i] = r.Content
	}
	require.ElementsMatch(t, []string{"first", "partial", "second", "second reply"}, contents)
}

func TestSend_WithoutProvider(t *testing.T) {
	h := newHarness(t)
	h.m.input.SetValue("Hello")
	h.press(t, enter)

	require.Equal(t, noticeChooseProvider, h.m.toast.text)
	require.Equal(t, "Hello", h.m.input.Value())
	require.Len(t, h.m.session.Messages(), 1)
	require.False(t, h.m.turn.Streaming())
}

func TestSend_InvalidProvider(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "local")
	h.streamErr = config.ErrInvalidEndpoint

	h.m.input.SetValue("Hello")
	h.press(t, enter)
	require.Equal(t, noticeInvalidProvider, h.m.toast.text)
	require.Len(t, h.m.session.Messages(), 1)
}

func TestSend_BlankInputIgnored(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "local")
	h.m.input.SetValue("   ")
	require.Nil(t, h.press(t, enter))
	require.Len(t, h.m.session.Messages(), 1)
}

func seedConversation(t *testing.T, store *history.Store, cid string) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, r := range []history.Row{
		{CID: cid, MID: cid + "-u", Content: "What is the capital of France?", Send: true},
		{CID: cid, MID: cid + "-a", Content: "Paris.", Send: false},
	} {
		r.CreateTime = base.Add(time.Duration(i) * time.Second)
		_, err := store.Insert(ctx, r)
		require.NoError(t, err)
	}
}

func TestSidebar_OpenAndDeleteConversation(t *testing.T) {
	h := newHarness(t)
	seedConversation(t, h.store, "c1")
	h.m.loadConversations()
	h.pump(t)

	require.Len(t, h.m.sidebar.rows, 1)
	require.Equal(t, "What is the capital…", h.m.sidebar.preview(h.m.sidebar.rows[0]))

	h.press(t, tab)
	require.Equal(t, focusSidebar, h.m.focus)
	h.press(t, enter)
	h.pump(t)

	require.Equal(t, "c1", h.m.session.ConversationID())
	require.Equal(t, []session.Role{session.RoleSystem, session.RoleUser, session.RoleAssistant}, roles(h.m.session.Messages()))
	require.Equal(t, 2, h.m.session.BubbleCount())

	h.press(t, runes("d"))
	require.NotNil(t, h.m.confirm)
	h.press(t, runes("n"))
	require.Nil(t, h.m.confirm)

	h.press(t, runes("d"), runes("y"))
	h.pump(t)

	rows, err := h.store.Messages(context.Background(), "c1")
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Empty(t, h.m.sidebar.rows)
	require.NotEqual(t, "c1", h.m.session.ConversationID(), "deleting the open conversation starts a new one")
}

func TestSidebar_EmptySelection(t *testing.T) {
	h := newHarness(t)
	h.press(t, tab, enter)
	require.Equal(t, noticeSelectItem, h.m.toast.text)
}

func TestProviderDialog_ChooseMissingAlias(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "a")

	h.press(t, ctrlO)
	require.NotNil(t, h.m.dialog)
	require.Equal(t, []string{"a"}, h.m.dialog.aliases)

	require.NoError(t, h.providers.Delete("a"))
	h.press(t, enter)

	require.Equal(t, noticeProviderMissing, h.m.toast.text)
	require.Empty(t, h.m.provider)
	require.NotNil(t, h.m.dialog, "the dialog stays open")
}

func TestProviderDialog_Choose(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "a")
	h.addProvider(t, "b")

	h.press(t, ctrlO, down, enter)
	require.Equal(t, "b", h.m.provider)
	require.Nil(t, h.m.dialog)
}

func TestProviderDialog_AddAndDelete(t *testing.T) {
	h := newHarness(t)
	h.press(t, ctrlO)
	h.press(t, runes("v"))
	require.Equal(t, noticeSelectItem, h.m.toast.text)

	h.press(t, runes("a"))
	require.Equal(t, dialogForm, h.m.dialog.mode)
	h.press(t, ctrlS)
	require.Equal(t, noticeFillAllFields, h.m.toast.text)

	h.m.dialog.alias.SetValue("work")
	h.m.dialog.endpoint.SetValue("not a url")
	h.m.dialog.apiKey.SetValue("secret")
	h.press(t, ctrlS)
	require.Contains(t, h.m.toast.text, noticeInvalidProvider)

	h.m.dialog.endpoint.SetValue("https://work.openai.azure.com")
	h.press(t, ctrlS)
	require.Equal(t, dialogList, h.m.dialog.mode)
	require.Equal(t, []string{"work"}, h.m.dialog.aliases)

	p, err := h.providers.Get("work")
	require.NoError(t, err)
	require.Equal(t, config.KindAzure, p.Kind)

	h.press(t, runes("d"), runes("y"))
	require.Empty(t, h.m.dialog.aliases)
	_, err = h.providers.Get("work")
	require.ErrorIs(t, err, config.ErrProviderNotFound)

	h.press(t, esc)
	require.Nil(t, h.m.dialog)
}

func TestProviderDialog_RenameActiveProvider(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "a")

	h.press(t, ctrlO, enter)
	require.Equal(t, "a", h.m.provider)

	h.press(t, ctrlO, runes("v"))
	require.Equal(t, dialogForm, h.m.dialog.mode)
	require.Equal(t, "a", h.m.dialog.alias.Value())
	h.m.dialog.alias.SetValue("b")
	h.press(t, ctrlS)

	require.Equal(t, dialogList, h.m.dialog.mode)
	require.Equal(t, []string{"b"}, h.m.dialog.aliases)
	require.Equal(t, "b", h.m.provider)

	_, err := h.providers.Get("a")
	require.ErrorIs(t, err, config.ErrProviderNotFound)
	p, err := h.providers.Get("b")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:1234/v1", p.Endpoint)
	require.Equal(t, "sk-test", p.Key)
}

func TestProviderDialog_ToggleKind(t *testing.T) {
	h := newHarness(t)
	h.press(t, ctrlO, runes("a"), tab)
	require.Equal(t, fieldKind, h.m.dialog.field)
	h.press(t, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	require.Equal(t, config.KindGeneric, h.m.dialog.kind)
}

func TestQuit_RequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	h.press(t, esc)
	require.NotNil(t, h.m.confirm)
	require.Nil(t, h.press(t, runes("n")))
	require.Nil(t, h.m.confirm)

	h.press(t, ctrlC)
	cmd := h.press(t, runes("y"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}
