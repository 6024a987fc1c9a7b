// Package session keeps the message log of the active conversation and the
// bubbles that display it.
package session

import (
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/chatgpt-local/internal/history"
	"github.com/comigor/chatgpt-local/internal/ids"
	"github.com/comigor/chatgpt-local/internal/logger"
	"github.com/comigor/chatgpt-local/internal/ui/bubble"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation log.
type Message struct {
	ID             string
	Role           Role
	Content        string
	IsSend         bool
	CreatedAt      time.Time
	ConversationID string
}

// Row converts m to its stored form.
func (m Message) Row() history.Row {
	return history.Row{
		CID:        m.ConversationID,
		MID:        m.ID,
		Content:    m.Content,
		Send:       m.IsSend,
		CreateTime: m.CreatedAt,
	}
}

// List is where the session places bubbles.
type List interface {
	AddItem(b *bubble.Bubble, atEnd bool)
	Clear()
	Refresh()
}

type Options struct {
	SystemPrompt string
	UserAvatar   bubble.Avatar
	PeerAvatar   bubble.Avatar
	NewID        func() string
	Now          func() time.Time
}

// Session must only be used from the update loop.
type Session struct {
	opts Options
	list List

	cid       string
	log       []Message
	bubbles   map[string]*bubble.Bubble
	pending   map[string]*strings.Builder
	finalized map[string]struct{}
}

// New returns a session with a fresh conversation already started.
func New(list List, opts Options) *Session {
	if opts.NewID == nil {
		opts.NewID = ids.New
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.UserAvatar.Label == "" {
		opts.UserAvatar = bubble.DefaultSelf
	}
	if opts.PeerAvatar.Label == "" {
		opts.PeerAvatar = bubble.DefaultPeer
	}
	s := &Session{opts: opts, list: list}
	s.StartNewConversation("")
	return s
}

// StartNewConversation resets the log to the system preamble and clears every
// bubble. An empty existingID starts a conversation with a fresh id.
func (s *Session) StartNewConversation(existingID string) string {
	if existingID == "" {
		existingID = s.opts.NewID()
	}
	s.cid = existingID
	s.log = []Message{{
		ID:             s.opts.NewID(),
		Role:           RoleSystem,
		Content:        s.opts.SystemPrompt,
		CreatedAt:      s.opts.Now(),
		ConversationID: s.cid,
	}}
	s.bubbles = make(map[string]*bubble.Bubble)
	s.pending = make(map[string]*strings.Builder)
	s.finalized = make(map[string]struct{})
	s.list.Clear()
	return s.cid
}

// RecordUserMessage appends a user message and shows it as a sent bubble.
func (s *Session) RecordUserMessage(text string) Message {
	msg := Message{
		ID:             s.opts.NewID(),
		Role:           RoleUser,
		Content:        text,
		IsSend:         true,
		CreatedAt:      s.opts.Now(),
		ConversationID: s.cid,
	}
	s.log = append(s.log, msg)
	s.show(msg.ID, text, true)
	return msg
}

// ApplyAssistantChunk grows the bubble of mid by delta, creating it on the
// first chunk. The log is untouched until FinalizeAssistantMessage. Chunks
// without an id, or for an already finalized message, are skipped.
func (s *Session) ApplyAssistantChunk(mid, delta string) bool {
	if mid == "" {
		logger.L.Debug("skipping chunk without message id", "cid", s.cid)
		return false
	}
	if _, done := s.finalized[mid]; done {
		logger.L.Debug("skipping chunk for finalized message", "mid", mid)
		return false
	}
	buf, ok := s.pending[mid]
	if !ok {
		buf = &strings.Builder{}
		s.pending[mid] = buf
	}
	buf.WriteString(delta)
	s.show(mid, delta, false)
	return true
}

// FinalizeAssistantMessage appends the completed reply to the log once per
// mid. It works without any prior chunk; an empty mid gets a fresh id. The
// second return is false when mid was already finalized.
func (s *Session) FinalizeAssistantMessage(mid, fullText string) (Message, bool) {
	if mid == "" {
		mid = s.opts.NewID()
	}
	if _, done := s.finalized[mid]; done {
		return Message{}, false
	}
	s.finalized[mid] = struct{}{}
	delete(s.pending, mid)

	if b, ok := s.bubbles[mid]; ok {
		if b.Text() != fullText {
			// The stream may have ended with text the UI never saw.
			b.SetText(fullText)
			s.list.Refresh()
		}
	} else if fullText != "" {
		s.show(mid, fullText, false)
	}

	msg := Message{
		ID:             mid,
		Role:           RoleAssistant,
		Content:        fullText,
		CreatedAt:      s.opts.Now(),
		ConversationID: s.cid,
	}
	s.log = append(s.log, msg)
	return msg, true
}

// LoadConversation starts conversation cid and replays stored rows in order.
func (s *Session) LoadConversation(cid string, rows []history.Row) {
	s.StartNewConversation(cid)
	for _, r := range rows {
		role := RoleAssistant
		if r.Send {
			role = RoleUser
		}
		msg := Message{
			ID:             r.MID,
			Role:           role,
			Content:        r.Content,
			IsSend:         r.Send,
			CreatedAt:      r.CreateTime,
			ConversationID: cid,
		}
		s.log = append(s.log, msg)
		if !r.Send {
			s.finalized[r.MID] = struct{}{}
		}
		s.show(r.MID, r.Content, r.Send)
	}
}

func (s *Session) show(mid, text string, sent bool) {
	if b, ok := s.bubbles[mid]; ok {
		b.AppendText(text)
		s.list.Refresh()
		return
	}
	avatar := s.opts.PeerAvatar
	if sent {
		avatar = s.opts.UserAvatar
	}
	b := bubble.NewText(text, sent, avatar)
	s.bubbles[mid] = b
	s.list.AddItem(b, true)
}

func (s *Session) ConversationID() string { return s.cid }

// Messages returns a copy of the log, system preamble first.
func (s *Session) Messages() []Message {
	return append([]Message(nil), s.log...)
}

func (s *Session) Bubble(mid string) (*bubble.Bubble, bool) {
	b, ok := s.bubbles[mid]
	return b, ok
}

func (s *Session) BubbleCount() int { return len(s.bubbles) }

// Pending returns the text accumulated for a reply that is still streaming.
func (s *Session) Pending(mid string) (string, bool) {
	buf, ok := s.pending[mid]
	if !ok {
		return "", false
	}
	return buf.String(), true
}

// CompletionMessages is the log in the form sent to the provider.
func (s *Session) CompletionMessages() []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(s.log))
	for _, m := range s.log {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
