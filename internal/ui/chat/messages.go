package chat

import (
	"github.com/comigor/chatgpt-local/internal/history"
	"github.com/comigor/chatgpt-local/internal/llm"
)

// Dispatch keys of the single-flight tasks.
const (
	keyCompletion    = "completion"
	keyConversations = "conversations"
	keyLoad          = "load"
)

// chunkMsg carries one streamed delta.
type chunkMsg struct {
	chunk llm.Chunk
}

// streamDoneMsg ends a completion. text is partial when err is set.
type streamDoneMsg struct {
	mid  string
	text string
	err  error
}

type conversationsMsg struct {
	rows []history.Row
}

type conversationLoadedMsg struct {
	cid  string
	rows []history.Row
}

type conversationDeletedMsg struct {
	cid     string
	removed int64
}

// persistedMsg reports a stored message.
type persistedMsg struct {
	cid string
}

type toastExpiredMsg struct {
	id int
}
