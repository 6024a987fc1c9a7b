package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Client is the subset of openai.Client used for completions; it is easy to swap in tests.
type Client interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}
