package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/chatgpt-local/internal/logger"
)

// Chunk is one streamed delta. ID is the response id shared by every chunk of
// one completion and may be empty for malformed chunks.
type Chunk struct {
	ID    string
	Delta string
}

// Completer streams chat completions for a single model.
type Completer struct {
	client Client
	model  string
}

func NewCompleter(client Client, model string) *Completer {
	return &Completer{client: client, model: model}
}

// Stream sends messages and calls onChunk for every chunk carrying a choice,
// in arrival order. It returns the concatenated text, which is partial when an
// error interrupts the stream.
func (c *Completer) Stream(ctx context.Context, messages []openai.ChatCompletionMessage, onChunk func(Chunk)) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("create completion stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			logger.L.Debug("completion stream finished", "model", c.model, "length", text.Len())
			return text.String(), nil
		}
		if err != nil {
			return text.String(), fmt.Errorf("receive completion chunk: %w", err)
		}
		// Azure sends a content-filter preamble with no choices.
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		text.WriteString(delta)
		if onChunk != nil {
			onChunk(Chunk{ID: resp.ID, Delta: delta})
		}
	}
}
