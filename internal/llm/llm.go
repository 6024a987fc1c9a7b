package llm

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/chatgpt-local/internal/config"
)

// ErrNoProvider is returned when a completion is requested before any provider
// has been configured.
var ErrNoProvider = errors.New("no provider configured")

// NewClient creates an OpenAI client for the provider. Azure providers are
// addressed through their resource endpoint and apiVersion; generic providers
// use the endpoint as the API base URL.
func NewClient(p config.Provider, apiVersion string) (*openai.Client, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("provider %q: %w", p.Name, err)
	}

	switch p.Kind {
	case config.KindAzure:
		cfg := openai.DefaultAzureConfig(p.Key, p.Endpoint)
		if apiVersion != "" {
			cfg.APIVersion = apiVersion
		}
		return openai.NewClientWithConfig(cfg), nil
	default:
		cfg := openai.DefaultConfig(p.Key)
		cfg.BaseURL = p.Endpoint
		return openai.NewClientWithConfig(cfg), nil
	}
}
