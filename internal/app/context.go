// Package app owns the long-lived resources of the client: settings, log
// file, history database, provider store and background dispatcher.
package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/comigor/chatgpt-local/internal/config"
	"github.com/comigor/chatgpt-local/internal/dispatch"
	"github.com/comigor/chatgpt-local/internal/history"
	"github.com/comigor/chatgpt-local/internal/llm"
	"github.com/comigor/chatgpt-local/internal/logger"
	"github.com/comigor/chatgpt-local/internal/ui/chat"
)

type Context struct {
	Config     *config.Config
	Store      *history.Store
	Providers  *config.ProviderStore
	Dispatcher *dispatch.Dispatcher

	logCloser io.Closer
}

// New initialises logging, opens the history database and makes sure the
// providers file exists. Resources opened before a failure are released.
func New(cfg *config.Config) (*Context, error) {
	logCloser, err := logger.Init(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := history.Open(cfg.DatabasePath)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}

	providers := config.NewProviderStore(cfg.ProvidersPath)
	if _, err := providers.Load(); err != nil {
		store.Close()
		logCloser.Close()
		return nil, fmt.Errorf("load providers: %w", err)
	}

	logger.L.Info("application started",
		"database", cfg.DatabasePath,
		"providers", cfg.ProvidersPath,
		"model", cfg.Model,
	)
	return &Context{
		Config:     cfg,
		Store:      store,
		Providers:  providers,
		Dispatcher: dispatch.New(),
		logCloser:  logCloser,
	}, nil
}

// NewStreamer builds a completion client for p.
func (c *Context) NewStreamer(p config.Provider) (chat.Streamer, error) {
	client, err := llm.NewClient(p, c.Config.AzureAPIVersion)
	if err != nil {
		return nil, err
	}
	return llm.NewCompleter(client, c.Config.Model), nil
}

func (c *Context) ChatDeps() chat.Deps {
	return chat.Deps{
		Config:      c.Config,
		Store:       c.Store,
		Providers:   c.Providers,
		Dispatcher:  c.Dispatcher,
		NewStreamer: c.NewStreamer,
	}
}

// Close stops background work, then closes the database and the log file.
func (c *Context) Close() error {
	c.Dispatcher.Close()
	logger.L.Info("application stopped")
	return errors.Join(c.Store.Close(), c.logCloser.Close())
}
