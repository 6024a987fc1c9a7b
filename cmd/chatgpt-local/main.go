package main

import (
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/comigor/chatgpt-local/internal/app"
	"github.com/comigor/chatgpt-local/internal/config"
	"github.com/comigor/chatgpt-local/internal/logger"
	"github.com/comigor/chatgpt-local/internal/ui/chat"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	ctx, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return 1
	}
	defer func() {
		if err := ctx.Close(); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	cfg.Watch(func(next *config.Config) {
		logger.SetLevel(next.LogLevel)
	})

	p := tea.NewProgram(chat.New(ctx.ChatDeps()), tea.WithAltScreen(), tea.WithMouseCellMotion())
	ctx.Dispatcher.Bind(p)

	if _, err := p.Run(); err != nil {
		logger.L.Error("program exited with error", "error", err)
		slog.Error("program exited with error", "error", err)
		return 1
	}
	return 0
}
