package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var levelVar = new(slog.LevelVar)

var L = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init points L at the file at path and sets the level. The terminal belongs to
// the UI while it runs, so an empty path discards log output entirely.
// Must be called before any goroutine logs.
func Init(path, lvl string) (io.Closer, error) {
	SetLevel(lvl)
	if path == "" {
		L = slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: levelVar}))
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	L = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: levelVar}))
	return f, nil
}
