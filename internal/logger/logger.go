package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"techdigest/internal/config"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init installs a stderr text logger as the process default until New replaces it.
// Safe to call more than once.
func Init() {
	once.Do(func() {
		if defaultLogger == nil {
			defaultLogger = slog.New(newHandler(config.Logging{Level: os.Getenv("LOG_LEVEL")}, os.Stderr))
		}
		slog.SetDefault(defaultLogger)
	})
}

// New builds a logger from configuration and installs it as the process default
func New(cfg config.Logging) *slog.Logger {
	l := slog.New(newHandler(cfg, output(cfg.Output)))
	defaultLogger = l
	slog.SetDefault(l)
	return l
}

func newHandler(cfg config.Logging, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func output(name string) io.Writer {
	if strings.EqualFold(name, "stdout") {
		return os.Stdout
	}
	return os.Stderr
}

// ParseLevel maps a level name to a slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
