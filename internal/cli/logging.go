package cli

import (
	"io"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/sitepress/internal/config"
)

func newLogger(w io.Writer, level slog.Level, format config.LogFormat) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func levelFor(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// configureLogging replaces the default logger according to cfg. -v still
// forces debug.
func (c *CLI) configureLogging(cfg *config.Config) *slog.Logger {
	level := levelFor(cfg.Logging.Level)
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(c.stderr, level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return logger
}
