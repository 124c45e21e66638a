package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with pipeline-specific context helpers
type Logger struct {
	zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout or file path
}

// New creates a new logger with the given configuration
func New(cfg Config) *Logger {
	return &Logger{Logger: zerolog.New(writerFor(cfg)).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Caller().
		Logger()}
}

// NewWithWriter creates a logger that writes JSON lines to w
func NewWithWriter(w io.Writer, level string) *Logger {
	return &Logger{Logger: zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()}
}

// Default creates a default console logger
func Default() *Logger {
	return New(Config{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	})
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

func writerFor(cfg Config) io.Writer {
	var output io.Writer = os.Stdout

	if cfg.Output != "" && cfg.Output != "stdout" {
		if dir := filepath.Dir(cfg.Output); dir != "." {
			_ = os.MkdirAll(dir, 0755)
		}
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			output = file
		}
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}
	return output
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// WithRunID adds a pipeline run ID to the logger
func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{
		Logger: l.With().Str("run_id", id).Logger(),
	}
}

// WithDraftID adds a draft ID to the logger
func (l *Logger) WithDraftID(id uint) *Logger {
	return &Logger{
		Logger: l.With().Uint("draft_id", id).Logger(),
	}
}

// WithSource adds reference source fields to the logger
func (l *Logger) WithSource(sourceType, sourceName string) *Logger {
	return &Logger{
		Logger: l.With().
			Str("source_type", sourceType).
			Str("source_name", sourceName).
			Logger(),
	}
}
