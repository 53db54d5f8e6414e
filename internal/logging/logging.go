package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	Debug Level = "debug"
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
)

type Config struct {
	Level  Level
	Format string // "text" or "json"
	Output io.Writer
}

// Logger is a thin wrapper around zerolog exposing printf-style helpers.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}

	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return &Logger{log: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// NewDiscard returns a logger that drops everything, handy in tests.
func NewDiscard() *Logger {
	return &Logger{log: zerolog.Nop()}
}

func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(s)); l {
	case Debug, Info, Warn, Error:
		return l, nil
	}
	return "", fmt.Errorf("invalid log level %q, must be one of %q, %q, %q, %q", s, Debug, Info, Warn, Error)
}

// With returns a child logger carrying the given key/value pair on every
// record.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{log: l.log.With().Str(key, value).Logger()}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
