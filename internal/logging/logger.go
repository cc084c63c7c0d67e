// Package logging provides the structured logger shared by every router
// component. It wraps zerolog rather than a hand-rolled writer so that log
// output composes with whatever aggregation the embedding application already
// uses, while keeping a small, stable API (WithComponent, WithField) that the
// rest of the codebase depends on instead of the zerolog API directly.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the on-wire shape of log output.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config controls logger construction.
type Config struct {
	Level  string // debug, info, warn, error (default info)
	Format Format // json or console (default json)
	Output io.Writer
}

// DefaultConfig returns the logger configuration used when none is supplied.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// Logger is the router's structured logger. The zero value is not usable;
// construct one with New.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger from cfg. A nil cfg falls back to DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level := parseLevel(cfg.Level)
	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Nop returns a Logger that discards everything, for tests that don't care
// about log output but need to satisfy a constructor signature.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a derived Logger tagging every subsequent entry with
// component=name. Each router component (catalog, health tracker, classifier,
// resolver, executor, dispatcher, async manager) calls this once at
// construction.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// WithField returns a derived Logger with one additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a derived Logger with several additional structured
// fields attached at once.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

// WithError returns a derived Logger with err attached under the
// conventional "error" field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// Debugf, Infof, Warnf, Errorf mirror the plain methods but accept
// printf-style formatting, matching call sites that build a message inline.
func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Zerolog exposes the underlying zerolog.Logger for call sites that need the
// full event builder (e.g. attaching several typed fields before Msg).
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }
