// Package logging builds the process logger and adapts it to the service
// logger interface.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a zerolog logger writing to out (stderr when nil). Level accepts
// zerolog level names; format is console or json.
func New(level, format string, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	switch strings.ToLower(format) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// ParseLevel maps a level name onto a zerolog level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Adapter implements the service logger on top of zerolog. Arguments are
// alternating keys and values. The level can be changed while in use.
type Adapter struct {
	logger atomic.Pointer[zerolog.Logger]
}

// NewAdapter wraps an existing zerolog.Logger.
func NewAdapter(logger zerolog.Logger) *Adapter {
	a := &Adapter{}
	a.logger.Store(&logger)
	return a
}

// Logger returns the current logger. SetLevel swaps in a new value, so the
// returned logger is never modified afterwards.
func (a *Adapter) Logger() *zerolog.Logger {
	return a.logger.Load()
}

// SetLevel swaps in a copy of the logger at lvl.
func (a *Adapter) SetLevel(lvl zerolog.Level) {
	next := a.logger.Load().Level(lvl)
	a.logger.Store(&next)
}

// Debug logs a debug-level message.
func (a *Adapter) Debug(msg string, args ...any) { emit(a.logger.Load().Debug(), msg, args) }

// Info logs an info-level message.
func (a *Adapter) Info(msg string, args ...any) { emit(a.logger.Load().Info(), msg, args) }

// Warn logs a warning-level message.
func (a *Adapter) Warn(msg string, args ...any) { emit(a.logger.Load().Warn(), msg, args) }

// Error logs an error-level message.
func (a *Adapter) Error(msg string, args ...any) { emit(a.logger.Load().Error(), msg, args) }

func emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			event = event.Str("!BADKEY", key)
			break
		}
		event = addField(event, key, args[i+1])
	}
	event.Msg(msg)
}

func addField(event *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return event.Str(key, v)
	case int:
		return event.Int(key, v)
	case int64:
		return event.Int64(key, v)
	case float64:
		return event.Float64(key, v)
	case bool:
		return event.Bool(key, v)
	case time.Duration:
		return event.Dur(key, v)
	case time.Time:
		return event.Time(key, v)
	case error:
		return event.AnErr(key, v)
	default:
		return event.Interface(key, v)
	}
}
