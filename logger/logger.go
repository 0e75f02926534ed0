// Package logger provides the structured logging interface used by every
// engine component, with zerolog-backed implementations, a no-op logger for
// components built without one, and optional daily file rotation.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// errorKey is the field key whose error value is logged with its stack.
const errorKey = "error"

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger writes structured entries at four levels. Loggers are derived with
// With to scope every entry of a component, a connection or a session.
type Logger interface {
	// Debug logs per-operation detail.
	Debug(msg string, fields ...Field)

	// Info logs lifecycle events such as start, stop, connect and disconnect.
	Info(msg string, fields ...Field)

	// Warn logs recoverable conditions such as exceeded buffer limits.
	Warn(msg string, fields ...Field)

	// Error logs failures. A field keyed "error" holding an error value is
	// written with its stack when the error carries one.
	Error(msg string, fields ...Field)

	// With returns a Logger adding fields to every entry. The receiver is
	// unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach
	//
	// Returns:
	//   - The derived Logger
	With(fields ...Field) Logger

	// Close releases the log file of a file-backed root logger. Derived
	// loggers and console loggers have nothing to release. Safe to call more
	// than once.
	Close() error
}

type zerologLogger struct {
	logger zerolog.Logger
	closer io.Closer
}

// NewZerologLogger wraps l, adding the service name and a timestamp to every
// entry and dropping entries below level.
//
// Parameters:
//   - l: The zerolog.Logger to write through
//   - serviceName: Value of the "service" field
//   - level: Minimum level written
//
// Returns:
//   - The Logger
func NewZerologLogger(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{logger: l.With().Str("service", serviceName).Timestamp().Logger().Level(level)}
}

// NewConsoleLogger writes human-readable entries to w, as the command-line
// tools do on stderr.
func NewConsoleLogger(w io.Writer, serviceName string, level zerolog.Level) Logger {
	return NewZerologLogger(zerolog.New(zerolog.ConsoleWriter{Out: w}), serviceName, level)
}

// NewZerologFileLogger writes JSON entries to stdout and to a DailyFileWriter
// in logDir. Close the returned Logger to close the file.
//
// Parameters:
//   - serviceName: Value of the "service" field and log file name prefix
//   - logDir: Directory for log files; created if missing
//   - level: Minimum level written
//
// Returns:
//   - The Logger
//   - An error if the directory or the first log file cannot be created
func NewZerologFileLogger(serviceName string, logDir string, level zerolog.Level) (Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}

	w, err := NewDailyFileWriter(serviceName, logDir)
	if err != nil {
		return nil, err
	}

	l := NewZerologLogger(zerolog.New(io.MultiWriter(os.Stdout, w)), serviceName, level).(*zerologLogger)
	l.closer = w
	return l, nil
}

// NewNopLogger returns a Logger that discards every entry. Engine components
// fall back to it when their Config carries no Logger.
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// OrNop returns l, or a no-op Logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}

	return l
}

// ParseLevel converts a level name such as "debug" or "warn" into a
// zerolog.Level. Unknown or empty names yield zerolog.InfoLevel.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}

	return l
}

func (z *zerologLogger) Debug(msg string, fields ...Field) {
	write(z.logger.Debug(), msg, fields)
}

func (z *zerologLogger) Info(msg string, fields ...Field) {
	write(z.logger.Info(), msg, fields)
}

func (z *zerologLogger) Warn(msg string, fields ...Field) {
	write(z.logger.Warn(), msg, fields)
}

func (z *zerologLogger) Error(msg string, fields ...Field) {
	write(z.logger.Error(), msg, fields)
}

func (z *zerologLogger) With(fields ...Field) Logger {
	ctx := z.logger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}

	return &zerologLogger{logger: ctx.Logger()}
}

func (z *zerologLogger) Close() error {
	if z.closer == nil {
		return nil
	}

	return z.closer.Close()
}

// write adds fields to ev in order and sends it. Disabled levels return a
// nil event, on which every call is a no-op.
func write(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}

	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			if f.Key == errorKey {
				ev = ev.Stack().Err(v)
			} else {
				ev = ev.AnErr(f.Key, v)
			}
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case int64:
			ev = ev.Int64(f.Key, v)
		case bool:
			ev = ev.Bool(f.Key, v)
		case fmt.Stringer:
			ev = ev.Stringer(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}

	ev.Msg(msg)
}
