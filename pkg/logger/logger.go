// Package logger is the structured logger shared by the server, the worker
// and thesisctl. Entries are written by zerolog as JSON, or through its
// console writer when Pretty is set.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level is a zerolog level.
type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// ParseLevel accepts LOG_LEVEL values. Unknown values mean info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return LevelInfo
	}
	return lvl
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Field is one key-value pair of an entry.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field    { return Field{key, value} }
func Int(key string, value int) Field   { return Field{key, value} }
func Bool(key string, value bool) Field { return Field{key, value} }
func Any(key string, value any) Field   { return Field{key, value} }

// Duration is written in time.Duration notation, e.g. "1.5s".
func Duration(key string, value time.Duration) Field {
	return Field{key, value.String()}
}

// Time is written as RFC 3339 in the value's own location.
func Time(key string, value time.Time) Field {
	return Field{key, value.Format(time.RFC3339)}
}

// Err is the "error" field. A nil error is written as null.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

// Lifecycle fields.
func LineageID(id string) Field     { return String("lineage_id", id) }
func StudentID(id string) Field     { return String("student_id", id) }
func EventID(id string) Field       { return String("event_id", id) }
func Status(s string) Field         { return String("status", s) }
func VersionNumber(n int) Field     { return Int("version_number", n) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }

// ══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// Options configures New.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool

	// Pretty switches to the console writer for local development.
	Pretty bool

	// Service is attached to every entry.
	Service string
}

// DefaultOptions logs JSON at info level to stdout.
func DefaultOptions() Options {
	return Options{
		Output:    os.Stdout,
		Level:     LevelInfo,
		AddCaller: true,
		Service:   "thesis-lifecycle",
	}
}

// Logger wraps a zerolog.Logger. The zero value is not usable; use New or Nop.
type Logger struct {
	zl zerolog.Logger
}

// New builds a logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zc := zerolog.New(out).Level(opts.Level).With().Timestamp()
	if opts.Service != "" {
		zc = zc.Str("service", opts.Service)
	}
	if opts.AddCaller {
		// Skip the wrapper frames so the caller of Info/Warn is reported.
		zc = zc.CallerWithSkipFrameCount(4)
	}
	return &Logger{zl: zc.Logger()}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Level returns the minimum level written.
func (l *Logger) Level() Level {
	return l.zl.GetLevel()
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	zc := l.zl.With()
	for _, f := range fields {
		zc = zc.Interface(f.Key, f.Value)
	}
	return &Logger{zl: zc.Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { write(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { write(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { write(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { write(l.zl.Error(), msg, fields) }

func write(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	e.Msg(msg)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// RequestIDKey is the field set by the HTTP request-id middleware.
const RequestIDKey = "request_id"

// WithRequestID returns a child logger tagged with a request id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

type ctxKey struct{}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request logger, or a default one outside a request.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return New(DefaultOptions())
}
