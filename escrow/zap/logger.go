package zap

import (
	"context"
	"fmt"

	logpkg "github.com/LerianStudio/lib-escrow/escrow/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger adapts a zap logger to log.Logger. The zero value and a nil pointer
// both discard every entry.
type Logger struct {
	base  *zap.Logger
	level zap.AtomicLevel
}

var _ logpkg.Logger = (*Logger)(nil)

// NewWithCore wraps an existing zap core, typically an observer in tests.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{base: zap.New(core), level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

func (l *Logger) core() *zap.Logger {
	if l == nil || l.base == nil {
		return zap.NewNop()
	}

	return l.base
}

func (l *Logger) derive(base *zap.Logger) *Logger {
	out := &Logger{base: base}
	if l != nil {
		out.level = l.level
	}

	return out
}

// Log writes msg at level. Fields are only converted when the level is
// enabled.
func (l *Logger) Log(ctx context.Context, level logpkg.Level, msg string, fields ...logpkg.Field) {
	ce := l.core().Check(toZapLevel(level), msg)
	if ce == nil {
		return
	}

	out := make([]zap.Field, 0, len(fields)+2)
	for _, f := range fields {
		out = append(out, toZapField(f))
	}

	ce.Write(append(out, spanFields(ctx)...)...)
}

// With returns a child logger carrying fields.
//
//nolint:ireturn
func (l *Logger) With(fields ...logpkg.Field) logpkg.Logger {
	converted := make([]zap.Field, len(fields))
	for i, f := range fields {
		converted[i] = toZapField(f)
	}

	return l.derive(l.core().With(converted...))
}

// WithGroup nests later fields under name.
//
//nolint:ireturn
func (l *Logger) WithGroup(name string) logpkg.Logger {
	return l.derive(l.core().With(zap.Namespace(name)))
}

// ForInstance returns a child logger tagged with a contract instance id.
func (l *Logger) ForInstance(instanceID string) *Logger {
	return l.derive(l.core().With(toZapField(logpkg.Instance(instanceID))))
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level logpkg.Level) bool {
	return l.core().Core().Enabled(toZapLevel(level))
}

// Sync flushes buffered entries unless ctx is done first.
func (l *Logger) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() { done <- l.core().Sync() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Raw returns the underlying zap logger.
func (l *Logger) Raw() *zap.Logger {
	return l.core()
}

// Level returns the runtime-adjustable level.
func (l *Logger) Level() zap.AtomicLevel {
	if l == nil {
		return zap.NewAtomicLevel()
	}

	return l.level
}

func spanFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}

	return []zap.Field{
		zap.Stringer("trace_id", sc.TraceID()),
		zap.Stringer("span_id", sc.SpanID()),
	}
}

var zapLevels = map[logpkg.Level]zapcore.Level{
	logpkg.LevelError: zapcore.ErrorLevel,
	logpkg.LevelWarn:  zapcore.WarnLevel,
	logpkg.LevelInfo:  zapcore.InfoLevel,
	logpkg.LevelDebug: zapcore.DebugLevel,
}

func toZapLevel(level logpkg.Level) zapcore.Level {
	if zl, ok := zapLevels[level]; ok {
		return zl
	}

	return zapcore.InfoLevel
}

func toZapField(f logpkg.Field) zap.Field {
	switch v := f.Value.(type) {
	case error:
		return zap.NamedError(f.Key, v)
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case fmt.Stringer:
		return zap.Stringer(f.Key, v)
	default:
		return zap.Any(f.Key, v)
	}
}
