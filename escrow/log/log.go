package log

import (
	"context"
	"fmt"
	"strings"
)

// Logger is the structured logging interface consumed by every escrow component.
type Logger interface {
	Log(ctx context.Context, level Level, msg string, fields ...Field)
	With(fields ...Field) Logger
	WithGroup(name string) Logger
	Enabled(level Level) bool
	Sync(ctx context.Context) error
}

// Level represents the severity of a log entry.
//
// Lower numeric values indicate higher severity. A logger configured at a
// given Level emits that level and every level with a lower numeric value.
//
//	LevelError (0) -- only errors
//	LevelWarn  (1) -- errors + warnings
//	LevelInfo  (2) -- errors + warnings + info
//	LevelDebug (3) -- everything
type Level uint8

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of a log level.
func (level Level) String() string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel takes a string level and returns a Level constant.
func ParseLevel(lvl string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}

	var l Level

	return l, fmt.Errorf("not a valid Level: %q", lvl)
}

// Field is a strongly-typed key/value attribute attached to a log event.
type Field struct {
	Key   string
	Value any
}

// Any creates a field with an arbitrary value.
//
// Prefer the typed constructors; Any values are not sanitized.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// String creates a string field. Control characters are escaped.
func String(key, value string) Field {
	return Field{Key: key, Value: sanitizeLogString(value)}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Err creates the conventional `error` field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Instance tags an entry with the contract instance it concerns.
func Instance(id string) Field {
	return String("escrow.instance_id", id)
}

// Seat tags an entry with a seat handle.
func Seat(handle string) Field {
	return String("escrow.seat", handle)
}

// Keyword tags an entry with an allocation keyword.
func Keyword(keyword string) Field {
	return String("escrow.keyword", keyword)
}

// Brand tags an entry with an asset brand.
func Brand(brand string) Field {
	return String("escrow.brand", brand)
}
