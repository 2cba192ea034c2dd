package runtime

import (
	"context"
	"fmt"
	"sync"
)

// ErrorReporter forwards recovered panics to an external error tracking service.
// Implementations must be safe for concurrent use and must not panic.
type ErrorReporter interface {
	CaptureException(ctx context.Context, err error, tags map[string]string)
}

var (
	errorReporterInstance ErrorReporter
	errorReporterMu       sync.RWMutex
)

// SetErrorReporter configures the global error reporter. Pass nil to disable reporting.
func SetErrorReporter(reporter ErrorReporter) {
	errorReporterMu.Lock()
	defer errorReporterMu.Unlock()

	errorReporterInstance = reporter
}

// GetErrorReporter returns the configured error reporter, or nil.
func GetErrorReporter() ErrorReporter {
	errorReporterMu.RLock()
	defer errorReporterMu.RUnlock()

	return errorReporterInstance
}

var (
	productionMode   bool
	productionModeMu sync.RWMutex
)

const redactedPanicMsg = "panic recovered (details redacted)"

// SetProductionMode toggles redaction of stack traces and panic values in reports.
func SetProductionMode(enabled bool) {
	productionModeMu.Lock()
	defer productionModeMu.Unlock()

	productionMode = enabled
}

// IsProductionMode reports whether production mode is enabled.
func IsProductionMode() bool {
	productionModeMu.RLock()
	defer productionModeMu.RUnlock()

	return productionMode
}

const maxStackLen = 4096

func reportPanicToErrorService(ctx context.Context, value any, stack []byte, component, name string) {
	reporter := GetErrorReporter()
	if reporter == nil {
		return
	}

	isProduction := IsProductionMode()

	tags := map[string]string{
		"component":      component,
		"goroutine_name": name,
		"panic_type":     "recovered",
	}

	if len(stack) > 0 && !isProduction {
		s := string(stack)
		if len(s) > maxStackLen {
			s = s[:maxStackLen] + "\n...[truncated]"
		}

		tags["stack_trace"] = s
	}

	reporter.CaptureException(ctx, toPanicError(value, isProduction), tags)
}

// PanicError is the error handed to reporters for non-error panic values.
type PanicError struct {
	Message string
}

// Error returns the panic message.
func (e *PanicError) Error() string {
	return e.Message
}

func toPanicError(value any, isProduction bool) error {
	if isProduction {
		return &PanicError{Message: redactedPanicMsg}
	}

	if err, ok := value.(error); ok {
		return err
	}

	if message, ok := value.(string); ok {
		return &PanicError{Message: message}
	}

	return &PanicError{Message: "panic: " + formatPanicValue(value)}
}

func formatPanicValue(value any) string {
	switch val := value.(type) {
	case nil:
		return "<nil>"
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", value)
	}
}
