package assert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry/metrics"
	"github.com/LerianStudio/lib-escrow/escrow/runtime"
)

// ErrAssertionFailed is the sentinel every AssertionError unwraps to.
var ErrAssertionFailed = errors.New("assertion failed")

// Logger is the logging contract required by assertions. log.Logger satisfies it.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

// AssertionError describes a broken invariant.
type AssertionError struct {
	Assertion string
	Message   string
	Component string
	Operation string
	Details   string
}

func (e *AssertionError) Error() string {
	if e == nil {
		return ErrAssertionFailed.Error()
	}

	if e.Details == "" {
		return "assertion failed: " + e.Message
	}

	return "assertion failed: " + e.Message + "\n" + e.Details
}

func (e *AssertionError) Unwrap() error {
	return ErrAssertionFailed
}

// Asserter checks invariants of one component operation. A failed check is
// logged, recorded on the active span and counted, then returned as an
// *AssertionError. The caller decides whether to abort.
type Asserter struct {
	ctx       context.Context
	logger    Logger
	metrics   *metrics.MetricsFactory
	component string
	operation string
}

// New creates an Asserter labelled with component and operation.
//
//nolint:contextcheck
func New(ctx context.Context, logger Logger, component, operation string) *Asserter {
	if ctx == nil {
		ctx = context.Background()
	}

	return &Asserter{ctx: ctx, logger: logger, component: component, operation: operation}
}

// WithMetrics makes failures increment assertion_failed_total on factory.
func (a *Asserter) WithMetrics(factory *metrics.MetricsFactory) *Asserter {
	if a != nil {
		a.metrics = factory
	}

	return a
}

// That fails when ok is false. kv are alternating keys and values added to
// the failure details.
func (a *Asserter) That(ctx context.Context, ok bool, msg string, kv ...any) error {
	if ok {
		return nil
	}

	return a.fail(ctx, "That", msg, kv...)
}

// NoError fails when err is not nil.
func (a *Asserter) NoError(ctx context.Context, err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}

	return a.fail(ctx, "NoError", msg, append([]any{"error", err.Error(), "error_type", fmt.Sprintf("%T", err)}, kv...)...)
}

// Never always fails.
func (a *Asserter) Never(ctx context.Context, msg string, kv ...any) error {
	return a.fail(ctx, "Never", msg, kv...)
}

func (a *Asserter) fail(ctx context.Context, assertion, msg string, kv ...any) error {
	var (
		logger               Logger
		factory              *metrics.MetricsFactory
		component, operation string
	)

	if a != nil {
		logger, factory, component, operation = a.logger, a.metrics, a.component, a.operation

		if ctx == nil {
			ctx = a.ctx
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	pairs := []any{"assertion", assertion}
	if component != "" {
		pairs = append(pairs, "component", component)
	}

	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}

	details := formatKeyValueLines(append(pairs, kv...))

	var stack []byte
	if includeStack() {
		stack = debug.Stack()
	}

	report(ctx, logger, failureMessage(msg, details, stack))
	countFailure(ctx, factory, component, operation, assertion)
	markSpan(ctx, assertion, msg, stack, component, operation)

	return &AssertionError{
		Assertion: assertion,
		Message:   msg,
		Component: component,
		Operation: operation,
		Details:   details,
	}
}

func includeStack() bool {
	return !runtime.IsProductionMode() &&
		!strings.EqualFold(strings.TrimSpace(os.Getenv("ESCROW_ENV")), "production")
}

const maxValueLength = 200

func truncateValue(v any) string {
	s := fmt.Sprint(v)
	if len(s) <= maxValueLength {
		return s
	}

	return fmt.Sprintf("%s... (truncated %d chars)", s[:maxValueLength], len(s)-maxValueLength)
}

func formatKeyValueLines(kv []any) string {
	lines := make([]string, 0, (len(kv)+1)/2)

	for i := 0; i < len(kv); i += 2 {
		var value any = "MISSING_VALUE"
		if i+1 < len(kv) {
			value = kv[i+1]
		}

		lines = append(lines, fmt.Sprintf("    %v=%s", kv[i], truncateValue(value)))
	}

	return strings.Join(lines, "\n")
}

func failureMessage(msg, details string, stack []byte) string {
	out := "ASSERTION FAILED: " + msg
	if details != "" {
		out += "\n" + details
	}

	if len(stack) > 0 {
		out += "\nstack trace:\n" + string(stack)
	}

	return out
}

func report(ctx context.Context, logger Logger, message string) {
	if logger == nil {
		fmt.Fprintln(os.Stderr, message)

		return
	}

	logger.Log(ctx, log.LevelError, message)
}
