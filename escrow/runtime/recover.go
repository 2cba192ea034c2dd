package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/LerianStudio/lib-escrow/escrow/log"
)

// Logger is the minimal logging contract used for panic reports.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

// PanicPolicy selects what happens after a panic has been recovered and reported.
type PanicPolicy int

const (
	// KeepRunning swallows the panic once it is reported.
	KeepRunning PanicPolicy = iota
	// CrashProcess re-panics with the original value after reporting.
	CrashProcess
)

// String returns the policy name.
func (p PanicPolicy) String() string {
	switch p {
	case KeepRunning:
		return "keep_running"
	case CrashProcess:
		return "crash_process"
	default:
		return "unknown"
	}
}

// SafeGo starts fn in a goroutine with panic recovery.
func SafeGo(logger Logger, name string, policy PanicPolicy, fn func()) {
	go func() {
		defer RecoverWithPolicyAndContext(context.Background(), logger, "", name, policy)

		fn()
	}()
}

// SafeGoWithContext starts fn in a goroutine with panic recovery and trace correlation.
func SafeGoWithContext(ctx context.Context, logger Logger, name string, policy PanicPolicy, fn func(context.Context)) {
	SafeGoWithContextAndComponent(ctx, logger, "", name, policy, fn)
}

// SafeGoWithContextAndComponent starts fn in a goroutine and labels any
// recovered panic with component and name.
func SafeGoWithContextAndComponent(
	ctx context.Context,
	logger Logger,
	component, name string,
	policy PanicPolicy,
	fn func(context.Context),
) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer RecoverWithPolicyAndContext(ctx, logger, component, name, policy)

		fn(ctx)
	}()
}

// RecoverAndLog recovers a panic in the calling goroutine and logs it.
// It must be deferred directly.
func RecoverAndLog(logger Logger, name string) {
	if r := recover(); r != nil {
		HandlePanicValue(context.Background(), logger, r, "", name)
	}
}

// RecoverAndLogWithContext is RecoverAndLog with trace correlation and a component label.
func RecoverAndLogWithContext(ctx context.Context, logger Logger, component, name string) {
	if r := recover(); r != nil {
		HandlePanicValue(ctx, logger, r, component, name)
	}
}

// RecoverWithPolicyAndContext recovers, reports, and then applies policy.
func RecoverWithPolicyAndContext(ctx context.Context, logger Logger, component, name string, policy PanicPolicy) {
	r := recover()
	if r == nil {
		return
	}

	HandlePanicValue(ctx, logger, r, component, name)

	if policy == CrashProcess {
		panic(r)
	}
}

// HandlePanicValue reports an already-recovered panic value through every
// configured channel: log, span, metric and error reporter.
func HandlePanicValue(ctx context.Context, logger Logger, value any, component, name string) {
	if ctx == nil {
		ctx = context.Background()
	}

	stack := debug.Stack()

	logPanicWithStack(logger, name, value, stack)
	RecordPanicToSpanWithComponent(ctx, value, stack, component, name)
	recordPanicMetric(ctx, component, name)
	reportPanicToErrorService(ctx, value, stack, component, name)
}

func logPanicWithStack(logger Logger, name string, value any, stack []byte) {
	if logger == nil {
		return
	}

	fields := []log.Field{
		log.String("goroutine_name", name),
		log.String("panic_value", formatPanicValue(value)),
	}

	if !IsProductionMode() {
		fields = append(fields, log.String("stack", string(stack)))
	}

	logger.Log(context.Background(), log.LevelError, fmt.Sprintf("panic recovered in %s", name), fields...)
}
