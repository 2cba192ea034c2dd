//go:build unit

package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type testLogger struct {
	mu       sync.Mutex
	messages []string
	logged   chan struct{}
}

func newTestLogger() *testLogger {
	return &testLogger{logged: make(chan struct{}, 1)}
}

func (logger *testLogger) Log(_ context.Context, _ log.Level, msg string, _ ...log.Field) {
	logger.mu.Lock()
	logger.messages = append(logger.messages, msg)
	logger.mu.Unlock()

	select {
	case logger.logged <- struct{}{}:
	default:
	}
}

func (logger *testLogger) waitForLog(timeout time.Duration) bool {
	select {
	case <-logger.logged:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (logger *testLogger) count() int {
	logger.mu.Lock()
	defer logger.mu.Unlock()

	return len(logger.messages)
}

type captureReporter struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (r *captureReporter) CaptureException(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	t.Cleanup(func() { require.NoError(t, provider.Shutdown(context.Background())) })

	return provider, recorder
}
