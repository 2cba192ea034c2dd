//go:build unit

package runtime

import (
	"context"
	"testing"

	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Tests in this file touch process-wide singletons and do not run in parallel.

func TestPanicMetrics_RecordsThroughHandlePanicValue(t *testing.T) {
	ResetPanicMetrics()
	t.Cleanup(ResetPanicMetrics)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	factory, err := metrics.NewMetricsFactory(provider.Meter("test"), log.NewNop())
	require.NoError(t, err)

	InitPanicMetrics(factory, nil)
	require.NotNil(t, GetPanicMetrics())

	HandlePanicValue(context.Background(), nil, "boom", "seat", "commit")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != panicRecoveredMetric.Name {
				continue
			}

			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
		}
	}

	assert.Equal(t, int64(1), total)
}

func TestInitPanicMetrics_NilFactoryIsIgnored(t *testing.T) {
	ResetPanicMetrics()
	t.Cleanup(ResetPanicMetrics)

	InitPanicMetrics(nil, nil)
	assert.Nil(t, GetPanicMetrics())
}

func TestErrorReporter_ReceivesPanics(t *testing.T) {
	reporter := &captureReporter{}

	SetErrorReporter(reporter)
	t.Cleanup(func() { SetErrorReporter(nil) })

	HandlePanicValue(context.Background(), nil, "reported", "service", "payout")

	require.Len(t, reporter.errs, 1)
	assert.Equal(t, "reported", reporter.errs[0].Error())
	assert.Equal(t, "service", reporter.tags[0]["component"])
	assert.Equal(t, "payout", reporter.tags[0]["goroutine_name"])
	assert.Contains(t, reporter.tags[0], "stack_trace")
}

func TestErrorReporter_ProductionModeRedacts(t *testing.T) {
	reporter := &captureReporter{}

	SetErrorReporter(reporter)
	SetProductionMode(true)
	t.Cleanup(func() {
		SetErrorReporter(nil)
		SetProductionMode(false)
	})

	HandlePanicValue(context.Background(), nil, "secret", "service", "payout")

	require.Len(t, reporter.errs, 1)
	assert.Equal(t, redactedPanicMsg, reporter.errs[0].Error())
	assert.NotContains(t, reporter.tags[0], "stack_trace")
}
