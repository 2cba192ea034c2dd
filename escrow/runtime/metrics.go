package runtime

import (
	"context"
	"sync"

	constant "github.com/LerianStudio/lib-escrow/escrow/constants"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry/metrics"
	"go.opentelemetry.io/otel/attribute"
)

// PanicMetrics records recovered panics on panic_recovered_total.
type PanicMetrics struct {
	factory *metrics.MetricsFactory
	logger  Logger
}

var panicRecoveredMetric = metrics.Metric{
	Name:        constant.MetricPanicRecoveredTotal,
	Unit:        "1",
	Description: "Total number of recovered panics",
}

var (
	panicMetricsInstance *PanicMetrics
	panicMetricsMu       sync.RWMutex
)

// InitPanicMetrics installs the panic metrics singleton. Later calls are no-ops.
func InitPanicMetrics(factory *metrics.MetricsFactory, logger Logger) {
	panicMetricsMu.Lock()
	defer panicMetricsMu.Unlock()

	if factory == nil || panicMetricsInstance != nil {
		return
	}

	panicMetricsInstance = &PanicMetrics{factory: factory, logger: logger}
}

// GetPanicMetrics returns the panic metrics singleton, or nil.
func GetPanicMetrics() *PanicMetrics {
	panicMetricsMu.RLock()
	defer panicMetricsMu.RUnlock()

	return panicMetricsInstance
}

// ResetPanicMetrics clears the singleton. Intended for tests.
func ResetPanicMetrics() {
	panicMetricsMu.Lock()
	defer panicMetricsMu.Unlock()

	panicMetricsInstance = nil
}

// RecordPanicRecovered increments panic_recovered_total.
func (pm *PanicMetrics) RecordPanicRecovered(ctx context.Context, component, name string) {
	if pm == nil || pm.factory == nil {
		return
	}

	counter, err := pm.factory.Counter(panicRecoveredMetric)
	if err == nil {
		err = counter.WithAttributes(
			attribute.String("component", constant.SanitizeMetricLabel(component)),
			attribute.String("goroutine_name", constant.SanitizeMetricLabel(name)),
		).AddOne(ctx)
	}

	if err != nil && pm.logger != nil {
		pm.logger.Log(ctx, log.LevelWarn, "failed to record panic metric", log.Err(err))
	}
}

func recordPanicMetric(ctx context.Context, component, name string) {
	if pm := GetPanicMetrics(); pm != nil {
		pm.RecordPanicRecovered(ctx, component, name)
	}
}
