package metrics

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ErrNilMeter indicates that a nil OTEL meter was provided.
var ErrNilMeter = errors.New("metric meter cannot be nil")

// Metric describes an instrument.
type Metric struct {
	Name        string
	Description string
	Unit        string
	// Buckets are histogram bucket boundaries.
	Buckets []float64
}

// DefaultLatencyBuckets are used for histograms without explicit boundaries (milliseconds).
var DefaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// MetricsFactory lazily creates instruments and shares them by name.
type MetricsFactory struct {
	meter      metric.Meter
	logger     log.Logger
	counters   sync.Map // name -> metric.Int64Counter
	histograms sync.Map // name+buckets -> metric.Int64Histogram
}

// NewMetricsFactory builds a factory over meter.
func NewMetricsFactory(meter metric.Meter, logger log.Logger) (*MetricsFactory, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	return &MetricsFactory{meter: meter, logger: log.OrNop(logger)}, nil
}

// NewNopFactory returns a factory whose instruments record nothing.
func NewNopFactory() *MetricsFactory {
	return &MetricsFactory{meter: noop.NewMeterProvider().Meter("nop"), logger: log.NewNop()}
}

// Counter returns a builder over the counter described by m.
func (f *MetricsFactory) Counter(m Metric) (*CounterBuilder, error) {
	counter, err := cached(f, &f.counters, "counter", m.Name, func() (metric.Int64Counter, error) {
		return f.meter.Int64Counter(m.Name, metric.WithDescription(m.Description), metric.WithUnit(m.Unit))
	})
	if err != nil {
		return nil, err
	}

	return &CounterBuilder{counter: counter, name: m.Name}, nil
}

// Histogram returns a builder over the histogram described by m. The same
// name with different buckets yields distinct instruments.
func (f *MetricsFactory) Histogram(m Metric) (*HistogramBuilder, error) {
	if m.Buckets == nil {
		m.Buckets = DefaultLatencyBuckets
	}

	histogram, err := cached(f, &f.histograms, "histogram", histogramCacheKey(m.Name, m.Buckets),
		func() (metric.Int64Histogram, error) {
			return f.meter.Int64Histogram(m.Name,
				metric.WithDescription(m.Description),
				metric.WithUnit(m.Unit),
				metric.WithExplicitBucketBoundaries(m.Buckets...),
			)
		})
	if err != nil {
		return nil, err
	}

	return &HistogramBuilder{histogram: histogram, name: m.Name}, nil
}

func cached[T any](f *MetricsFactory, store *sync.Map, kind, key string, create func() (T, error)) (T, error) {
	var zero T

	if v, ok := store.Load(key); ok {
		if inst, ok := v.(T); ok {
			return inst, nil
		}

		return zero, fmt.Errorf("%s cache holds %T for %q", kind, v, key)
	}

	inst, err := create()
	if err != nil {
		f.logger.Log(context.Background(), log.LevelError, "failed to create "+kind,
			log.String("metric_name", key), log.Err(err))

		return zero, fmt.Errorf("create %s %q: %w", kind, key, err)
	}

	actual, _ := store.LoadOrStore(key, inst)
	if got, ok := actual.(T); ok {
		return got, nil
	}

	return zero, fmt.Errorf("%s cache holds %T for %q", kind, actual, key)
}

func histogramCacheKey(name string, buckets []float64) string {
	if len(buckets) == 0 {
		return name
	}

	sorted := slices.Sorted(slices.Values(buckets))
	parts := make([]string, len(sorted))

	for i, b := range sorted {
		parts[i] = strconv.FormatFloat(b, 'g', -1, 64)
	}

	return name + ":" + strings.Join(parts, ",")
}
