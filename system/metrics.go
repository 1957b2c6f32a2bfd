package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/worker"
)

// MetricProducer contributes untagged gauges to the metrics loop. Connection
// pools and listeners implement it to report their counts.
type MetricProducer interface {
	// MetricName prefixes the gauges this producer reports.
	// (Name would be cleaner, but clashes with too many implementations.)
	MetricName() string
	// Gauges returns instantaneous name to value pairs.
	Gauges(context.Context) map[string]float64
}

func traceMetrics(ctx context.Context, producers []MetricProducer) {
	metrics := o11y.FromContext(ctx).MetricsProvider()
	for _, producer := range producers {
		traceMetric(ctx, metrics, producer)
	}
}

func traceMetric(ctx context.Context, provider o11y.MetricsProvider, producer MetricProducer) {
	name := strings.ReplaceAll(producer.MetricName(), "-", "_")
	for field, v := range producer.Gauges(ctx) {
		_ = provider.Gauge(fmt.Sprintf("gauge.%s.%s", name, field), v, []string{}, 1)
	}
}

// metricsReporter returns a func for errgroup.Go that runs a worker loop
// publishing every producer's gauges every ten seconds.
func metricsReporter(ctx context.Context, mps []MetricProducer, gps []GaugeProducer) func() error {
	return func() error {
		worker.Run(ctx, worker.Config{
			Name:          "metric-loop",
			MaxWorkTime:   time.Second,
			NoWorkBackOff: backoff.NewConstantBackOff(time.Second * 10),
			WorkFunc: func(ctx context.Context) error {
				traceMetrics(ctx, mps)
				emitGauges(ctx, gps)
				return worker.ErrShouldBackoff
			},
		})
		return nil
	}
}
