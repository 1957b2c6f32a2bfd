package system

import (
	"context"
	"fmt"
	"strings"

	"github.com/hl8/datalayer/o11y"
)

// GaugeProducer contributes tagged gauges to the metrics loop. Use it over
// MetricProducer when one logical gauge needs reporting per tag set, for
// instance per tenant.
type GaugeProducer interface {
	// GaugeName prefixes the gauges this producer reports.
	// (Name would be cleaner, but clashes with too many implementations.)
	GaugeName() string
	// Gauges returns instantaneous values with their tags.
	Gauges(context.Context) map[string][]TaggedValue
}

type TaggedValue struct {
	Val  float32
	Tags []string
}

func emitGauges(ctx context.Context, producers []GaugeProducer) {
	metrics := o11y.FromContext(ctx).MetricsProvider()
	for _, producer := range producers {
		emitGauge(ctx, metrics, producer)
	}
}

func emitGauge(ctx context.Context, provider o11y.MetricsProvider, producer GaugeProducer) {
	name := strings.ReplaceAll(producer.GaugeName(), "-", "_")
	for field, tvs := range producer.Gauges(ctx) {
		for _, tv := range tvs {
			_ = provider.Gauge(fmt.Sprintf("gauge.%s.%s", name, field), float64(tv.Val), tv.Tags, 1)
		}
	}
}
