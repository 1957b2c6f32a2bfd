package httpserver

import (
	"context"
)

// MetricProducer is implemented by anything that can contribute gauges to
// the periodic metrics report.
type MetricProducer interface {
	// MetricName is the prefix the gauges are reported under.
	MetricName() string
	// Gauges returns instantaneous name to value pairs.
	Gauges(context.Context) map[string]float64
}
