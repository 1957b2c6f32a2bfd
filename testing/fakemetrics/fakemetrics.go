// Package fakemetrics records metric calls so tests can assert on what a
// component emitted without a statsd server.
package fakemetrics

import (
	"fmt"
	"sync"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type MetricCall struct {
	Metric   string
	Name     string
	Value    float64
	ValueInt int64
	Tags     []string
	Rate     float64
}

// CMPMetrics compares recorded calls ignoring ordering and allowing timer
// values to drift a little.
var CMPMetrics = gocmp.Options{
	cmpopts.EquateApprox(0, 10),
	cmpopts.SortSlices(func(x, y MetricCall) bool {
		key := func(c MetricCall) string {
			return fmt.Sprintf("%s|%s|%s", c.Metric, c.Name, c.Tags)
		}
		return key(x) < key(y)
	}),
}

// Provider satisfies the closable metrics provider the o11y setup expects.
type Provider struct {
	mu sync.RWMutex

	calls []MetricCall
}

// Calls returns a copy of every metric recorded so far.
func (p *Provider) Calls() []MetricCall {
	p.mu.RLock()
	defer p.mu.RUnlock()

	calls := make([]MetricCall, len(p.calls))
	copy(calls, p.calls)
	return calls
}

func (p *Provider) TimeInMilliseconds(name string, value float64, tags []string, rate float64) error {
	p.record(MetricCall{Metric: "timer", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (p *Provider) Gauge(name string, value float64, tags []string, rate float64) error {
	p.record(MetricCall{Metric: "gauge", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (p *Provider) Count(name string, value int64, tags []string, rate float64) error {
	p.record(MetricCall{Metric: "count", Name: name, ValueInt: value, Tags: tags, Rate: rate})
	return nil
}

func (p *Provider) Histogram(name string, value float64, tags []string, rate float64) error {
	p.record(MetricCall{Metric: "histogram", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (p *Provider) Close() error {
	return nil
}

func (p *Provider) record(c MetricCall) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, c)
}
