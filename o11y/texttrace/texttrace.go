// Package texttrace is an o11y.Provider that emits hierarchical spans as
// human-readable lines on a writer. It is the provider used in development
// and in tests; production deployments are expected to plug in their own
// tracing backend behind the o11y interfaces.
package texttrace

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/google/uuid"

	"github.com/hl8/datalayer/colourise"
	"github.com/hl8/datalayer/o11y"
)

type Config struct {
	Output io.Writer
	// Colour adorns the trace id and span name with deterministic ANSI colours.
	Colour bool
	// Metrics receives any metrics recorded on spans. Defaults to a no-op client.
	Metrics o11y.ClosableMetricsProvider
}

type provider struct {
	cfg Config

	mu           sync.Mutex
	globalFields map[string]interface{}
}

func New(cfg Config) o11y.Provider {
	if cfg.Metrics == nil {
		cfg.Metrics = &statsd.NoOpClient{}
	}
	return &provider{
		cfg:          cfg,
		globalFields: map[string]interface{}{},
	}
}

type spanKey struct{}

type trace struct {
	id     string
	fields map[string]interface{}
	mu     sync.Mutex
}

type span struct {
	provider *provider
	trace    *trace
	name     string
	id       string
	parentID string
	started  time.Time

	mu      sync.Mutex
	fields  map[string]interface{}
	metrics []o11y.Metric
}

func (p *provider) AddGlobalField(key string, val interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.globalFields[key] = val
}

func (p *provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	s := &span{
		provider: p,
		name:     name,
		id:       uuid.New().String(),
		started:  time.Now(),
		fields:   map[string]interface{}{},
	}
	if parent := p.getSpan(ctx); parent != nil {
		s.parentID = parent.id
		s.trace = parent.trace
	} else {
		s.trace = &trace{
			id:     uuid.New().String(),
			fields: map[string]interface{}{},
		}
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func (p *provider) GetSpan(ctx context.Context) o11y.Span {
	if s := p.getSpan(ctx); s != nil {
		return s
	}
	return nil
}

func (p *provider) getSpan(ctx context.Context) *span {
	if s, ok := ctx.Value(spanKey{}).(*span); ok {
		return s
	}
	return nil
}

func (p *provider) AddField(ctx context.Context, key string, val interface{}) {
	if s := p.getSpan(ctx); s != nil {
		s.AddField(key, val)
	}
}

func (p *provider) AddFieldToTrace(ctx context.Context, key string, val interface{}) {
	s := p.getSpan(ctx)
	if s == nil {
		return
	}
	s.trace.mu.Lock()
	defer s.trace.mu.Unlock()
	s.trace.fields[key] = val
}

func (p *provider) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	_, s := p.StartSpan(ctx, name)
	for _, f := range fields {
		s.AddField(f.Key, f.Value)
	}
	s.End()
}

func (p *provider) Close(_ context.Context) {
	_ = p.cfg.Metrics.Close()
}

func (p *provider) MetricsProvider() o11y.MetricsProvider {
	return p.cfg.Metrics
}

func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	s.fields[key] = val
}

func (s *span) RecordMetric(metric o11y.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metric)
}

func (s *span) End() {
	duration := time.Since(s.started)

	s.mu.Lock()
	s.fields["duration_ms"] = float64(duration.Nanoseconds()) / 1e6
	fields := map[string]interface{}{}
	s.trace.mu.Lock()
	for k, v := range s.trace.fields {
		fields[k] = v
	}
	s.trace.mu.Unlock()
	s.provider.mu.Lock()
	for k, v := range s.provider.globalFields {
		fields[k] = v
	}
	s.provider.mu.Unlock()
	for k, v := range s.fields {
		fields[k] = v
	}
	metrics := s.metrics
	s.mu.Unlock()

	s.provider.sendMetrics(metrics, fields)
	s.provider.write(s, fields)
}

func (p *provider) write(s *span, fields map[string]interface{}) {
	if p.cfg.Output == nil {
		return
	}
	line := p.format(s, fields)

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = p.cfg.Output.Write(line)
}

func (p *provider) format(s *span, fields map[string]interface{}) []byte {
	buf := []byte(fmt.Sprintf("%s %s %.3fms %s",
		s.started.Format("15:04:05"),
		p.applyColour(shortID(s.trace.id)),
		fields["duration_ms"],
		p.applyColour(s.name),
	))

	for _, k := range sortedKeys(fields) {
		if k == "duration_ms" {
			continue
		}
		label := k // we have to copy the key, so we can use the original to lookup the data
		if k == "error" && p.cfg.Colour {
			label = colourise.ErrorHighlight(k)
		}
		buf = append(buf, []byte(fmt.Sprintf(" %s=%v", label, fields[k]))...)
	}
	buf = append(buf, '\n')
	return buf
}

func (p *provider) applyColour(value string) string {
	if !p.cfg.Colour {
		return value
	}
	return colourise.ApplyColour(value)
}

func (p *provider) sendMetrics(metrics []o11y.Metric, fields map[string]interface{}) {
	for _, m := range metrics {
		tags := metricTags(m, fields)
		switch m.Type {
		case o11y.MetricTimer:
			if val, ok := toFloat(fields[m.Field]); ok {
				_ = p.cfg.Metrics.TimeInMilliseconds(m.Name, val, tags, 1)
			}
		case o11y.MetricGauge:
			if val, ok := toFloat(fields[m.Field]); ok {
				_ = p.cfg.Metrics.Gauge(m.Name, val, tags, 1)
			}
		case o11y.MetricCount:
			val := int64(1)
			if raw, ok := toFloat(fields[m.Field]); ok {
				val = int64(raw)
			}
			_ = p.cfg.Metrics.Count(m.Name, val, tags, 1)
		}
	}
}

func metricTags(m o11y.Metric, fields map[string]interface{}) []string {
	var tags []string
	if m.FixedTag != nil {
		tags = append(tags, fmt.Sprintf("%s:%v", m.FixedTag.Name, m.FixedTag.Value))
	}
	for _, f := range m.TagFields {
		if v, ok := fields[f]; ok {
			tags = append(tags, fmt.Sprintf("%s:%v", f, v))
		}
	}
	return tags
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case time.Duration:
		return float64(v.Nanoseconds()) / 1e6, true
	}
	return 0, false
}

func shortID(id string) string {
	if len(id) <= 5 {
		return id
	}
	return id[len(id)-5:]
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
