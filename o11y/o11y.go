// Package o11y provides observability in the form of tracing and metrics.
//
// It is the logging surface consumed by every other package in this module:
// operations start a span, annotate it with fields, and close it with End,
// which records the operation result and emits any metrics hooked to the span.
package o11y

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rollbar/rollbar-go"
)

type Provider interface {
	// AddGlobalField attaches a field to every span the provider emits,
	// for things true of the whole process like service, version or mode.
	AddGlobalField(key string, val interface{})

	// StartSpan opens a span for one unit of work. The name should say what
	// the work is in a few words, including whatever tells similar spans
	// apart, such as the query name or the tenant database involved.
	//
	// The caller must End the span, normally with a defer:
	//
	//   ctx, span := o11y.StartSpan(ctx, "db: exec query")
	//   defer span.End()
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// GetSpan returns the span active in ctx, or nil if there is none.
	GetSpan(ctx context.Context) Span

	// AddField annotates the active span. Application field names get an
	// "app." prefix.
	AddField(ctx context.Context, key string, val interface{})

	// AddFieldToTrace annotates the root span, and through it every current
	// and future span of the trace. Used for trace-wide identifiers such as
	// the tenant id or request id.
	AddFieldToTrace(ctx context.Context, key string, val interface{})

	// Log emits a zero duration span, the tracing equivalent of a log line.
	Log(ctx context.Context, name string, fields ...Pair)

	Close(ctx context.Context)

	// MetricsProvider exposes the raw metrics client for callers that need
	// to emit metrics without going through a span.
	MetricsProvider() MetricsProvider
}

type Span interface {
	// AddField annotates the span with application data. The field name gets
	// an "app." prefix.
	AddField(key string, val interface{})

	// AddRawField annotates the span without the prefix. It is meant for
	// plumbing code setting well known fields such as result, db.system or
	// db.query_name. Application code should prefer AddField.
	AddRawField(key string, val interface{})

	// RecordMetric asks the provider to emit the metric when the span ends,
	// with its value and tags taken from the span's fields at that point.
	RecordMetric(metric Metric)

	// End finalises the span's duration and hands it to the provider. The
	// span must not be used afterwards.
	End()
}

type MetricType string

const (
	MetricTimer = "timer"
	MetricGauge = "gauge"
	MetricCount = "count"
)

type Metric struct {
	Type MetricType
	// Name the metric is emitted under.
	Name string
	// Field names the span field supplying the metric's value.
	Field string
	// FixedTag is an optional tag fixed when the metric is declared.
	FixedTag *Tag
	// TagFields name span fields whose values become metric tags.
	TagFields []string
}

type Tag struct {
	Name  string
	Value interface{}
}

func NewTag(name string, value interface{}) *Tag {
	return &Tag{Name: name, Value: value}
}

func Timing(name string, fields ...string) Metric {
	return Metric{Type: MetricTimer, Name: name, Field: "duration_ms", TagFields: fields}
}

func Duration(name string, valueField string, fields ...string) Metric {
	return Metric{Type: MetricTimer, Name: name, Field: valueField, TagFields: fields}
}

func Incr(name string, fields ...string) Metric {
	return Metric{Type: MetricCount, Name: name, TagFields: fields}
}

func Gauge(name string, valueField string, tagFields ...string) Metric {
	return Metric{
		Type:      MetricGauge,
		Name:      name,
		Field:     valueField,
		TagFields: tagFields,
	}
}

func Count(name string, valueField string, fixedTag *Tag, tagFields ...string) Metric {
	return Metric{
		Type:      MetricCount,
		Name:      name,
		Field:     valueField,
		FixedTag:  fixedTag,
		TagFields: tagFields,
	}
}

type MetricsProvider interface {
	// Histogram submits a value the agent aggregates over its flush window.
	Histogram(name string, value float64, tags []string, rate float64) error
	// TimeInMilliseconds submits a timing, such as a query duration.
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
	// Gauge submits the instantaneous value of something.
	Gauge(name string, value float64, tags []string, rate float64) error
	// Count submits an occurrence count.
	Count(name string, value int64, tags []string, rate float64) error
}

type ClosableMetricsProvider interface {
	MetricsProvider
	io.Closer
}

type providerKey struct{}

// WithProvider returns a derived context carrying the Provider, which
// FromContext retrieves.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the provider carried by ctx. Without one a noop
// provider is returned, so instrumented code works in undecorated contexts.
func FromContext(ctx context.Context) Provider {
	provider, ok := ctx.Value(providerKey{}).(Provider)
	if !ok {
		return defaultProvider
	}
	return provider
}

// Log sends a zero duration trace event.
func Log(ctx context.Context, name string, fields ...Pair) {
	FromContext(ctx).Log(ctx, name, fields...)
}

// LogError sends a zero duration trace event with an error.
func LogError(ctx context.Context, name string, err error, fields ...Pair) {
	_, span := StartSpan(ctx, name)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	AddResultToSpan(span, err)
	span.End()
}

// StartSpan opens a span on the provider carried by ctx.
func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return FromContext(ctx).StartSpan(ctx, name)
}

// AddField annotates the active span in ctx.
func AddField(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddField(ctx, key, val)
}

// AddFieldToTrace annotates the root span in ctx, and with it all current
// and future spans of the trace.
func AddFieldToTrace(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddFieldToTrace(ctx, key, val)
}

// End closes the span after recording the operation's outcome from err.
//
// It takes a pointer to the error so it can be deferred before the error
// exists, against the named return value:
//
//	func (s *Store) Add(ctx context.Context) (err error) {
//		ctx, span := o11y.StartSpan(ctx, "store: add")
//		defer o11y.End(span, &err)
//
// The defer captures the address of err at declaration, and End reads
// whatever the function last assigned to it.
func End(span Span, err *error) {
	var actualErr error
	if err != nil {
		actualErr = *err
	}
	AddResultToSpan(span, actualErr)
	span.End()
}

// AddResultToSpan sets the span's result and error fields from err, which
// may be nil.
func AddResultToSpan(span Span, err error) {
	switch {
	case IsWarning(err):
		span.AddRawField("warning", err.Error())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Cancellation and deadline expiry are routine during shutdown and
		// timeouts. Recording them as errors would bury the real ones.
		span.AddRawField("result", "canceled")
		span.AddRawField("warning", err.Error())
		return
	case err != nil:
		span.AddRawField("result", "error")
		span.AddRawField("error", err.Error())
		return
	}
	span.AddRawField("result", "success")
}

// Pair is one piece of span metadata.
type Pair struct {
	Key   string
	Value interface{}
}

// Field builds a metadata Pair for Log and LogError.
func Field(key string, value interface{}) Pair {
	return Pair{Key: key, Value: value}
}

var defaultProvider = &noopProvider{}

type noopProvider struct{}

func (c *noopProvider) AddGlobalField(string, interface{}) {}

func (c *noopProvider) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, &noopSpan{}
}

func (c *noopProvider) GetSpan(context.Context) Span {
	return &noopSpan{}
}

func (c *noopProvider) AddField(context.Context, string, interface{}) {}

func (c *noopProvider) AddFieldToTrace(context.Context, string, interface{}) {}

func (c *noopProvider) Close(context.Context) {}

func (c *noopProvider) Log(context.Context, string, ...Pair) {}

func (c *noopProvider) MetricsProvider() MetricsProvider {
	return &statsd.NoOpClient{}
}

type noopSpan struct{}

func (s *noopSpan) AddField(key string, val interface{})    {}
func (s *noopSpan) AddRawField(key string, val interface{}) {}
func (s *noopSpan) RecordMetric(metric Metric)              {}
func (s *noopSpan) End()                                    {}

// HandlePanic recovers observability state from a panicking unit of work.
// It reports the panic to rollbar when the provider carries a rollbar client.
func HandlePanic(ctx context.Context, span Span, panic interface{}) (err error) {
	err = fmt.Errorf("panic handled: %+v", panic)
	span.AddRawField("panic", panic)
	span.AddRawField("has_panicked", "true")
	span.AddRawField("stack", string(debug.Stack()))
	span.RecordMetric(Incr("panics", "name"))

	provider := FromContext(ctx)
	rollable, ok := provider.(rollbarAble)
	if !ok {
		return err
	}
	rollable.RollBarClient().LogPanic(panic, true)
	return err
}

type rollbarAble interface {
	RollBarClient() *rollbar.Client
}
