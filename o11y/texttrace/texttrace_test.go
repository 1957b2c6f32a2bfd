package texttrace

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/hl8/datalayer/internal/syncbuffer"
	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/testing/fakemetrics"
)

func TestProvider_SpanOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	p := New(Config{Output: buf})
	ctx := o11y.WithProvider(context.Background(), p)

	ctx, span := o11y.StartSpan(ctx, "outer span")
	o11y.AddField(ctx, "tenant", "t-1")
	span.End()

	out := buf.String()
	assert.Check(t, cmp.Contains(out, "outer span"))
	assert.Check(t, cmp.Contains(out, "app.tenant=t-1"))
}

func TestProvider_NestedSpansShareTrace(t *testing.T) {
	buf := &bytes.Buffer{}
	p := New(Config{Output: buf})
	ctx := o11y.WithProvider(context.Background(), p)

	ctx, outer := o11y.StartSpan(ctx, "outer")
	_, inner := o11y.StartSpan(ctx, "inner")
	inner.End()
	outer.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Assert(t, cmp.Len(lines, 2))
	// both lines carry the same short trace id
	traceID := strings.Fields(lines[0])[1]
	assert.Check(t, cmp.Contains(lines[1], traceID))
}

func TestProvider_TraceFieldsPropagate(t *testing.T) {
	buf := &bytes.Buffer{}
	p := New(Config{Output: buf})
	ctx := o11y.WithProvider(context.Background(), p)

	ctx, outer := o11y.StartSpan(ctx, "outer")
	o11y.AddFieldToTrace(ctx, "tenant_id", "t-9")
	_, inner := o11y.StartSpan(ctx, "inner")
	inner.End()
	outer.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for _, line := range lines {
		assert.Check(t, cmp.Contains(line, "tenant_id=t-9"))
	}
}

func TestProvider_ErrorResult(t *testing.T) {
	buf := &bytes.Buffer{}
	p := New(Config{Output: buf})
	ctx := o11y.WithProvider(context.Background(), p)

	err := errors.New("query exploded")
	_, span := o11y.StartSpan(ctx, "failing")
	o11y.AddResultToSpan(span, err)
	span.End()

	assert.Check(t, cmp.Contains(buf.String(), "result=error"))
	assert.Check(t, cmp.Contains(buf.String(), "query exploded"))
}

func TestProvider_LogIsZeroDurationSpan(t *testing.T) {
	buf := &bytes.Buffer{}
	p := New(Config{Output: buf})
	ctx := o11y.WithProvider(context.Background(), p)

	o11y.Log(ctx, "an event", o11y.Field("key", "value"))

	assert.Check(t, cmp.Contains(buf.String(), "an event"))
	assert.Check(t, cmp.Contains(buf.String(), "app.key=value"))
}

func TestProvider_SendsSpanMetrics(t *testing.T) {
	fake := &fakemetrics.Provider{}
	out := &syncbuffer.SyncBuffer{}
	p := New(Config{Output: out, Metrics: fake})
	ctx := o11y.WithProvider(context.Background(), p)

	_, span := o11y.StartSpan(ctx, "query")
	span.AddRawField("db.entity", "notes")
	span.AddField("rows", 3)
	span.RecordMetric(o11y.Timing("query_time", "db.entity"))
	span.RecordMetric(o11y.Gauge("rows_read", "app.rows"))
	span.End()

	assert.Check(t, cmp.Contains(out.String(), "db.entity=notes"))
	assert.Check(t, cmp.DeepEqual([]fakemetrics.MetricCall{
		{
			Metric: "timer",
			Name:   "query_time",
			Tags:   []string{"db.entity:notes"},
			Rate:   1,
		},
		{
			Metric: "gauge",
			Name:   "rows_read",
			Value:  3,
			Rate:   1,
		},
	}, fake.Calls(), fakemetrics.CMPMetrics))
}
