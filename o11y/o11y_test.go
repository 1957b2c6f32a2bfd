package o11y

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

type recordingSpan struct {
	Span
	fields map[string]interface{}
}

func (s *recordingSpan) AddRawField(key string, val interface{}) {
	s.fields[key] = val
}

func (s *recordingSpan) field(key string) string {
	v, ok := s.fields[key]
	if !ok {
		return ""
	}
	return v.(string)
}

func TestFromContext(t *testing.T) {
	t.Run("bare context gets the noop provider", func(t *testing.T) {
		p := FromContext(context.Background())
		assert.Check(t, cmp.Equal(p, defaultProvider))
	})

	t.Run("returns the provider in the context", func(t *testing.T) {
		want := &noopProvider{}
		ctx := WithProvider(context.Background(), want)
		assert.Check(t, cmp.Equal(FromContext(ctx), want))
	})
}

func TestNoopProvider_SafeWithoutSetup(t *testing.T) {
	// none of these should panic on an undecorated context
	ctx := context.Background()

	Log(ctx, "an event", Field("name", "value"))
	AddField(ctx, "key", 1)
	AddFieldToTrace(ctx, "key", 1)

	nCtx, span := StartSpan(ctx, "work")
	assert.Check(t, span != nil)
	assert.Check(t, cmp.Equal(ctx, nCtx), "noop provider must not derive a context")
	span.End()
}

func TestHandlePanic(t *testing.T) {
	ctx := context.Background()

	var err error
	func() {
		defer func() {
			err = HandlePanic(ctx, FromContext(ctx).GetSpan(ctx), recover())
		}()
		panic("oh no")
	}()

	assert.Check(t, cmp.ErrorContains(err, "oh no"))
}

func TestAddResultToSpan(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		result  string
		error   string
		warning string
	}{
		{name: "success", result: "success"},
		{name: "real error", err: errors.New("my error"), result: "error", error: "my error"},
		{name: "warning", err: NewWarning("handled"), result: "success", warning: "handled"},
		{
			name:    "wrapped warning",
			err:     fmt.Errorf("wrapped: %w", NewWarning("handled")),
			result:  "success",
			warning: "wrapped: handled",
		},
		{name: "canceled", err: context.Canceled, result: "canceled", warning: "context canceled"},
		{
			name:    "wrapped canceled",
			err:     fmt.Errorf("wrapped: %w", context.Canceled),
			result:  "canceled",
			warning: "wrapped: context canceled",
		},
		{
			name:    "deadline exceeded",
			err:     context.DeadlineExceeded,
			result:  "canceled",
			warning: "context deadline exceeded",
		},
		{
			name:    "wrapped deadline exceeded",
			err:     fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
			result:  "canceled",
			warning: "wrapped: context deadline exceeded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span := &recordingSpan{fields: map[string]interface{}{}}
			AddResultToSpan(span, tt.err)

			assert.Check(t, cmp.Equal(span.field("result"), tt.result))
			assert.Check(t, cmp.Equal(span.field("error"), tt.error))
			assert.Check(t, cmp.Equal(span.field("warning"), tt.warning))
		})
	}
}
