package db

import (
	"context"
	"fmt"

	"github.com/hl8/datalayer/o11y"
)

// Span starts a span for one named query against one entity, with the fields
// and the timing metric every query span should carry. Field naming follows
// the otel database semantic conventions.
func Span(ctx context.Context, entity, queryName string) (context.Context, o11y.Span) {
	ctx, span := o11y.StartSpan(ctx, fmt.Sprintf("db: %s.%s", entity, queryName))
	span.RecordMetric(o11y.Timing("db.query", "db.entity", "db.query_name", "result"))
	span.AddRawField("db.system", "postgresql")
	span.AddRawField("db.entity", entity)
	span.AddRawField("db.query_name", queryName)
	return ctx, span
}
