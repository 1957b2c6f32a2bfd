package healthcheck

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hl8/datalayer/o11y"
)

// middleware traces every admin request with the provider carried by ctx.
func middleware(provider o11y.Provider, serverName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		before := time.Now()

		ctx := o11y.WithProvider(c.Request.Context(), provider)
		ctx, span := o11y.StartSpan(ctx, c.Request.Method+" "+c.FullPath())
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		span.RecordMetric(o11y.Timing("handler", "http.server_name", "http.method", "http.route", "http.status_code"))
		span.AddRawField("http.server_name", serverName)
		span.AddRawField("http.method", c.Request.Method)
		span.AddRawField("http.route", c.FullPath())

		c.Next()

		span.AddRawField("http.status_code", c.Writer.Status())
		if len(c.Errors) > 0 {
			span.AddRawField("error", c.Errors.String())
		}
		span.AddRawField("duration_ms", float64(time.Since(before))/float64(time.Millisecond))
	}
}

// recovery turns handler panics into 500s instead of taking the server down.
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				ctx := c.Request.Context()
				err := o11y.HandlePanic(ctx, o11y.FromContext(ctx).GetSpan(ctx), r)
				_ = c.AbortWithError(500, fmt.Errorf("panic: %w", err))
			}
		}()
		c.Next()
	}
}
