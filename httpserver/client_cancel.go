package httpserver

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
)

// HandleClientCancel is gin middleware that reports status 499 when the
// client went away before the handler finished.
func HandleClientCancel(c *gin.Context) {
	c.Next()
	if errors.Is(c.Request.Context().Err(), context.Canceled) {
		c.Status(499)
	}
}
