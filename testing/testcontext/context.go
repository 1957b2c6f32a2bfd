// Package testcontext hands tests a context carrying a real o11y provider,
// so code under test logs and records metrics the same way it does in a
// running service.
package testcontext

import (
	"context"

	o11yconf "github.com/hl8/datalayer/config/o11y"
)

// One provider per test binary. Setting it up per test would interleave
// provider lifecycles across parallel tests.
var ctx = newContext()

// Background returns the shared test context.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	cx, _, err := o11yconf.Setup(context.Background(), o11yconf.Config{
		Service: "test-service",
		Mode:    "test",
	})
	if err != nil {
		panic(err)
	}
	return cx
}
