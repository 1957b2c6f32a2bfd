// Package poll waits for asynchronous conditions in tests.
package poll

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

type check func() (done bool, err error)

// AssertIt polls check until it reports done, asserting that it finished
// without error within the given duration.
func AssertIt(ctx context.Context, t *testing.T, duration time.Duration, check check) {
	t.Helper()
	assert.NilError(t, ForIt(ctx, duration, check))
}

// ForIt polls check every 50ms until it reports done, returning the check's
// error. If duration passes first the context error is returned.
func ForIt(ctx context.Context, duration time.Duration, check check) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		done, err := check()
		if done {
			return err
		}
		time.Sleep(time.Millisecond * 50)
	}
}
