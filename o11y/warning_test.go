package o11y

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestIsWarning(t *testing.T) {
	warn := NewWarning("no rows updated")

	assert.Check(t, IsWarning(warn))
	assert.Check(t, cmp.Equal(warn.Error(), "no rows updated"))

	t.Run("wrapped warning is still a warning", func(t *testing.T) {
		wrapped := fmt.Errorf("saving note: %w", warn)
		assert.Check(t, IsWarning(wrapped))
	})

	t.Run("ordinary errors are not warnings", func(t *testing.T) {
		assert.Check(t, !IsWarning(errors.New("no rows updated")))
		assert.Check(t, !IsWarning(nil))
	})

	t.Run("two warnings are distinct", func(t *testing.T) {
		other := NewWarning("no rows updated")
		assert.Check(t, !errors.Is(warn, other))
	})
}

func TestDontErrorTrace(t *testing.T) {
	assert.Check(t, DontErrorTrace(NewWarning("nothing to do")))
	assert.Check(t, DontErrorTrace(context.Canceled))
	assert.Check(t, DontErrorTrace(fmt.Errorf("waiting: %w", context.DeadlineExceeded)))
	assert.Check(t, !DontErrorTrace(errors.New("boom")))
}
