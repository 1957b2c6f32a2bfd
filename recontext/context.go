// Package recontext detaches a context from its parent's lifetime while
// keeping the parent's values.
//
// It exists for work that must outlive a cancelled request or a terminated
// run context, such as closing connections during shutdown. The detached
// context still carries the parent's values (the o11y provider among them)
// but ignores its deadline and cancellation. To avoid contexts that can never
// end, callers must supply a new deadline or timeout.
package recontext

import (
	"context"
	"time"
)

// detached wraps a parent context and suppresses its lifetime. The struct is
// never handed out directly, it is always wrapped in a standard context that
// imposes the replacement deadline.
type detached struct{ context.Context }

func (detached) Deadline() (deadline time.Time, ok bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}                   { return nil }
func (detached) Err() error                              { return nil }

// WithNewDeadline returns a context with the parent's values, the parent's
// cancellation and deadline ignored, and the given deadline applied instead.
func WithNewDeadline(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	return context.WithDeadline(detached{parent}, deadline)
}

// WithNewTimeout returns a context with the parent's values, the parent's
// cancellation and deadline ignored, and the given timeout applied instead.
func WithNewTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(detached{parent}, timeout)
}
