package migrations

import "fmt"

// Error carries the context of a failed migration run.
type Error struct {
	// TenantID is empty for the primary database.
	TenantID string
	// Pending lists the migrations that were still outstanding when an
	// apply run failed.
	Pending []string
	// Version is the target of a failed rollback.
	Version int64

	cause error
}

func (e *Error) Error() string {
	target := "primary"
	if e.TenantID != "" {
		target = fmt.Sprintf("tenant %q", e.TenantID)
	}
	if len(e.Pending) > 0 {
		return fmt.Sprintf("migration of %s failed with %d pending: %s", target, len(e.Pending), e.cause)
	}
	if e.Version > 0 {
		return fmt.Sprintf("rollback of %s to version %d failed: %s", target, e.Version, e.cause)
	}
	return fmt.Sprintf("migration of %s failed: %s", target, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}
