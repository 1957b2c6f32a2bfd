package tenant

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidID means a tenant id was blank or malformed. It is raised
	// before any connection or map access happens.
	ErrInvalidID = errors.New("invalid tenant id")

	// ErrNotFound means no connection or configuration exists for the tenant.
	ErrNotFound = errors.New("tenant not found")

	// ErrConnection means a tenant connection could not be established.
	// It wraps the root cause.
	ErrConnection = errors.New("tenant connection failed")

	// ErrAdmin means administrative DDL against a tenant database failed.
	ErrAdmin = errors.New("tenant database administration failed")
)

// ValidateID fails fast on ids that are empty or whitespace only, so a bad
// id can never reach the connection map or the database.
func ValidateID(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidID, tenantID)
	}
	return nil
}
