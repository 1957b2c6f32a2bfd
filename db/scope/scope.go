/*
Package scope carries request scoped data-access state through contexts.

The active tenant travels with the context from whatever edge established
it (an authenticated request, a queue message, a job) down to the data
layer, so that repositories never take a tenant parameter explicitly.
*/
package scope

import (
	"context"
	"errors"
)

type keyType int

const tenantKey keyType = iota

// ErrNoTenant is the error produced when no tenant has been attached to a
// context with WithTenant.
var ErrNoTenant = errors.New("no tenant in scope")

// WithTenant adds a tenant ID to the given context. Any data access issued
// with the returned context will be scoped to tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantID returns the tenant ID carried by ctx.
func TenantID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(tenantKey).(string)
	if !ok {
		return "", ErrNoTenant
	}
	return id, nil
}
