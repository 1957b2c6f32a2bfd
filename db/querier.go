package db

import (
	"context"
	"database/sql"
)

// Querier is the query surface the data layer hands out. It is backed either
// by the tenant's connection pool or, inside a transaction, by that
// transaction, so code written against it behaves the same in both cases.
type Querier interface {
	// ExecContext runs a query with positional placeholders when the caller
	// does not need the rows it produces.
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// GetContext binds args to positional placeholders and scans the single
	// resulting row into dest, a pointer to a struct. With no rows the error
	// is sql.ErrNoRows, which the unified querier maps to ErrNop.
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// NamedGetContext is GetContext for queries with named parameters bound
	// from the fields of arg.
	NamedGetContext(ctx context.Context, dest interface{}, query string, arg interface{}) error

	// NamedExecContext is ExecContext for queries with named parameters bound
	// from the fields of arg.
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)

	// SelectContext binds args to positional placeholders and scans every
	// resulting row into dest, a pointer to a slice. No rows leaves the slice
	// empty rather than returning sql.ErrNoRows.
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}
