package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// sqlx has no NamedGetContext on DB or Tx. These wrappers add it so the
// Querier interface can offer the named form for single row reads too.

type extDB struct {
	*sqlx.DB
}

func (e extDB) NamedGetContext(ctx context.Context, dest interface{}, query string, arg interface{}) error {
	bound, args, err := e.DB.BindNamed(query, arg)
	if err != nil {
		return fmt.Errorf("could not bind named parameters: %w", err)
	}
	return e.GetContext(ctx, dest, bound, args...)
}

type extTx struct {
	*sqlx.Tx
}

func (e extTx) NamedGetContext(ctx context.Context, dest interface{}, query string, arg interface{}) error {
	bound, args, err := e.Tx.BindNamed(query, arg)
	if err != nil {
		return fmt.Errorf("could not bind named parameters: %w", err)
	}
	return e.GetContext(ctx, dest, bound, args...)
}
