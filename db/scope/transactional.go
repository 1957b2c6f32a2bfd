package scope

import (
	"context"

	"github.com/hl8/datalayer/db"
)

// Transactional runs f inside a transaction on the shared database. Calls
// nest: if the context already carries an open transaction the enclosing one
// is joined, and only the outermost call commits. f reaches the transaction
// through the ambient handle in its context.
func Transactional(ctx context.Context, txm *db.TxManager, f func(ctx context.Context) error) error {
	return txm.WithTx(ctx, func(ctx context.Context, _ db.Querier) error {
		return f(ctx)
	})
}

// TransactionalOptions is Transactional with explicit transaction options.
func TransactionalOptions(ctx context.Context, txm *db.TxManager, opts db.TxOptions,
	f func(ctx context.Context) error) error {

	return txm.WithTxOptions(ctx, opts, func(ctx context.Context, _ db.Querier) error {
		return f(ctx)
	})
}
