package db

import "context"

type txKey struct{}

// ContextWithTx installs an open transaction handle into the context, making
// it the ambient handle for every data-access call made with that context.
// The handle only lives in the derived context, so it is naturally discarded
// on every exit path of the scope that installed it.
func ContextWithTx(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, txKey{}, q)
}

// TxFromContext returns the ambient transaction handle, if one is active.
func TxFromContext(ctx context.Context) (Querier, bool) {
	q, ok := ctx.Value(txKey{}).(Querier)
	return q, ok
}
