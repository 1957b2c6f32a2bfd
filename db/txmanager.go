package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hl8/datalayer/o11y"
)

// TxOptions configure one transactional invocation. The zero value uses the
// store defaults with no timeout.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
	// Timeout bounds the whole transaction, body included. Zero means no timeout.
	Timeout time.Duration
}

type TxManager struct {
	DB *sqlx.DB

	stats    *Stats
	tenantID string

	// This is only for testing purposes
	TestQuerier func(Querier) Querier
}

type Option func(*TxManager)

// WithStats has the manager time every statement and feed the given recorder.
func WithStats(s *Stats) Option {
	return func(t *TxManager) {
		t.stats = s
	}
}

// WithTenant annotates recorded queries with a tenant id.
func WithTenant(tenantID string) Option {
	return func(t *TxManager) {
		t.tenantID = tenantID
	}
}

func NewTxManager(db *sqlx.DB, opts ...Option) *TxManager {
	t := &TxManager{DB: db}
	for _, o := range opts {
		o(t)
	}
	return t
}

// NoTx returns a querier backed directly by the pool, ignoring any ambient
// transaction.
func (s *TxManager) NoTx() Querier {
	return unifiedQuerier{q: extDB{s.DB}, stats: s.stats, tenantID: s.tenantID}
}

// Querier returns the ambient transaction handle when the context carries
// one, so that nested calls join the enclosing transaction, and falls back
// to a pool backed querier.
func (s *TxManager) Querier(ctx context.Context) Querier {
	if q, ok := TxFromContext(ctx); ok {
		return q
	}
	return s.NoTx()
}

// WithTx runs f inside a transaction.
//
// If the context already carries an active transaction handle, f runs
// directly inside that enclosing transaction: only the outermost call ever
// begins and commits, so a whole call chain observes exactly one
// begin/commit pair. Otherwise a new transaction is begun and its handle
// installed into the context passed to f, where nested data-access calls
// will find it.
//
// On success the transaction commits. On any error or panic from f it rolls
// back, and errors are rethrown wrapped in *TxError with the original error
// as cause. The ambient handle never outlives this call.
func (s *TxManager) WithTx(ctx context.Context, f func(ctx context.Context, tx Querier) error) error {
	return s.WithTxOptions(ctx, TxOptions{}, f)
}

func (s *TxManager) WithTxOptions(ctx context.Context, opts TxOptions,
	f func(ctx context.Context, tx Querier) error) (err error) {

	if q, ok := TxFromContext(ctx); ok {
		// Nested call: flatten into the enclosing transaction.
		return f(ctx, q)
	}

	ctx, span := o11y.StartSpan(ctx, "tx-manager: with-tx")
	defer o11y.End(span, &err)

	txID := uuid.New().String()
	span.AddRawField("tx.id", txID)
	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tx, err := s.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly})
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}

	defer func() {
		p := recover()
		switch {
		case p != nil:
			// a panic occurred, rollback and re-panic
			_ = tx.Rollback()
			panic(p)
		case err != nil:
			// never commit on an error
			// but don't rollback if the transaction context has been canceled
			// (the library code already handles rollback in the context canceled cases)
			if !errors.Is(ctx.Err(), context.Canceled) {
				if rErr := tx.Rollback(); rErr != nil {
					o11y.AddField(ctx, "rollback_error", rErr)
				}
			}
			err = &TxError{TxID: txID, Duration: time.Since(start), cause: err}
		case errors.Is(ctx.Err(), context.Canceled):
			// f may have suppressed an error but the transaction has still been cancelled
			// even if f appeared to have not seen any error we report the context cancellation
			// so the client will at least be able to be aware that the transaction was rolled back
			err = ctx.Err()
		default:
			// all good, commit
			if cErr := tx.Commit(); cErr != nil {
				err = &TxError{TxID: txID, Duration: time.Since(start), cause: cErr}
			}
		}
	}()

	var q Querier = unifiedQuerier{q: extTx{tx}, stats: s.stats, tenantID: s.tenantID}
	if s.TestQuerier != nil {
		q = s.TestQuerier(q)
	}
	err = f(ContextWithTx(ctx, q), q)

	// Note that the above defer can reassign err
	return err
}

// Tx is a manually managed transaction for multi-step orchestration that
// cannot fit inside a single WithTx callback. Every Begin must be matched by
// exactly one Commit or Rollback.
type Tx struct {
	ID string

	tx      *sqlx.Tx
	querier Querier
	started time.Time
}

// Querier runs statements inside the open transaction.
func (t *Tx) Querier() Querier {
	return t.querier
}

func (s *TxManager) Begin(ctx context.Context, opts TxOptions) (*Tx, error) {
	tx, err := s.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("could not start transaction: %w", err)
	}
	return &Tx{
		ID:      uuid.New().String(),
		tx:      tx,
		querier: unifiedQuerier{q: extTx{tx}, stats: s.stats, tenantID: s.tenantID},
		started: time.Now(),
	}, nil
}

func (s *TxManager) Commit(tx *Tx) error {
	if err := tx.tx.Commit(); err != nil {
		return &TxError{TxID: tx.ID, Duration: time.Since(tx.started), cause: err}
	}
	return nil
}

func (s *TxManager) Rollback(tx *Tx) error {
	if err := tx.tx.Rollback(); err != nil {
		return &TxError{TxID: tx.ID, Duration: time.Since(tx.started), cause: err}
	}
	return nil
}
