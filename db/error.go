package db

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hl8/datalayer/o11y"
)

var (
	// ErrNotInitialized is returned when a connection is requested before startup completed.
	ErrNotInitialized = errors.New("connection not initialized")
	// ErrConnection wraps failures to establish a connection.
	ErrConnection = errors.New("connection failed")

	ErrNop         = o11y.NewWarning("no update or results")
	ErrConstrained = errors.New("violates constraints")
	ErrException   = errors.New("exception")
	ErrCanceled    = o11y.NewWarning("statement canceled")
	ErrBadConn     = o11y.NewWarning("bad connection")
)

// QueryError carries the context of a failed query. The underlying store
// error is preserved as the wrapped cause.
type QueryError struct {
	Query    string
	Params   []interface{}
	Duration time.Duration

	cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed after %s: %s: %v", e.Duration, e.Query, e.cause)
}

func (e *QueryError) Unwrap() error {
	return e.cause
}

// TxError carries the context of a failed transaction. The error from the
// transaction body (or the commit) is preserved as the wrapped cause.
type TxError struct {
	TxID     string
	Duration time.Duration

	cause error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s failed after %s: %v", e.TxID, e.Duration, e.cause)
}

func (e *TxError) Unwrap() error {
	return e.cause
}

const (
	pgForeignKeyConstraintErrorCode = "23503"
	pgUniqueViolationErrorCode      = "23505"
	pgExceptionRaised               = "P0001"
	pgStatementCanceled             = "57014"
)

func mapExecErrors(err error, res sql.Result) error {
	found, err := mapError(err)
	if found {
		return err
	}
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNop
	}
	return nil
}

// mapError maps a few pq errors to errors defined in this package, some wrapping the original
// error. If a mapping was made the returned bool will be true, if not the original error is returned and
// the bool will be false.
func mapError(err error) (bool, error) {
	if ok, e := mapBadCon(err); ok {
		return true, e
	}
	e := &pq.Error{}
	if errors.As(err, &e) {
		switch e.Code {
		case pgForeignKeyConstraintErrorCode:
			return true, fmt.Errorf("%w: %s - %s", ErrConstrained, e.Message, e.Detail)
		case pgExceptionRaised:
			return true, fmt.Errorf("%w: %s - %s", ErrException, e.Message, e.Detail)
		case pgStatementCanceled:
			return true, fmt.Errorf("%w: %s - %s", ErrCanceled, e.Message, e.Detail)
		case pgUniqueViolationErrorCode:
			return true, fmt.Errorf("%w: %s - %s", ErrNop, e.Message, e.Detail)
		}
	}
	return false, err
}

func mapBadCon(err error) (bool, error) {
	if errors.Is(err, driver.ErrBadConn) {
		return true, ErrBadConn
	}
	return false, err
}

// queryError wraps a genuine failure with its query context. Warnings and
// mapped sentinel conditions pass through untouched so that callers can
// keep testing for them with errors.Is.
func queryError(err error, query string, params []interface{}, d time.Duration) error {
	if err == nil || o11y.IsWarning(err) {
		return err
	}
	return &QueryError{
		Query:    query,
		Params:   params,
		Duration: d,
		cause:    err,
	}
}
