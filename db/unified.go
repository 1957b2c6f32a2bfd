package db

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"
)

// unifiedQuerier wraps the Querier subset of methods of the standard sqlx types with
// helpers to return our standard errors, time every statement and feed the
// query stats.
type unifiedQuerier struct {
	q        Querier
	stats    *Stats
	tenantID string
}

func (u unifiedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := u.q.ExecContext(ctx, query, args...)
	err = mapExecErrors(err, result)
	d := time.Since(start)
	u.record(query, args, d, err)
	return result, queryError(err, query, args, d)
}

func (u unifiedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := u.q.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNop
	} else {
		_, err = mapError(err)
	}
	d := time.Since(start)
	u.record(query, args, d, err)
	return queryError(err, query, args, d)
}

func (u unifiedQuerier) NamedGetContext(ctx context.Context, dest interface{}, query string, arg interface{}) error {
	start := time.Now()
	err := u.q.NamedGetContext(ctx, dest, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNop
	} else {
		_, err = mapError(err)
	}
	d := time.Since(start)
	u.record(query, []interface{}{arg}, d, err)
	return queryError(err, query, nil, d)
}

func (u unifiedQuerier) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := u.q.NamedExecContext(ctx, query, arg)
	err = mapExecErrors(err, result)
	d := time.Since(start)
	u.record(query, []interface{}{arg}, d, err)
	return result, queryError(err, query, nil, d)
}

func (u unifiedQuerier) SelectContext(ctx context.Context,
	dest interface{}, query string, args ...interface{}) error {

	start := time.Now()
	err := u.q.SelectContext(ctx, dest, query, args...)
	if err != nil {
		_, err = mapError(err)
		d := time.Since(start)
		u.record(query, args, d, err)
		return queryError(err, query, args, d) // This error never represents the no rows condition
	}
	d := time.Since(start)
	// SelectContext has asserted dest is a pointer to a slice
	value := reflect.ValueOf(dest)
	direct := reflect.Indirect(value)
	if direct.Len() == 0 {
		err = ErrNop
	}
	u.record(query, args, d, err)
	return err
}

func (u unifiedQuerier) record(query string, params []interface{}, d time.Duration, err error) {
	if u.stats == nil {
		return
	}
	u.stats.record(u.tenantID, query, params, d, err)
}
