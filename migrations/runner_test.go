package migrations

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"gotest.tools/v3/assert"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/tenant"
)

func TestRunner_List(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "00001_init.sql")
	writeMigration(t, dir, "00002_add_things.sql")

	r := NewRunner(nil, Config{Dir: dir})

	list, err := r.List()
	assert.NilError(t, err)
	assert.Equal(t, len(list), 2)
	assert.Equal(t, list[0].Version, int64(1))
	assert.Equal(t, list[1].Version, int64(2))
}

func TestRunner_Create(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(nil, Config{Dir: dir})

	assert.NilError(t, r.Create("add_widgets"))

	entries, err := os.ReadDir(dir)
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 1)
	assert.Assert(t, filepath.Ext(entries[0].Name()) == ".sql")

	list, err := r.List()
	assert.NilError(t, err)
	assert.Equal(t, len(list), 1)
}

func TestRunner_EmptySetIsNoOp(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(nil, Config{Dir: t.TempDir()})

	applied, err := r.Up(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(applied), 0)

	run, ok := r.LastRun("")
	assert.Assert(t, ok)
	assert.Equal(t, run.State, StateCompleted)

	applied, err = r.UpTenant(ctx, "acme")
	assert.NilError(t, err)
	assert.Equal(t, len(applied), 0)

	status, err := r.Status(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(status), 0)

	reverted, err := r.DownTo(ctx, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(reverted), 0)

	list, err := r.List()
	assert.NilError(t, err)
	assert.Equal(t, len(list), 0)
}

func TestRunner_TenantResolveUsesCallerContext(t *testing.T) {
	type marker struct{}
	ctx := context.WithValue(context.Background(), marker{}, "present")

	h := &recordingHandles{txm: db.NewTxManager(stubSqlxDB())}
	dir := t.TempDir()
	writeMigration(t, dir, "00001_init.sql")
	r := NewRunner(h, Config{Dir: dir})

	// the status result does not matter here, only the context the
	// tenant handle was resolved with
	_, _ = r.StatusTenant(ctx, "acme")

	assert.Assert(t, h.gotCtx != nil)
	assert.Equal(t, h.gotCtx.Value(marker{}), "present")
}

func TestRunner_UpTenant_InvalidID(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(nil, Config{Dir: t.TempDir()})

	_, err := r.UpTenant(ctx, " ")
	assert.ErrorIs(t, err, tenant.ErrInvalidID)

	_, err = r.DownToTenant(ctx, "", 0)
	assert.ErrorIs(t, err, tenant.ErrInvalidID)

	_, err = r.StatusTenant(ctx, "\t")
	assert.ErrorIs(t, err, tenant.ErrInvalidID)
}

func TestRunner_RunLifecycle(t *testing.T) {
	r := NewRunner(nil, Config{Dir: t.TempDir()})

	_, ok := r.LastRun("")
	assert.Assert(t, !ok)

	run := r.startRun("acme")
	got, ok := r.LastRun("acme")
	assert.Assert(t, ok)
	assert.Equal(t, got.State, StateRunning)
	assert.Equal(t, got.TenantID, "acme")

	run.complete([]Applied{{Version: 1, Path: "00001_init.sql"}})
	got, _ = r.LastRun("acme")
	assert.Equal(t, got.State, StateCompleted)
	assert.Equal(t, len(got.Applied), 1)
	assert.Assert(t, !got.FinishedAt.IsZero())
}

func TestRunner_FailedRunRolledBack(t *testing.T) {
	r := NewRunner(nil, Config{Dir: t.TempDir()})

	run := r.startRun("")
	run.fail(errors.New("syntax error"))

	got, _ := r.LastRun("")
	assert.Equal(t, got.State, StateFailed)
	assert.Equal(t, got.Error, "syntax error")

	r.markRolledBack("")
	got, _ = r.LastRun("")
	assert.Equal(t, got.State, StateRolledBack)

	// only failed runs transition to rolled_back
	run = r.startRun("")
	run.complete(nil)
	r.markRolledBack("")
	got, _ = r.LastRun("")
	assert.Equal(t, got.State, StateCompleted)
}

func TestError_Messages(t *testing.T) {
	cause := errors.New("boom")

	err := &Error{cause: cause}
	assert.ErrorContains(t, err, "migration of primary failed")
	assert.Assert(t, errors.Is(err, cause))

	err = &Error{TenantID: "acme", Pending: []string{"00002_add_things.sql"}, cause: cause}
	assert.ErrorContains(t, err, `tenant "acme"`)
	assert.ErrorContains(t, err, "1 pending")

	err = &Error{Version: 1, cause: cause}
	assert.ErrorContains(t, err, "rollback of primary to version 1")
}

func writeMigration(t *testing.T, dir, name string) {
	t.Helper()
	const body = "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	assert.NilError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

// recordingHandles hands out one transaction manager and remembers the
// context the tenant handle was requested with.
type recordingHandles struct {
	txm    *db.TxManager
	gotCtx context.Context
}

func (h *recordingHandles) Primary() (*db.TxManager, error) {
	return h.txm, nil
}

func (h *recordingHandles) TenantDB(ctx context.Context, tenantID string) (*db.TxManager, error) {
	h.gotCtx = ctx
	return h.txm, nil
}

// stubSqlxDB is a handle over a driver that accepts any statement and
// returns no rows.
func stubSqlxDB() *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(stubConnector{}), "stub")
}

type stubConnector struct {
	driver.Connector
}

func (stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn{}, nil
}

type stubConn struct {
	driver.Conn
}

func (stubConn) Prepare(string) (driver.Stmt, error) { return stubStmt{}, nil }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubStmt struct{}

func (stubStmt) Close() error  { return nil }
func (stubStmt) NumInput() int { return 0 }

func (stubStmt) Exec([]driver.Value) (driver.Result, error) {
	return driver.RowsAffected(1), nil
}

func (stubStmt) Query([]driver.Value) (driver.Rows, error) {
	return stubRows{}, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct{}

func (stubRows) Columns() []string         { return nil }
func (stubRows) Close() error              { return nil }
func (stubRows) Next([]driver.Value) error { return io.EOF }
