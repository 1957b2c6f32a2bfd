package dbfixture

import (
	_ "embed"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/testing/testcontext"
)

var (
	//go:embed testdata/schema.sql
	schema string

	//go:embed testdata/appUserSchema.sql
	appUserSchema string

	conn = Connection{
		Host:     "localhost:5432",
		User:     "user",
		Password: "password",
	}
)

func TestSetupDB_FixturesAreIsolated(t *testing.T) {
	ctx := testcontext.Background()
	fix1 := SetupDB(ctx, t, schema, conn)
	fix2 := SetupDB(ctx, t, schema, conn)

	// language=PostgreSQL
	_, err := fix1.TX.NoTx().ExecContext(ctx, `INSERT INTO notes (id, title) values ('n-1', 'first');`)
	assert.Assert(t, err)

	t.Run("data is visible in its own fixture", func(t *testing.T) {
		var ids []string
		// language=PostgreSQL
		err := fix1.TX.NoTx().SelectContext(ctx, &ids, `SELECT id FROM notes;`)
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual([]string{"n-1"}, ids))
	})

	t.Run("the other fixture sees nothing", func(t *testing.T) {
		var ids []string
		// language=PostgreSQL
		err := fix2.TX.NoTx().SelectContext(ctx, &ids, `SELECT id FROM notes;`)
		assert.Check(t, cmp.ErrorIs(err, db.ErrNop))
	})
}

func TestFixture_Reset(t *testing.T) {
	ctx := testcontext.Background()
	fix := SetupDB(ctx, t, schema, conn)

	// language=PostgreSQL
	_, err := fix.TX.NoTx().ExecContext(ctx, `INSERT INTO notes (id, title) values ('n-1', 'first');`)
	assert.Assert(t, err)

	assert.Assert(t, fix.Reset(ctx))

	var ids []string
	// language=PostgreSQL
	err = fix.TX.NoTx().SelectContext(ctx, &ids, `SELECT id FROM notes;`)
	assert.Check(t, cmp.ErrorIs(err, db.ErrNop))
}

func TestSetupDB_AppUserIsLeastPrivilege(t *testing.T) {
	ctx := testcontext.Background()

	fix := SetupDB(ctx, t, appUserSchema, Connection{
		Host:     conn.Host,
		User:     conn.User,
		Password: conn.Password,

		AppUser:     "test_role_1",
		AppPassword: "teehee",
	})
	_ = fix.Reset(ctx)

	t.Run("cannot create databases", func(t *testing.T) {
		_, err := fix.TX.NoTx().ExecContext(ctx, `CREATE DATABASE foo;`)
		assert.ErrorContains(t, err, "permission denied")
	})

	t.Run("cannot insert without a grant", func(t *testing.T) {
		_, err := fix.TX.NoTx().ExecContext(ctx, `INSERT INTO notes (id, title) VALUES ('n-1', 'nope');`)
		assert.ErrorContains(t, err, "permission denied")
	})

	t.Run("can select with the grant", func(t *testing.T) {
		var res []string
		err := fix.TX.NoTx().SelectContext(ctx, &res, `SELECT title FROM notes;`)
		assert.ErrorIs(t, err, db.ErrNop)
	})
}
