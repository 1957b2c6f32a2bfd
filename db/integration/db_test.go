package integration

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/testing/dbfixture"
	"github.com/hl8/datalayer/testing/testcontext"
)

func TestDB(t *testing.T) {
	ctx := testcontext.Background()
	conn := dbfixture.ConnectionFromEnv(t, dbfixture.Connection{
		Host:     "localhost:5432",
		User:     "user",
		Password: "password",
	})
	fix := dbfixture.SetupDB(ctx, t,
		"CREATE TABLE documents (id text PRIMARY KEY, title text, revision smallint, updated_at timestamp);", conn)

	type document struct {
		ID        string
		Title     string
		Revision  int
		UpdatedAt time.Time `db:"updated_at"`
	}
	doc := document{
		ID:        "doc-1",
		Title:     "runbook",
		Revision:  3,
		UpdatedAt: time.Date(2024, 2, 14, 9, 0, 0, 0, time.UTC),
	}

	err := fix.TX.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		const sql = "INSERT INTO documents (id,title,revision,updated_at) VALUES (:id,:title,:revision,:updated_at);"
		_, err := q.NamedExecContext(ctx, sql, doc)
		return err
	})
	assert.Assert(t, err)

	t.Run("get", func(t *testing.T) {
		got := document{}
		err := fix.TX.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
			return q.GetContext(ctx, &got, "SELECT * from documents WHERE id=$1", "doc-1")
		})
		assert.Assert(t, err)
		assert.DeepEqual(t, got, doc)
	})

	t.Run("get named", func(t *testing.T) {
		got := document{}
		err := fix.TX.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
			params := struct{ ID string }{ID: "doc-1"}
			return q.NamedGetContext(ctx, &got, "SELECT * from documents WHERE id=:id", params)
		})
		assert.Assert(t, err)
		assert.DeepEqual(t, got, doc)
	})

	t.Run("get named outside a transaction", func(t *testing.T) {
		got := document{}
		params := struct{ ID string }{ID: "doc-1"}
		err := fix.TX.NoTx().NamedGetContext(ctx, &got, "SELECT * from documents WHERE id=:id", params)
		assert.Assert(t, err)
		assert.DeepEqual(t, got, doc)
	})

	t.Run("missing row maps to ErrNop", func(t *testing.T) {
		got := document{}
		err := fix.TX.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
			return q.GetContext(ctx, &got, "SELECT * from documents WHERE id=$1", "ghost")
		})
		assert.Check(t, cmp.ErrorIs(err, db.ErrNop))
	})

	t.Run("nested transaction shares the outer handle", func(t *testing.T) {
		err := fix.TX.WithTx(ctx, func(ctx context.Context, outer db.Querier) error {
			return fix.TX.WithTx(ctx, func(ctx context.Context, inner db.Querier) error {
				assert.Check(t, outer == inner)
				got := document{}
				return inner.GetContext(ctx, &got, "SELECT * from documents WHERE id=$1", "doc-1")
			})
		})
		assert.Assert(t, err)
	})
}
