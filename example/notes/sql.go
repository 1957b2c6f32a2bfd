package notes

import (
	"context"

	"github.com/google/uuid"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/o11y"
)

func queryInsertNote(ctx context.Context, q db.Querier, toAdd ToAdd) (err error) {
	ctx, span := db.Span(ctx, "notes", "query_insert_note")
	defer o11y.End(span, &err)

	_, err = q.NamedExecContext(ctx, insertNoteSQL, toAdd)
	return err
}

func queryGetNoteByID(ctx context.Context, q db.Querier, id uuid.UUID) (note *Note, err error) {
	ctx, span := db.Span(ctx, "notes", "query_get_note_by_id")
	defer o11y.End(span, &err)
	span.AddField("id", id)

	note = &Note{}
	err = q.GetContext(ctx, note, getNoteByIDSQL, id)
	if err != nil {
		return nil, err
	}

	return note, nil
}

func querySelectNotes(ctx context.Context, q db.Querier) (notes []Note, err error) {
	ctx, span := db.Span(ctx, "notes", "query_select_notes")
	defer o11y.End(span, &err)

	err = q.SelectContext(ctx, &notes, selectNotesSQL)
	return notes, err
}

func queryDeleteNote(ctx context.Context, q db.Querier, id uuid.UUID) (err error) {
	ctx, span := db.Span(ctx, "notes", "query_delete_note")
	defer o11y.End(span, &err)
	span.AddField("id", id)

	_, err = q.ExecContext(ctx, deleteNoteSQL, id)
	return err
}

// language=PostgreSQL
var insertNoteSQL = `
INSERT INTO notes (id, title, body)
VALUES (:id, :title, :body)
`

// language=PostgreSQL
var getNoteByIDSQL = `
SELECT
	id,
	title,
	body,
	created_at
FROM
	notes
WHERE
	id = $1
`

// language=PostgreSQL
var selectNotesSQL = `
SELECT
	id,
	title,
	body,
	created_at
FROM
	notes
ORDER BY
	created_at DESC
`

// language=PostgreSQL
var deleteNoteSQL = `
DELETE FROM notes
WHERE id = $1
`
