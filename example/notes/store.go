package notes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/tenant"
)

var ErrNotFound = o11y.NewWarning("no update or results")

// Store keeps each tenant's notes in that tenant's own database. Every
// method resolves the active tenant from the context scope.
type Store struct {
	svc *tenant.Service
}

func NewStore(svc *tenant.Service) *Store {
	return &Store{
		svc: svc,
	}
}

func mapError(err, to error) error {
	if errors.Is(err, db.ErrNop) {
		return to
	}
	return err
}

type Note struct {
	ID        uuid.UUID `db:"id"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
}

type ToAdd struct {
	ID    uuid.UUID `db:"id"`
	Title string    `db:"title"`
	Body  string    `db:"body"`
}

func (s *Store) Add(ctx context.Context, toAdd ToAdd) (id uuid.UUID, err error) {
	ctx, span := o11y.StartSpan(ctx, "store: add")
	defer o11y.End(span, &err)
	span.AddField("title", toAdd.Title)

	toAdd.ID = uuid.New()
	err = s.svc.Transactional(ctx, func(ctx context.Context) error {
		q, err := s.querier(ctx)
		if err != nil {
			return err
		}
		return queryInsertNote(ctx, q, toAdd)
	})
	if err != nil {
		return uuid.Nil, mapError(err, ErrNotFound)
	}
	return toAdd.ID, nil
}

func (s *Store) ByID(ctx context.Context, id uuid.UUID) (note *Note, err error) {
	ctx, span := o11y.StartSpan(ctx, "store: by_id")
	defer o11y.End(span, &err)
	span.AddField("id", id)

	err = s.svc.Transactional(ctx, func(ctx context.Context) error {
		q, err := s.querier(ctx)
		if err != nil {
			return err
		}
		note, err = queryGetNoteByID(ctx, q, id)
		return err
	})

	return note, mapError(err, ErrNotFound)
}

func (s *Store) List(ctx context.Context) (notes []Note, err error) {
	ctx, span := o11y.StartSpan(ctx, "store: list")
	defer o11y.End(span, &err)

	err = s.svc.Transactional(ctx, func(ctx context.Context) error {
		q, err := s.querier(ctx)
		if err != nil {
			return err
		}
		notes, err = querySelectNotes(ctx, q)
		return err
	})
	if errors.Is(err, db.ErrNop) {
		return nil, nil
	}
	return notes, err
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := o11y.StartSpan(ctx, "store: delete")
	defer o11y.End(span, &err)
	span.AddField("id", id)

	err = s.svc.Transactional(ctx, func(ctx context.Context) error {
		q, err := s.querier(ctx)
		if err != nil {
			return err
		}
		return queryDeleteNote(ctx, q, id)
	})
	return mapError(err, ErrNotFound)
}

// querier returns the ambient transaction handle installed by Transactional.
func (s *Store) querier(ctx context.Context) (db.Querier, error) {
	q, ok := db.TxFromContext(ctx)
	if !ok {
		return nil, db.ErrNotInitialized
	}
	return q, nil
}
