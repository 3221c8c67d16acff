package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-library-cache/library"
	"github.com/uptrace/bun"
)

// ErrAlreadyReturned is returned when a lending that was already closed is
// returned again.
var ErrAlreadyReturned = errors.New("sqlstore: lending already returned")

// LendingStore records lendings. The reporting queries of the other stores read
// the lendings table directly.
type LendingStore struct {
	db bun.IDB
}

func NewLendingStore(db bun.IDB) *LendingStore {
	return &LendingStore{db: db}
}

// Create stores a new lending. Times are kept in UTC.
func (s *LendingStore) Create(ctx context.Context, l library.Lending) (library.Lending, error) {
	m := lendingModel{
		BookID:       l.BookID,
		ReaderNumber: l.ReaderNumber,
		StartDate:    l.StartDate.UTC(),
	}
	if l.ReturnedDate != nil {
		returned := l.ReturnedDate.UTC()
		m.ReturnedDate = &returned
	}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return library.Lending{}, wrap("create lending", err)
	}
	return m.toLending(), nil
}

// Return closes an open lending at the given time.
func (s *LendingStore) Return(ctx context.Context, id int64, at time.Time) (library.Lending, error) {
	var out library.Lending
	err := inTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		var m lendingModel
		if err := tx.NewSelect().Model(&m).Where("l.id = ?", id).Scan(ctx); err != nil {
			return err
		}
		if m.ReturnedDate != nil {
			return ErrAlreadyReturned
		}
		returned := at.UTC()
		m.ReturnedDate = &returned
		if _, err := tx.NewUpdate().Model(&m).Column("returned_date").WherePK().Exec(ctx); err != nil {
			return err
		}
		out = m.toLending()
		return nil
	})
	if err != nil {
		return library.Lending{}, wrap("return lending", err)
	}
	return out, nil
}

// ListByReader returns the lendings of a reader, newest first.
func (s *LendingStore) ListByReader(ctx context.Context, readerNumber string) ([]library.Lending, error) {
	var ms []lendingModel
	err := s.db.NewSelect().Model(&ms).
		Where("l.reader_number = ?", readerNumber).
		OrderExpr("l.start_date DESC, l.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list lendings by reader", err)
	}
	out := make([]library.Lending, len(ms))
	for i, m := range ms {
		out[i] = m.toLending()
	}
	return out, nil
}

func (m lendingModel) toLending() library.Lending {
	return library.Lending{
		ID:           m.ID,
		BookID:       m.BookID,
		ReaderNumber: m.ReaderNumber,
		StartDate:    m.StartDate,
		ReturnedDate: m.ReturnedDate,
	}
}
