package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-library-cache/library"
	"github.com/uptrace/bun"
)

// AuthorStore is the relational source for authors.
type AuthorStore struct {
	db bun.IDB
}

func NewAuthorStore(db bun.IDB) *AuthorStore {
	return &AuthorStore{db: db}
}

func (s *AuthorStore) FindByNumber(ctx context.Context, number int64) (library.Author, bool, error) {
	var m authorModel
	err := s.db.NewSelect().Model(&m).Where("a.number = ?", number).Scan(ctx)
	if isNoRows(err) {
		return library.Author{}, false, nil
	}
	if err != nil {
		return library.Author{}, false, wrap("find author by number", err)
	}
	return m.toAuthor(), true, nil
}

// FindByName matches the whole name, ignoring case.
func (s *AuthorStore) FindByName(ctx context.Context, name string) ([]library.Author, error) {
	authors, err := s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("a.name_key = ?", normalize(name))
	})
	return authors, wrap("find authors by name", err)
}

// FindByNamePrefix returns the authors whose name starts with prefix, ignoring case.
func (s *AuthorStore) FindByNamePrefix(ctx context.Context, prefix string) ([]library.Author, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	authors, err := s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(`a.name_key LIKE ? ESCAPE '\'`, likePrefix(prefix))
	})
	return authors, wrap("find authors by name prefix", err)
}

func (s *AuthorStore) Save(ctx context.Context, a library.Author) (library.Author, error) {
	m := authorModel{
		Number: a.Number,
		Name:    strings.TrimSpace(a.Name),
		NameKey: normalize(a.Name),
		Bio:     a.Bio,
		Photo:   a.Photo,
	}

	if a.Number == 0 {
		m.Version = 1
		if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
			return library.Author{}, wrap("insert author", err)
		}
		return m.toAuthor(), nil
	}

	m.Version = a.Version + 1
	res, err := s.db.NewUpdate().Model(&m).WherePK().Where("version = ?", a.Version).Exec(ctx)
	if err == nil {
		err = expectRow(res)
	}
	if err != nil {
		return library.Author{}, wrap("update author", err)
	}
	return m.toAuthor(), nil
}

// Delete removes the author and its book credits.
func (s *AuthorStore) Delete(ctx context.Context, a library.Author) error {
	err := inTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*authorModel)(nil)).
			Where("number = ?", a.Number).
			Where("version = ?", a.Version).
			Exec(ctx)
		if err != nil {
			return err
		}
		if err := expectRow(res); err != nil {
			return err
		}
		_, err = tx.NewDelete().Model((*bookAuthorModel)(nil)).
			Where("author_number = ?", a.Number).
			Exec(ctx)
		return err
	})
	return wrap("delete author", err)
}

// TopByLendings ranks authors by the lendings of their books since the given time.
func (s *AuthorStore) TopByLendings(ctx context.Context, since time.Time, limit int) ([]library.AuthorLendings, error) {
	var rows []struct {
		Number   int64 `bun:"number"`
		Lendings int64 `bun:"lendings"`
	}
	err := s.db.NewSelect().
		TableExpr("lendings AS l").
		ColumnExpr("ba.author_number AS number").
		ColumnExpr("count(*) AS lendings").
		Join("JOIN book_authors AS ba ON ba.book_id = l.book_id").
		Where("l.start_date >= ?", since.UTC()).
		GroupExpr("ba.author_number").
		OrderExpr("lendings DESC, ba.author_number ASC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, wrap("top authors by lendings", err)
	}

	numbers := make([]int64, len(rows))
	for i, r := range rows {
		numbers[i] = r.Number
	}
	byNumber, err := s.byNumbers(ctx, numbers)
	if err != nil {
		return nil, wrap("top authors by lendings", err)
	}

	out := make([]library.AuthorLendings, 0, len(rows))
	for _, r := range rows {
		if a, ok := byNumber[r.Number]; ok {
			out = append(out, library.AuthorLendings{Author: a, Lendings: r.Lendings})
		}
	}
	return out, nil
}

// CoAuthors returns every other author credited on a book of the given author.
func (s *AuthorStore) CoAuthors(ctx context.Context, number int64) ([]library.Author, error) {
	books := s.db.NewSelect().
		TableExpr("book_authors AS own").
		ColumnExpr("own.book_id").
		Where("own.author_number = ?", number)
	coauthors := s.db.NewSelect().
		TableExpr("book_authors AS other").
		ColumnExpr("other.author_number").
		Where("other.book_id IN (?)", books).
		Where("other.author_number <> ?", number)

	authors, err := s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("a.number IN (?)", coauthors)
	})
	return authors, wrap("find co-authors", err)
}

func (s *AuthorStore) list(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]library.Author, error) {
	var ms []authorModel
	if err := filter(s.db.NewSelect().Model(&ms)).OrderExpr("a.number ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]library.Author, len(ms))
	for i, m := range ms {
		out[i] = m.toAuthor()
	}
	return out, nil
}

func (s *AuthorStore) byNumbers(ctx context.Context, numbers []int64) (map[int64]library.Author, error) {
	out := make(map[int64]library.Author, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}
	authors, err := s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("a.number IN (?)", bun.In(numbers))
	})
	if err != nil {
		return nil, err
	}
	for _, a := range authors {
		out[a.Number] = a
	}
	return out, nil
}

func (m authorModel) toAuthor() library.Author {
	return library.Author{
		Number:  m.Number,
		Name:    m.Name,
		Bio:     m.Bio,
		Photo:   m.Photo,
		Version: m.Version,
	}
}

// inTx runs fn in a transaction, or inside the one db already is.
func inTx(ctx context.Context, db bun.IDB, fn func(ctx context.Context, tx bun.Tx) error) error {
	if tx, ok := db.(bun.Tx); ok {
		return fn(ctx, tx)
	}
	return db.RunInTx(ctx, nil, fn)
}
