package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-library-cache/library"
	"github.com/uptrace/bun"
)

// BookStore is the relational source for books. Author credits live in
// book_authors and the author names are read from authors.
type BookStore struct {
	db bun.IDB
}

func NewBookStore(db bun.IDB) *BookStore {
	return &BookStore{db: db}
}

func (s *BookStore) FindByISBN(ctx context.Context, isbn string) (library.Book, bool, error) {
	books, err := s.list(ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("b.isbn = ?", strings.TrimSpace(isbn)).Limit(1)
	})
	if err != nil {
		return library.Book{}, false, wrap("find book by isbn", err)
	}
	if len(books) == 0 {
		return library.Book{}, false, nil
	}
	return books[0], true, nil
}

func (s *BookStore) FindByTitle(ctx context.Context, title string) ([]library.Book, error) {
	books, err := s.list(ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("b.title_key = ?", normalize(title))
	})
	return books, wrap("find books by title", err)
}

func (s *BookStore) FindByGenre(ctx context.Context, genre string) ([]library.Book, error) {
	books, err := s.list(ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("b.genre_key = ?", normalize(genre))
	})
	return books, wrap("find books by genre", err)
}

// FindByAuthorName returns the books credited to an author with exactly this
// name, ignoring case.
func (s *BookStore) FindByAuthorName(ctx context.Context, name string) ([]library.Book, error) {
	credited := s.db.NewSelect().
		TableExpr("book_authors AS ba").
		ColumnExpr("ba.book_id").
		Join("JOIN authors AS a ON a.number = ba.author_number").
		Where("a.name_key = ?", normalize(name))

	books, err := s.list(ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("b.id IN (?)", credited)
	})
	return books, wrap("find books by author name", err)
}

func (s *BookStore) FindByAuthorNumber(ctx context.Context, number int64) ([]library.Book, error) {
	credited := s.db.NewSelect().
		TableExpr("book_authors AS ba").
		ColumnExpr("ba.book_id").
		Where("ba.author_number = ?", number)

	books, err := s.list(ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("b.id IN (?)", credited)
	})
	return books, wrap("find books by author number", err)
}

// Save writes the book and replaces its author credits in one transaction and
// returns the book as stored, with the current author names.
func (s *BookStore) Save(ctx context.Context, b library.Book) (library.Book, error) {
	var saved library.Book
	err := inTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		m := bookModel{
			ID:          b.ID,
			ISBN:        strings.TrimSpace(b.ISBN),
			Title:       strings.TrimSpace(b.Title),
			TitleKey:    normalize(b.Title),
			Genre:       strings.TrimSpace(b.Genre),
			GenreKey:    normalize(b.Genre),
			Description: b.Description,
			Photo:       b.Photo,
		}

		if b.ID == 0 {
			m.Version = 1
			if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
				return err
			}
		} else {
			m.Version = b.Version + 1
			res, err := tx.NewUpdate().Model(&m).WherePK().Where("version = ?", b.Version).Exec(ctx)
			if err != nil {
				return err
			}
			if err := expectRow(res); err != nil {
				return err
			}
			if _, err := tx.NewDelete().Model((*bookAuthorModel)(nil)).Where("book_id = ?", m.ID).Exec(ctx); err != nil {
				return err
			}
		}

		if len(b.Authors) > 0 {
			credits := make([]bookAuthorModel, 0, len(b.Authors))
			seen := make(map[int64]bool, len(b.Authors))
			for _, a := range b.Authors {
				if seen[a.Number] {
					continue
				}
				seen[a.Number] = true
				credits = append(credits, bookAuthorModel{BookID: m.ID, AuthorNumber: a.Number, Position: len(credits)})
			}
			if _, err := tx.NewInsert().Model(&credits).Exec(ctx); err != nil {
				return err
			}
		}

		books, err := s.list(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("b.id = ?", m.ID)
		})
		if err != nil {
			return err
		}
		if len(books) == 1 {
			saved = books[0]
		}
		return nil
	})
	if err != nil {
		return library.Book{}, wrap("save book", err)
	}
	return saved, nil
}

// Delete removes the book, its author credits and its lendings.
func (s *BookStore) Delete(ctx context.Context, b library.Book) error {
	err := inTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*bookModel)(nil)).
			Where("id = ?", b.ID).
			Where("version = ?", b.Version).
			Exec(ctx)
		if err != nil {
			return err
		}
		if err := expectRow(res); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*bookAuthorModel)(nil)).Where("book_id = ?", b.ID).Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewDelete().Model((*lendingModel)(nil)).Where("book_id = ?", b.ID).Exec(ctx)
		return err
	})
	return wrap("delete book", err)
}

// TopLent ranks books by the number of lendings started since the given time.
func (s *BookStore) TopLent(ctx context.Context, since time.Time, limit int) ([]library.BookLendings, error) {
	var rows []struct {
		BookID   int64 `bun:"book_id"`
		Lendings int64 `bun:"lendings"`
	}
	err := s.db.NewSelect().
		TableExpr("lendings AS l").
		ColumnExpr("l.book_id AS book_id").
		ColumnExpr("count(*) AS lendings").
		Where("l.start_date >= ?", since.UTC()).
		GroupExpr("l.book_id").
		OrderExpr("lendings DESC, l.book_id ASC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, wrap("top lent books", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.BookID
	}
	books, err := s.list(ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("b.id IN (?)", bun.In(ids))
	})
	if err != nil {
		return nil, wrap("top lent books", err)
	}
	byID := make(map[int64]library.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}

	out := make([]library.BookLendings, 0, len(rows))
	for _, r := range rows {
		if b, ok := byID[r.BookID]; ok {
			out = append(out, library.BookLendings{Book: b, Lendings: r.Lendings})
		}
	}
	return out, nil
}

// Search combines the non-empty fields of q: title and author name match
// substrings, genre matches exactly. All comparisons ignore case.
func (s *BookStore) Search(ctx context.Context, q library.BookQuery) ([]library.Book, error) {
	books, err := s.list(ctx, s.db, func(sq *bun.SelectQuery) *bun.SelectQuery {
		if title := strings.TrimSpace(q.Title); title != "" {
			sq = sq.Where(`b.title_key LIKE ? ESCAPE '\'`, likeContains(title))
		}
		if genre := normalize(q.Genre); genre != "" {
			sq = sq.Where("b.genre_key = ?", genre)
		}
		if name := strings.TrimSpace(q.AuthorName); name != "" {
			credited := s.db.NewSelect().
				TableExpr("book_authors AS ba").
				ColumnExpr("ba.book_id").
				Join("JOIN authors AS a ON a.number = ba.author_number").
				Where(`a.name_key LIKE ? ESCAPE '\'`, likeContains(name))
			sq = sq.Where("b.id IN (?)", credited)
		}
		return sq
	})
	return books, wrap("search books", err)
}

type creditRow struct {
	BookID       int64  `bun:"book_id"`
	AuthorNumber int64  `bun:"author_number"`
	Name         string `bun:"name"`
}

// list loads the books selected by filter, ordered by id, with their authors.
func (s *BookStore) list(ctx context.Context, db bun.IDB, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]library.Book, error) {
	var ms []bookModel
	if err := filter(db.NewSelect().Model(&ms)).OrderExpr("b.id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	var credits []creditRow
	err := db.NewSelect().
		TableExpr("book_authors AS ba").
		ColumnExpr("ba.book_id, ba.author_number, a.name").
		Join("JOIN authors AS a ON a.number = ba.author_number").
		Where("ba.book_id IN (?)", bun.In(ids)).
		OrderExpr("ba.book_id ASC, ba.position ASC").
		Scan(ctx, &credits)
	if err != nil {
		return nil, err
	}
	authors := make(map[int64][]library.AuthorRef, len(ms))
	for _, c := range credits {
		authors[c.BookID] = append(authors[c.BookID], library.AuthorRef{Number: c.AuthorNumber, Name: c.Name})
	}

	out := make([]library.Book, len(ms))
	for i, m := range ms {
		out[i] = library.Book{
			ID:          m.ID,
			ISBN:        m.ISBN,
			Title:       m.Title,
			Genre:       m.Genre,
			Authors:     authors[m.ID],
			Description: m.Description,
			Photo:       m.Photo,
			Version:     m.Version,
		}
	}
	return out, nil
}
