package sqlstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-library-cache/library"
	"github.com/uptrace/bun"
)

// GenreStore is the relational source for genres.
type GenreStore struct {
	db bun.IDB
}

func NewGenreStore(db bun.IDB) *GenreStore {
	return &GenreStore{db: db}
}

func (s *GenreStore) FindByName(ctx context.Context, name string) (library.Genre, bool, error) {
	var m genreModel
	err := s.db.NewSelect().Model(&m).
		Where("g.name_key = ?", normalize(name)).
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return library.Genre{}, false, nil
	}
	if err != nil {
		return library.Genre{}, false, wrap("find genre by name", err)
	}
	return m.toGenre(), true, nil
}

// FindAll returns every genre ordered by name.
func (s *GenreStore) FindAll(ctx context.Context) ([]library.Genre, error) {
	var ms []genreModel
	err := s.db.NewSelect().Model(&ms).
		OrderExpr("g.name_key ASC, g.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("find all genres", err)
	}
	out := make([]library.Genre, len(ms))
	for i, m := range ms {
		out[i] = m.toGenre()
	}
	return out, nil
}

// Save inserts genres without an id and updates the others when their version
// still matches.
func (s *GenreStore) Save(ctx context.Context, g library.Genre) (library.Genre, error) {
	m := genreModel{ID: g.ID, Name: strings.TrimSpace(g.Name), NameKey: normalize(g.Name)}

	if g.ID == 0 {
		m.Version = 1
		if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
			return library.Genre{}, wrap("insert genre", err)
		}
		return m.toGenre(), nil
	}

	m.Version = g.Version + 1
	res, err := s.db.NewUpdate().Model(&m).WherePK().Where("version = ?", g.Version).Exec(ctx)
	if err == nil {
		err = expectRow(res)
	}
	if err != nil {
		return library.Genre{}, wrap("update genre", err)
	}
	return m.toGenre(), nil
}

func (s *GenreStore) Delete(ctx context.Context, g library.Genre) error {
	res, err := s.db.NewDelete().Model((*genreModel)(nil)).
		Where("id = ?", g.ID).
		Where("version = ?", g.Version).
		Exec(ctx)
	if err == nil {
		err = expectRow(res)
	}
	return wrap("delete genre", err)
}

// TopByBookCount ranks genres by the number of books filed under them.
func (s *GenreStore) TopByBookCount(ctx context.Context, limit int) ([]library.GenreBookCount, error) {
	var rows []struct {
		ID        int64  `bun:"id"`
		Name      string `bun:"name"`
		Version   int64  `bun:"version"`
		BookCount int64  `bun:"book_count"`
	}
	err := s.db.NewSelect().
		TableExpr("genres AS g").
		ColumnExpr("g.id, g.name, g.version").
		ColumnExpr("count(b.id) AS book_count").
		Join("LEFT JOIN books AS b ON b.genre_key = g.name_key").
		GroupExpr("g.id, g.name, g.version").
		OrderExpr("book_count DESC, g.name_key ASC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, wrap("top genres by book count", err)
	}

	out := make([]library.GenreBookCount, len(rows))
	for i, r := range rows {
		out[i] = library.GenreBookCount{
			Genre:     library.Genre{ID: r.ID, Name: r.Name, Version: r.Version},
			BookCount: r.BookCount,
		}
	}
	return out, nil
}

// LendingsPerMonth counts lendings per genre and calendar month for lendings
// started in [from, to). Months without lendings are left out.
func (s *GenreStore) LendingsPerMonth(ctx context.Context, from, to time.Time) ([]library.GenreMonthLendings, error) {
	lendings, err := s.lendingsByGenre(ctx, from, to)
	if err != nil {
		return nil, wrap("lendings per month", err)
	}

	type bucket struct {
		genre string
		year  int
		month time.Month
	}
	counts := make(map[bucket]int64)
	for _, l := range lendings {
		start := l.StartDate.UTC()
		counts[bucket{l.Genre, start.Year(), start.Month()}]++
	}

	out := make([]library.GenreMonthLendings, 0, len(counts))
	for b, n := range counts {
		out = append(out, library.GenreMonthLendings{Genre: b.genre, Year: b.year, Month: b.month, Lendings: n})
	}
	slices.SortFunc(out, func(a, b library.GenreMonthLendings) int {
		return cmp.Or(
			strings.Compare(a.Genre, b.Genre),
			cmp.Compare(a.Year, b.Year),
			cmp.Compare(a.Month, b.Month),
		)
	})
	return out, nil
}

// AverageLendingsPerMonth divides the lendings of every genre in [from, to) by
// the number of calendar months the period touches.
func (s *GenreStore) AverageLendingsPerMonth(ctx context.Context, from, to time.Time) ([]library.GenreAverageLendings, error) {
	lendings, err := s.lendingsByGenre(ctx, from, to)
	if err != nil {
		return nil, wrap("average lendings per month", err)
	}

	months := monthsIn(from, to)
	if months == 0 {
		return nil, nil
	}

	totals := make(map[string]int64)
	for _, l := range lendings {
		totals[l.Genre]++
	}

	out := make([]library.GenreAverageLendings, 0, len(totals))
	for genre, n := range totals {
		out = append(out, library.GenreAverageLendings{Genre: genre, Average: float64(n) / float64(months)})
	}
	slices.SortFunc(out, func(a, b library.GenreAverageLendings) int {
		return cmp.Or(cmp.Compare(b.Average, a.Average), strings.Compare(a.Genre, b.Genre))
	})
	return out, nil
}

type genreLending struct {
	Genre     string    `bun:"genre"`
	StartDate time.Time `bun:"start_date"`
}

func (s *GenreStore) lendingsByGenre(ctx context.Context, from, to time.Time) ([]genreLending, error) {
	var rows []genreLending
	err := s.db.NewSelect().
		TableExpr("lendings AS l").
		ColumnExpr("b.genre AS genre").
		ColumnExpr("l.start_date AS start_date").
		Join("JOIN books AS b ON b.id = l.book_id").
		Where("l.start_date >= ?", from.UTC()).
		Where("l.start_date < ?", to.UTC()).
		Scan(ctx, &rows)
	return rows, err
}

// monthsIn counts the calendar months that [from, to) touches.
func monthsIn(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	if !to.After(from) {
		return 0
	}
	n := 0
	for m := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC); m.Before(to); m = m.AddDate(0, 1, 0) {
		n++
	}
	return n
}

func (m genreModel) toGenre() library.Genre {
	return library.Genre{ID: m.ID, Name: m.Name, Version: m.Version}
}
