package librarycache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-library-cache/library"
	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/google/uuid"
)

// BookSource is the relational store behind BookRepository.
type BookSource interface {
	FindByISBN(ctx context.Context, isbn string) (library.Book, bool, error)
	FindByTitle(ctx context.Context, title string) ([]library.Book, error)
	FindByGenre(ctx context.Context, genre string) ([]library.Book, error)
	FindByAuthorName(ctx context.Context, name string) ([]library.Book, error)
	FindByAuthorNumber(ctx context.Context, number int64) ([]library.Book, error)
	Save(ctx context.Context, b library.Book) (library.Book, error)
	Delete(ctx context.Context, b library.Book) error

	TopLent(ctx context.Context, since time.Time, limit int) ([]library.BookLendings, error)
	Search(ctx context.Context, q library.BookQuery) ([]library.Book, error)
}

// AuthorSource is the relational store behind AuthorRepository.
type AuthorSource interface {
	FindByNumber(ctx context.Context, number int64) (library.Author, bool, error)
	FindByName(ctx context.Context, name string) ([]library.Author, error)
	FindByNamePrefix(ctx context.Context, prefix string) ([]library.Author, error)
	Save(ctx context.Context, a library.Author) (library.Author, error)
	Delete(ctx context.Context, a library.Author) error

	TopByLendings(ctx context.Context, since time.Time, limit int) ([]library.AuthorLendings, error)
	CoAuthors(ctx context.Context, number int64) ([]library.Author, error)
}

// GenreSource is the relational store behind GenreRepository.
type GenreSource interface {
	FindByName(ctx context.Context, name string) (library.Genre, bool, error)
	FindAll(ctx context.Context) ([]library.Genre, error)
	Save(ctx context.Context, g library.Genre) (library.Genre, error)
	Delete(ctx context.Context, g library.Genre) error

	TopByBookCount(ctx context.Context, limit int) ([]library.GenreBookCount, error)
	LendingsPerMonth(ctx context.Context, from, to time.Time) ([]library.GenreMonthLendings, error)
	AverageLendingsPerMonth(ctx context.Context, from, to time.Time) ([]library.GenreAverageLendings, error)
}

// ReaderSource is the relational store behind ReaderRepository.
type ReaderSource interface {
	FindByNumber(ctx context.Context, number string) (library.Reader, bool, error)
	FindByUsername(ctx context.Context, username string) (library.Reader, bool, error)
	FindByUserID(ctx context.Context, id uuid.UUID) (library.Reader, bool, error)
	FindByPhoneNumber(ctx context.Context, phone string) ([]library.Reader, error)
	Save(ctx context.Context, r library.Reader) (library.Reader, error)
	Delete(ctx context.Context, r library.Reader) error

	CountThisYear(ctx context.Context, now time.Time) (int64, error)
	TopReaders(ctx context.Context, since time.Time, limit int) ([]library.ReaderLendings, error)
	TopByGenre(ctx context.Context, genre string, limit int) ([]library.ReaderLendings, error)
	Search(ctx context.Context, q library.ReaderQuery) ([]library.Reader, error)
}

// The adapters below route the index names of each schema to the typed source
// queries. Keys arrive as the caller passed them; sources normalize on their own.

func bookSource(s BookSource) repositorycache.Source[library.Book] {
	return repositorycache.SourceFuncs[library.Book]{
		Unique: map[string]func(context.Context, string) (library.Book, bool, error){
			IndexISBN: s.FindByISBN,
		},
		Lookup: map[string]func(context.Context, string) ([]library.Book, error){
			IndexTitle:      s.FindByTitle,
			IndexGenre:      s.FindByGenre,
			IndexAuthorName: s.FindByAuthorName,
			IndexAuthorID: func(ctx context.Context, v string) ([]library.Book, error) {
				n, err := parseKey(v)
				if err != nil {
					return nil, err
				}
				return s.FindByAuthorNumber(ctx, n)
			},
		},
		SaveFunc:   s.Save,
		DeleteFunc: s.Delete,
	}
}

func authorSource(s AuthorSource) repositorycache.Source[library.Author] {
	return repositorycache.SourceFuncs[library.Author]{
		Unique: map[string]func(context.Context, string) (library.Author, bool, error){
			repositorycache.PrimaryIndex: func(ctx context.Context, v string) (library.Author, bool, error) {
				n, err := parseKey(v)
				if err != nil {
					return library.Author{}, false, err
				}
				return s.FindByNumber(ctx, n)
			},
		},
		Lookup: map[string]func(context.Context, string) ([]library.Author, error){
			IndexName:       s.FindByName,
			IndexNamePrefix: s.FindByNamePrefix,
		},
		SaveFunc:   s.Save,
		DeleteFunc: s.Delete,
	}
}

func genreSource(s GenreSource) repositorycache.Source[library.Genre] {
	return repositorycache.SourceFuncs[library.Genre]{
		Unique: map[string]func(context.Context, string) (library.Genre, bool, error){
			IndexName: s.FindByName,
		},
		Lookup: map[string]func(context.Context, string) ([]library.Genre, error){
			IndexAll: func(ctx context.Context, _ string) ([]library.Genre, error) {
				return s.FindAll(ctx)
			},
		},
		SaveFunc:   s.Save,
		DeleteFunc: s.Delete,
	}
}

func readerSource(s ReaderSource) repositorycache.Source[library.Reader] {
	return repositorycache.SourceFuncs[library.Reader]{
		Unique: map[string]func(context.Context, string) (library.Reader, bool, error){
			repositorycache.PrimaryIndex: s.FindByNumber,
			IndexUsername:                s.FindByUsername,
			IndexUserID: func(ctx context.Context, v string) (library.Reader, bool, error) {
				id, err := uuid.Parse(strings.TrimSpace(v))
				if err != nil {
					return library.Reader{}, false, fmt.Errorf("librarycache: user id %q: %w", v, err)
				}
				return s.FindByUserID(ctx, id)
			},
		},
		Lookup: map[string]func(context.Context, string) ([]library.Reader, error){
			IndexPhone: s.FindByPhoneNumber,
		},
		SaveFunc:   s.Save,
		DeleteFunc: s.Delete,
	}
}

func parseKey(v string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("librarycache: numeric key %q: %w", v, err)
	}
	return n, nil
}
