// Package sqlstore implements the library sources on a relational database
// through bun. It is the authoritative store behind the cached repositories.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-library-cache/library"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDriver is returned by Open for drivers other than sqlite3 and postgres.
var ErrUnsupportedDriver = errors.New("sqlstore: unsupported driver")

// Open connects to dsn with the bun dialect matching driver.
func Open(driver, dsn string) (*bun.DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}

	if driver == DriverPostgres {
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}
	// in-memory databases live and die with their connection
	if strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, ":memory:") {
		sqldb.SetMaxOpenConns(1)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

var models = []any{
	(*genreModel)(nil),
	(*authorModel)(nil),
	(*bookModel)(nil),
	(*bookAuthorModel)(nil),
	(*readerModel)(nil),
	(*lendingModel)(nil),
}

// Migrate creates the tables that do not exist yet.
func Migrate(ctx context.Context, db bun.IDB) error {
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: create table for %T: %w", m, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*authorModel)(nil), "authors_name_key_idx", []string{"name_key"}},
		{(*bookModel)(nil), "books_title_key_idx", []string{"title_key"}},
		{(*bookModel)(nil), "books_genre_key_idx", []string{"genre_key"}},
		{(*bookAuthorModel)(nil), "book_authors_author_idx", []string{"author_number"}},
		{(*lendingModel)(nil), "lendings_start_date_idx", []string{"start_date"}},
		{(*readerModel)(nil), "readers_phone_idx", []string{"phone_number"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: create index %s: %w", idx.name, err)
		}
	}
	return nil
}

type genreModel struct {
	bun.BaseModel `bun:"table:genres,alias:g"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Name    string `bun:"name,notnull"`
	NameKey string `bun:"name_key,notnull,unique"`
	Version int64  `bun:"version,notnull"`
}

type authorModel struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	Number  int64   `bun:"number,pk,autoincrement"`
	Name    string  `bun:"name,notnull"`
	NameKey string  `bun:"name_key,notnull"`
	Bio     string  `bun:"bio,notnull"`
	Photo   *string `bun:"photo"`
	Version int64   `bun:"version,notnull"`
}

type bookModel struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID          int64   `bun:"id,pk,autoincrement"`
	ISBN        string  `bun:"isbn,notnull,unique"`
	Title       string  `bun:"title,notnull"`
	TitleKey    string  `bun:"title_key,notnull"`
	Genre       string  `bun:"genre,notnull"`
	GenreKey    string  `bun:"genre_key,notnull"`
	Description *string `bun:"description"`
	Photo       *string `bun:"photo"`
	Version     int64   `bun:"version,notnull"`
}

type bookAuthorModel struct {
	bun.BaseModel `bun:"table:book_authors,alias:ba"`

	BookID       int64 `bun:"book_id,pk"`
	AuthorNumber int64 `bun:"author_number,pk"`
	Position     int   `bun:"position,notnull"`
}

type readerModel struct {
	bun.BaseModel `bun:"table:readers,alias:r"`

	Number            string    `bun:"number,pk"`
	UserID            string    `bun:"user_id,notnull,unique"`
	Username          string    `bun:"username,notnull"`
	UsernameKey       string    `bun:"username_key,notnull,unique"`
	FullName          string    `bun:"full_name,notnull"`
	FullNameKey       string    `bun:"full_name_key,notnull"`
	PhoneNumber       string    `bun:"phone_number,notnull"`
	BirthDate         string    `bun:"birth_date,notnull"`
	GDPRConsent       bool      `bun:"gdpr_consent,notnull"`
	MarketingConsent  bool      `bun:"marketing_consent,notnull"`
	ThirdPartyConsent bool      `bun:"third_party_consent,notnull"`
	Photo             *string   `bun:"photo"`
	Version           int64     `bun:"version,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

type lendingModel struct {
	bun.BaseModel `bun:"table:lendings,alias:l"`

	ID           int64      `bun:"id,pk,autoincrement"`
	BookID       int64      `bun:"book_id,notnull"`
	ReaderNumber string     `bun:"reader_number,notnull"`
	StartDate    time.Time  `bun:"start_date,notnull"`
	ReturnedDate *time.Time `bun:"returned_date"`
}

// countRow is the shape of every "ref, total" aggregate query.
type countRow struct {
	Ref   string `bun:"ref"`
	Total int64  `bun:"total"`
}

// expectRow turns an update or delete that matched nothing into a version conflict.
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return library.ErrStaleVersion
	}
	return nil
}

// wrap adds context to source failures. Version conflicts are returned as they
// are so callers can compare them directly.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, library.ErrStaleVersion) {
		return err
	}
	return fmt.Errorf("sqlstore: %s: %w", op, err)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// likePrefix builds a LIKE pattern matching values that start with prefix.
func likePrefix(prefix string) string {
	return escapeLike(strings.ToLower(prefix)) + "%"
}

func likeContains(s string) string {
	return "%" + escapeLike(strings.ToLower(s)) + "%"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// normalize folds text the way the cache keys do. The *_key columns hold it so
// that matching does not depend on the database's own case folding, which in
// sqlite covers ASCII only.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
