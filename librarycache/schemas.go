package librarycache

import (
	"cmp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/goliatone/go-library-cache/library"
	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/google/uuid"
)

// Aggregate names double as cache key prefixes.
const (
	BookAggregate   = "book"
	AuthorAggregate = "author"
	GenreAggregate  = "genre"
	ReaderAggregate = "reader"
)

// Time to live per aggregate. Readers change the most, genres hardly ever.
const (
	BookTTL   = 2 * time.Hour
	AuthorTTL = 6 * time.Hour
	GenreTTL  = 24 * time.Hour
	ReaderTTL = 30 * time.Minute
)

// Index names.
const (
	IndexISBN       = "isbn"
	IndexTitle      = "title"
	IndexGenre      = "genre"
	IndexAuthorName = "authorname"
	IndexAuthorID   = "authorid"
	IndexName       = "name"
	IndexNamePrefix = "nameprefix"
	IndexAll        = "all"
	IndexUsername   = "username"
	IndexUserID     = "userid"
	IndexPhone      = "phone"
)

// NamePrefixLength is the longest author name prefix with its own lookup set.
const NamePrefixLength = 8

// BookSchema lays out books: unique by ISBN, looked up by title, genre and by
// the name and number of any of their authors.
func BookSchema() repositorycache.Schema[library.Book] {
	return repositorycache.Schema[library.Book]{
		Name:   BookAggregate,
		TTL:    BookTTL,
		Mapper: BookMapper{},
		PrimaryKey: func(b library.Book) (string, bool) {
			return formatInt(b.ID), b.ID > 0
		},
		Compare: func(a, b library.Book) int { return cmp.Compare(a.ID, b.ID) },
		Unique: []repositorycache.UniqueIndex[library.Book]{
			{Name: IndexISBN, Value: func(b library.Book) string { return b.ISBN }},
		},
		Lookup: []repositorycache.LookupIndex[library.Book]{
			{Name: IndexTitle, Fold: true, Values: func(b library.Book) []string { return []string{b.Title} }},
			{Name: IndexGenre, Fold: true, Values: func(b library.Book) []string { return []string{b.Genre} }},
			{
				Name: IndexAuthorName,
				Fold: true,
				Values: func(b library.Book) []string {
					out := make([]string, len(b.Authors))
					for i, a := range b.Authors {
						out[i] = a.Name
					}
					return out
				},
			},
			{
				Name: IndexAuthorID,
				Values: func(b library.Book) []string {
					out := make([]string, len(b.Authors))
					for i, a := range b.Authors {
						out[i] = formatInt(a.Number)
					}
					return out
				},
			},
		},
	}
}

// AuthorSchema lays out authors keyed by author number and looked up by exact
// name or by name prefix.
func AuthorSchema() repositorycache.Schema[library.Author] {
	return repositorycache.Schema[library.Author]{
		Name:   AuthorAggregate,
		TTL:    AuthorTTL,
		Mapper: AuthorMapper{},
		PrimaryKey: func(a library.Author) (string, bool) {
			return formatInt(a.Number), a.Number > 0
		},
		Compare: func(a, b library.Author) int { return cmp.Compare(a.Number, b.Number) },
		Lookup: []repositorycache.LookupIndex[library.Author]{
			{Name: IndexName, Fold: true, Values: func(a library.Author) []string { return []string{a.Name} }},
			{
				Name:   IndexNamePrefix,
				Fold:   true,
				Values: func(a library.Author) []string { return namePrefixes(a.Name) },
				Query:  truncatePrefix,
				Match: func(a library.Author, prefix string) bool {
					return strings.HasPrefix(cache.Normalize(a.Name, true), prefix)
				},
			},
		},
	}
}

// GenreSchema lays out genres: unique by name, and the whole list under genre:all.
func GenreSchema() repositorycache.Schema[library.Genre] {
	return repositorycache.Schema[library.Genre]{
		Name:   GenreAggregate,
		TTL:    GenreTTL,
		Mapper: GenreMapper{},
		PrimaryKey: func(g library.Genre) (string, bool) {
			return formatInt(g.ID), g.ID > 0
		},
		Compare: func(a, b library.Genre) int {
			return cmp.Or(
				strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
				cmp.Compare(a.ID, b.ID),
			)
		},
		Unique: []repositorycache.UniqueIndex[library.Genre]{
			{Name: IndexName, Fold: true, Value: func(g library.Genre) string { return g.Name }},
		},
		Lookup: []repositorycache.LookupIndex[library.Genre]{
			{Name: IndexAll, Whole: true},
		},
	}
}

// ReaderSchema lays out readers keyed by reader number, unique by username and
// user id, and looked up by phone number.
func ReaderSchema() repositorycache.Schema[library.Reader] {
	return repositorycache.Schema[library.Reader]{
		Name:   ReaderAggregate,
		TTL:    ReaderTTL,
		Mapper: ReaderMapper{},
		PrimaryKey: func(r library.Reader) (string, bool) {
			pk := strings.TrimSpace(r.Number)
			return pk, pk != ""
		},
		Compare: func(a, b library.Reader) int { return strings.Compare(a.Number, b.Number) },
		Unique: []repositorycache.UniqueIndex[library.Reader]{
			{Name: IndexUsername, Fold: true, Value: func(r library.Reader) string { return r.Username }},
			{Name: IndexUserID, Value: func(r library.Reader) string { return userIDKey(r.UserID) }},
		},
		Lookup: []repositorycache.LookupIndex[library.Reader]{
			{Name: IndexPhone, Values: func(r library.Reader) []string { return []string{r.PhoneNumber} }},
		},
	}
}

func userIDKey(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// namePrefixes returns every prefix of the normalized name up to
// NamePrefixLength runes.
func namePrefixes(name string) []string {
	name = cache.Normalize(name, true)
	out := make([]string, 0, NamePrefixLength)
	for i := range name {
		if i == 0 {
			continue
		}
		out = append(out, name[:i])
		if len(out) == NamePrefixLength {
			return out
		}
	}
	if name != "" {
		out = append(out, name)
	}
	return out
}

func truncatePrefix(prefix string) string {
	if utf8.RuneCountInString(prefix) <= NamePrefixLength {
		return prefix
	}
	n := 0
	for i := range prefix {
		if n == NamePrefixLength {
			return prefix[:i]
		}
		n++
	}
	return prefix
}
