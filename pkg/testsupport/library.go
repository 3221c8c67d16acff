package testsupport

import (
	"context"
	_ "embed"
	"testing"
	"time"

	"github.com/goliatone/go-library-cache/internal/sqlstore"
	"github.com/goliatone/go-library-cache/library"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

//go:embed testdata/library.json
var libraryFixture []byte

// SeedTime is the registration time of the seeded readers, so their numbers
// are 2026/1, 2026/2 and 2026/3 in fixture order.
var SeedTime = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// Library holds the seeded entities as the database returned them.
type Library struct {
	Genres   map[string]library.Genre  // by name
	Authors  map[string]library.Author // by name
	Books    map[string]library.Book   // by isbn
	Readers  map[string]library.Reader // by username
	Lendings []library.Lending
}

type libraryFixtureData struct {
	Genres  []string `json:"genres"`
	Authors []struct {
		Name string `json:"name"`
		Bio  string `json:"bio"`
	} `json:"authors"`
	Books []struct {
		ISBN        string   `json:"isbn"`
		Title       string   `json:"title"`
		Genre       string   `json:"genre"`
		Authors     []string `json:"authors"`
		Description *string  `json:"description"`
	} `json:"books"`
	Readers []struct {
		Username          string `json:"username"`
		FullName          string `json:"fullName"`
		PhoneNumber       string `json:"phoneNumber"`
		BirthDate         string `json:"birthDate"`
		GDPRConsent       bool   `json:"gdprConsent"`
		MarketingConsent  bool   `json:"marketingConsent"`
		ThirdPartyConsent bool   `json:"thirdPartyConsent"`
	} `json:"readers"`
	Lendings []struct {
		ISBN         string     `json:"isbn"`
		Reader       string     `json:"reader"`
		StartDate    time.Time  `json:"startDate"`
		ReturnedDate *time.Time `json:"returnedDate"`
	} `json:"lendings"`
}

// OpenSQLite opens a private in-memory database with the schema in place. It
// is closed when the test ends.
func OpenSQLite(t testing.TB) *bun.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := sqlstore.Open(sqlstore.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := sqlstore.Migrate(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return db
}

// SeedLibrary writes the library fixture through the sql stores.
func SeedLibrary(t testing.TB, db bun.IDB) Library {
	t.Helper()

	var data libraryFixtureData
	decodeJSON(t, "library.json", libraryFixture, &data)

	ctx := context.Background()
	lib := Library{
		Genres:  make(map[string]library.Genre),
		Authors: make(map[string]library.Author),
		Books:   make(map[string]library.Book),
		Readers: make(map[string]library.Reader),
	}

	genres := sqlstore.NewGenreStore(db)
	for _, name := range data.Genres {
		g, err := genres.Save(ctx, library.Genre{Name: name})
		if err != nil {
			t.Fatalf("seed genre %q: %v", name, err)
		}
		lib.Genres[name] = g
	}

	authors := sqlstore.NewAuthorStore(db)
	for _, a := range data.Authors {
		saved, err := authors.Save(ctx, library.Author{Name: a.Name, Bio: a.Bio})
		if err != nil {
			t.Fatalf("seed author %q: %v", a.Name, err)
		}
		lib.Authors[a.Name] = saved
	}

	books := sqlstore.NewBookStore(db)
	for _, b := range data.Books {
		refs := make([]library.AuthorRef, 0, len(b.Authors))
		for _, name := range b.Authors {
			a, ok := lib.Authors[name]
			if !ok {
				t.Fatalf("seed book %q: unknown author %q", b.ISBN, name)
			}
			refs = append(refs, library.AuthorRef{Number: a.Number, Name: a.Name})
		}
		saved, err := books.Save(ctx, library.Book{
			ISBN:        b.ISBN,
			Title:       b.Title,
			Genre:       b.Genre,
			Authors:     refs,
			Description: b.Description,
		})
		if err != nil {
			t.Fatalf("seed book %q: %v", b.ISBN, err)
		}
		lib.Books[b.ISBN] = saved
	}

	readers := sqlstore.NewReaderStore(db, sqlstore.WithClock(func() time.Time { return SeedTime }))
	for _, r := range data.Readers {
		birth, err := time.Parse(time.DateOnly, r.BirthDate)
		if err != nil {
			t.Fatalf("seed reader %q: %v", r.Username, err)
		}
		saved, err := readers.Save(ctx, library.Reader{
			Username:          r.Username,
			FullName:          r.FullName,
			PhoneNumber:       r.PhoneNumber,
			BirthDate:         birth,
			GDPRConsent:       r.GDPRConsent,
			MarketingConsent:  r.MarketingConsent,
			ThirdPartyConsent: r.ThirdPartyConsent,
		})
		if err != nil {
			t.Fatalf("seed reader %q: %v", r.Username, err)
		}
		lib.Readers[r.Username] = saved
	}

	lendings := sqlstore.NewLendingStore(db)
	for _, l := range data.Lendings {
		book, ok := lib.Books[l.ISBN]
		if !ok {
			t.Fatalf("seed lending: unknown book %q", l.ISBN)
		}
		reader, ok := lib.Readers[l.Reader]
		if !ok {
			t.Fatalf("seed lending: unknown reader %q", l.Reader)
		}
		saved, err := lendings.Create(ctx, library.Lending{
			BookID:       book.ID,
			ReaderNumber: reader.Number,
			StartDate:    l.StartDate,
			ReturnedDate: l.ReturnedDate,
		})
		if err != nil {
			t.Fatalf("seed lending %s/%s: %v", l.ISBN, l.Reader, err)
		}
		lib.Lendings = append(lib.Lendings, saved)
	}

	return lib
}
