package librarycache

import (
	"context"
	"time"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/goliatone/go-library-cache/library"
	"github.com/goliatone/go-library-cache/repositorycache"
)

// NewBookStore returns the hash store for books over kv.
func NewBookStore(kv cache.KV) (*repositorycache.HashStore[library.Book], error) {
	return repositorycache.NewHashStore(kv, BookSchema())
}

// BookRepository is the cache-aside repository for books.
type BookRepository struct {
	cached *repositorycache.CachedRepository[library.Book]
	source BookSource
}

// NewBookRepository wires source and store behind the cache-aside protocol.
func NewBookRepository(source BookSource, store repositorycache.Store[library.Book], opts ...repositorycache.Option) *BookRepository {
	return &BookRepository{
		cached: repositorycache.New(BookAggregate, bookSource(source), store, opts...),
		source: source,
	}
}

func (r *BookRepository) FindByISBN(ctx context.Context, isbn string) (library.Book, bool, error) {
	return r.cached.FindByUniqueKey(ctx, IndexISBN, isbn)
}

func (r *BookRepository) FindByTitle(ctx context.Context, title string) ([]library.Book, error) {
	return r.cached.FindByLookupKey(ctx, IndexTitle, title)
}

func (r *BookRepository) FindByGenre(ctx context.Context, genre string) ([]library.Book, error) {
	return r.cached.FindByLookupKey(ctx, IndexGenre, genre)
}

// FindByAuthorName returns the books that list an author with exactly this name.
func (r *BookRepository) FindByAuthorName(ctx context.Context, name string) ([]library.Book, error) {
	return r.cached.FindByLookupKey(ctx, IndexAuthorName, name)
}

func (r *BookRepository) FindByAuthorNumber(ctx context.Context, number int64) ([]library.Book, error) {
	return r.cached.FindByLookupKey(ctx, IndexAuthorID, formatInt(number))
}

func (r *BookRepository) Save(ctx context.Context, b library.Book) (library.Book, error) {
	return r.cached.Save(ctx, b)
}

func (r *BookRepository) Delete(ctx context.Context, b library.Book) error {
	return r.cached.Delete(ctx, b)
}

// TopLent returns the most lent books since the given time. Always served by
// the source.
func (r *BookRepository) TopLent(ctx context.Context, since time.Time, limit int) ([]library.BookLendings, error) {
	return r.source.TopLent(ctx, since, limit)
}

// Search filters books on several fields at once. Always served by the source.
func (r *BookRepository) Search(ctx context.Context, q library.BookQuery) ([]library.Book, error) {
	return r.source.Search(ctx, q)
}
