package librarycache

import (
	"context"
	"time"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/goliatone/go-library-cache/library"
	"github.com/goliatone/go-library-cache/repositorycache"
)

// NewAuthorStore returns the hash store for authors over kv.
func NewAuthorStore(kv cache.KV) (*repositorycache.HashStore[library.Author], error) {
	return repositorycache.NewHashStore(kv, AuthorSchema())
}

// AuthorRepository is the cache-aside repository for authors.
type AuthorRepository struct {
	cached *repositorycache.CachedRepository[library.Author]
	source AuthorSource
}

func NewAuthorRepository(source AuthorSource, store repositorycache.Store[library.Author], opts ...repositorycache.Option) *AuthorRepository {
	return &AuthorRepository{
		cached: repositorycache.New(AuthorAggregate, authorSource(source), store, opts...),
		source: source,
	}
}

func (r *AuthorRepository) FindByNumber(ctx context.Context, number int64) (library.Author, bool, error) {
	return r.cached.FindByUniqueKey(ctx, repositorycache.PrimaryIndex, formatInt(number))
}

// FindByName matches the whole name, ignoring case.
func (r *AuthorRepository) FindByName(ctx context.Context, name string) ([]library.Author, error) {
	return r.cached.FindByLookupKey(ctx, IndexName, name)
}

// FindByNamePrefix returns the authors whose name starts with prefix, ignoring
// case. Prefixes longer than NamePrefixLength runes are answered from the set of
// their first NamePrefixLength runes once that set is cached.
func (r *AuthorRepository) FindByNamePrefix(ctx context.Context, prefix string) ([]library.Author, error) {
	return r.cached.FindByLookupKey(ctx, IndexNamePrefix, prefix)
}

func (r *AuthorRepository) Save(ctx context.Context, a library.Author) (library.Author, error) {
	return r.cached.Save(ctx, a)
}

func (r *AuthorRepository) Delete(ctx context.Context, a library.Author) error {
	return r.cached.Delete(ctx, a)
}

func (r *AuthorRepository) TopByLendings(ctx context.Context, since time.Time, limit int) ([]library.AuthorLendings, error) {
	return r.source.TopByLendings(ctx, since, limit)
}

// CoAuthors returns every author sharing at least one book with the given one.
func (r *AuthorRepository) CoAuthors(ctx context.Context, number int64) ([]library.Author, error) {
	return r.source.CoAuthors(ctx, number)
}
