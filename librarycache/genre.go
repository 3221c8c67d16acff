package librarycache

import (
	"context"
	"time"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/goliatone/go-library-cache/library"
	"github.com/goliatone/go-library-cache/repositorycache"
)

// NewGenreStore returns the hash store for genres over kv.
func NewGenreStore(kv cache.KV) (*repositorycache.HashStore[library.Genre], error) {
	return repositorycache.NewHashStore(kv, GenreSchema())
}

// GenreRepository is the cache-aside repository for genres. The full genre list
// is cached as a whole.
type GenreRepository struct {
	cached *repositorycache.CachedRepository[library.Genre]
	source GenreSource
}

func NewGenreRepository(source GenreSource, store repositorycache.Store[library.Genre], opts ...repositorycache.Option) *GenreRepository {
	return &GenreRepository{
		cached: repositorycache.New(GenreAggregate, genreSource(source), store, opts...),
		source: source,
	}
}

func (r *GenreRepository) FindByName(ctx context.Context, name string) (library.Genre, bool, error) {
	return r.cached.FindByUniqueKey(ctx, IndexName, name)
}

// FindAll returns every genre ordered by name.
func (r *GenreRepository) FindAll(ctx context.Context) ([]library.Genre, error) {
	return r.cached.FindByLookupKey(ctx, IndexAll, "")
}

func (r *GenreRepository) Save(ctx context.Context, g library.Genre) (library.Genre, error) {
	return r.cached.Save(ctx, g)
}

func (r *GenreRepository) Delete(ctx context.Context, g library.Genre) error {
	return r.cached.Delete(ctx, g)
}

func (r *GenreRepository) TopByBookCount(ctx context.Context, limit int) ([]library.GenreBookCount, error) {
	return r.source.TopByBookCount(ctx, limit)
}

// LendingsPerMonth counts lendings per genre and calendar month in [from, to).
func (r *GenreRepository) LendingsPerMonth(ctx context.Context, from, to time.Time) ([]library.GenreMonthLendings, error) {
	return r.source.LendingsPerMonth(ctx, from, to)
}

func (r *GenreRepository) AverageLendingsPerMonth(ctx context.Context, from, to time.Time) ([]library.GenreAverageLendings, error) {
	return r.source.AverageLendingsPerMonth(ctx, from, to)
}
