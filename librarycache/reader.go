package librarycache

import (
	"context"
	"time"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/goliatone/go-library-cache/library"
	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/google/uuid"
)

// NewReaderStore returns the hash store for readers over kv.
func NewReaderStore(kv cache.KV) (*repositorycache.HashStore[library.Reader], error) {
	return repositorycache.NewHashStore(kv, ReaderSchema())
}

// ReaderRepository is the cache-aside repository for readers.
type ReaderRepository struct {
	cached *repositorycache.CachedRepository[library.Reader]
	source ReaderSource
}

func NewReaderRepository(source ReaderSource, store repositorycache.Store[library.Reader], opts ...repositorycache.Option) *ReaderRepository {
	return &ReaderRepository{
		cached: repositorycache.New(ReaderAggregate, readerSource(source), store, opts...),
		source: source,
	}
}

// FindByNumber looks a reader up by reader number, e.g. "2024/17".
func (r *ReaderRepository) FindByNumber(ctx context.Context, number string) (library.Reader, bool, error) {
	return r.cached.FindByUniqueKey(ctx, repositorycache.PrimaryIndex, number)
}

func (r *ReaderRepository) FindByUsername(ctx context.Context, username string) (library.Reader, bool, error) {
	return r.cached.FindByUniqueKey(ctx, IndexUsername, username)
}

func (r *ReaderRepository) FindByUserID(ctx context.Context, id uuid.UUID) (library.Reader, bool, error) {
	if id == uuid.Nil {
		return library.Reader{}, false, nil
	}
	return r.cached.FindByUniqueKey(ctx, IndexUserID, id.String())
}

func (r *ReaderRepository) FindByPhoneNumber(ctx context.Context, phone string) ([]library.Reader, error) {
	return r.cached.FindByLookupKey(ctx, IndexPhone, phone)
}

func (r *ReaderRepository) Save(ctx context.Context, rd library.Reader) (library.Reader, error) {
	return r.cached.Save(ctx, rd)
}

func (r *ReaderRepository) Delete(ctx context.Context, rd library.Reader) error {
	return r.cached.Delete(ctx, rd)
}

// CountThisYear counts the readers registered in the calendar year of now.
func (r *ReaderRepository) CountThisYear(ctx context.Context, now time.Time) (int64, error) {
	return r.source.CountThisYear(ctx, now)
}

func (r *ReaderRepository) TopReaders(ctx context.Context, since time.Time, limit int) ([]library.ReaderLendings, error) {
	return r.source.TopReaders(ctx, since, limit)
}

func (r *ReaderRepository) TopByGenre(ctx context.Context, genre string, limit int) ([]library.ReaderLendings, error) {
	return r.source.TopByGenre(ctx, genre, limit)
}

func (r *ReaderRepository) Search(ctx context.Context, q library.ReaderQuery) ([]library.Reader, error) {
	return r.source.Search(ctx, q)
}
