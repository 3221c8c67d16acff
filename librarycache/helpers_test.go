package librarycache_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-library-cache/library"
	"github.com/goliatone/go-library-cache/repositorycache"
)

var errCacheDown = errors.New("cache down")

// callCounter counts calls by name.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callCounter) track(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[name]++
}

func (c *callCounter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *callCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// recordingStore counts the calls reaching the cache store and can fail puts.
type recordingStore[T any] struct {
	callCounter
	next    repositorycache.Store[T]
	failPut func(T) bool
}

func (s *recordingStore[T]) Get(ctx context.Context, index, key string) (T, bool, error) {
	s.track("get")
	return s.next.Get(ctx, index, key)
}

func (s *recordingStore[T]) GetMany(ctx context.Context, index, value string) ([]T, bool, error) {
	s.track("getmany")
	return s.next.GetMany(ctx, index, value)
}

func (s *recordingStore[T]) Put(ctx context.Context, entity T) (T, error) {
	s.track("put")
	if s.failPut != nil && s.failPut(entity) {
		return entity, errCacheDown
	}
	return s.next.Put(ctx, entity)
}

func (s *recordingStore[T]) Evict(ctx context.Context, entity T) error {
	s.track("evict")
	return s.next.Evict(ctx, entity)
}

func (s *recordingStore[T]) Seal(ctx context.Context, index, value string, entities []T) error {
	s.track("seal")
	return s.next.Seal(ctx, index, value, entities)
}

// fakeBookSource keeps books in memory and counts every call.
type fakeBookSource struct {
	callCounter
	mu     sync.Mutex
	books  map[int64]library.Book
	nextID int64
}

func newFakeBookSource(books ...library.Book) *fakeBookSource {
	s := &fakeBookSource{books: make(map[int64]library.Book)}
	for _, b := range books {
		s.books[b.ID] = b
		s.nextID = max(s.nextID, b.ID)
	}
	return s
}

func (s *fakeBookSource) filter(match func(library.Book) bool) []library.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []library.Book
	for id := int64(1); id <= s.nextID; id++ {
		if b, ok := s.books[id]; ok && match(b) {
			out = append(out, b)
		}
	}
	return out
}

func (s *fakeBookSource) FindByISBN(_ context.Context, isbn string) (library.Book, bool, error) {
	s.track("FindByISBN")
	found := s.filter(func(b library.Book) bool { return b.ISBN == isbn })
	if len(found) == 0 {
		return library.Book{}, false, nil
	}
	return found[0], true, nil
}

func (s *fakeBookSource) FindByTitle(_ context.Context, title string) ([]library.Book, error) {
	s.track("FindByTitle")
	return s.filter(func(b library.Book) bool { return b.Title == title }), nil
}

func (s *fakeBookSource) FindByGenre(_ context.Context, genre string) ([]library.Book, error) {
	s.track("FindByGenre")
	return s.filter(func(b library.Book) bool { return b.Genre == genre }), nil
}

func (s *fakeBookSource) FindByAuthorName(_ context.Context, name string) ([]library.Book, error) {
	s.track("FindByAuthorName")
	return s.filter(func(b library.Book) bool {
		for _, a := range b.Authors {
			if a.Name == name {
				return true
			}
		}
		return false
	}), nil
}

func (s *fakeBookSource) FindByAuthorNumber(_ context.Context, number int64) ([]library.Book, error) {
	s.track("FindByAuthorNumber")
	return s.filter(func(b library.Book) bool {
		for _, a := range b.Authors {
			if a.Number == number {
				return true
			}
		}
		return false
	}), nil
}

func (s *fakeBookSource) Save(_ context.Context, b library.Book) (library.Book, error) {
	s.track("Save")
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		s.nextID++
		b.ID = s.nextID
	}
	b.Version++
	s.books[b.ID] = b
	return b, nil
}

func (s *fakeBookSource) Delete(_ context.Context, b library.Book) error {
	s.track("Delete")
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, b.ID)
	return nil
}

func (s *fakeBookSource) TopLent(context.Context, time.Time, int) ([]library.BookLendings, error) {
	s.track("TopLent")
	return []library.BookLendings{{Book: s.books[1], Lendings: 3}}, nil
}

func (s *fakeBookSource) Search(context.Context, library.BookQuery) ([]library.Book, error) {
	s.track("Search")
	return s.filter(func(library.Book) bool { return true }), nil
}
