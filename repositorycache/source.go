package repositorycache

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownSourceIndex is returned by SourceFuncs for an index it has no query for.
var ErrUnknownSourceIndex = errors.New("repositorycache: unknown source index")

// Source is the authoritative store behind a CachedRepository.
type Source[T any] interface {
	FindByUniqueKey(ctx context.Context, index, key string) (T, bool, error)
	FindByLookupKey(ctx context.Context, index, value string) ([]T, error)
	Save(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, entity T) error
}

// SourceFuncs adapts a set of per-index query functions to Source.
type SourceFuncs[T any] struct {
	Unique     map[string]func(ctx context.Context, key string) (T, bool, error)
	Lookup     map[string]func(ctx context.Context, value string) ([]T, error)
	SaveFunc   func(ctx context.Context, entity T) (T, error)
	DeleteFunc func(ctx context.Context, entity T) error
}

var _ Source[any] = SourceFuncs[any]{}

func (s SourceFuncs[T]) FindByUniqueKey(ctx context.Context, index, key string) (T, bool, error) {
	fn, ok := s.Unique[index]
	if !ok {
		var zero T
		return zero, false, fmt.Errorf("%w: %q", ErrUnknownSourceIndex, index)
	}
	return fn(ctx, key)
}

func (s SourceFuncs[T]) FindByLookupKey(ctx context.Context, index, value string) ([]T, error) {
	fn, ok := s.Lookup[index]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceIndex, index)
	}
	return fn(ctx, value)
}

func (s SourceFuncs[T]) Save(ctx context.Context, entity T) (T, error) {
	return s.SaveFunc(ctx, entity)
}

func (s SourceFuncs[T]) Delete(ctx context.Context, entity T) error {
	return s.DeleteFunc(ctx, entity)
}
