package repositorycache

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-library-cache/cache"
)

// PrimaryIndex names the unique lookup by primary key. It never needs a mapping
// entry: the key is the primary key itself.
const PrimaryIndex = "pk"

// Schema describes how one aggregate is laid out in the cache.
type Schema[T any] struct {
	// Name is the aggregate name and key prefix, e.g. "book".
	Name string
	// TTL applies to the primary hash and every index entry of the aggregate.
	TTL    time.Duration
	Mapper cache.Mapper[T]
	// PrimaryKey returns the cache form of the primary key and false when the
	// entity has not been persisted yet.
	PrimaryKey func(T) (string, bool)
	// Compare orders results read from lookup sets. Nil keeps set order.
	Compare func(a, b T) int
	Unique  []UniqueIndex[T]
	Lookup  []LookupIndex[T]
}

// UniqueIndex maps one alternate key value to a primary key.
type UniqueIndex[T any] struct {
	Name string
	Fold bool
	// Value returns the key of the entity; "" means absent and is never indexed.
	Value func(T) string
}

// LookupIndex maps one value to the set of primary keys sharing it.
type LookupIndex[T any] struct {
	Name string
	Fold bool
	// Whole indexes every entity under the bare selector key (e.g. genre:all).
	Whole bool
	// Values returns the set values the entity belongs to. Blank values are skipped.
	Values func(T) []string
	// Query maps a normalized query to the set that holds its candidates. Nil
	// means the query is the set value. A query mapped to a different set is
	// served from it but never seals it.
	Query func(query string) string
	// Match reports whether a cached entity still answers the normalized query.
	// Nil compares the normalized Values against the query.
	Match func(entity T, query string) bool
}

// Validate reports schema mistakes that would otherwise surface as silent misses.
func (s Schema[T]) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.TTL <= 0 {
		errs = append(errs, errors.New("ttl must be greater than 0"))
	}
	if s.Mapper == nil {
		errs = append(errs, errors.New("mapper is required"))
	}
	if s.PrimaryKey == nil {
		errs = append(errs, errors.New("primary key accessor is required"))
	}

	seen := map[string]bool{PrimaryIndex: true}
	for _, idx := range s.Unique {
		if idx.Name == "" || seen[idx.Name] {
			errs = append(errs, fmt.Errorf("unique index %q: name must be unique and not %q", idx.Name, PrimaryIndex))
		}
		if idx.Value == nil {
			errs = append(errs, fmt.Errorf("unique index %q: value accessor is required", idx.Name))
		}
		seen[idx.Name] = true
	}
	for _, idx := range s.Lookup {
		if idx.Name == "" || seen[idx.Name] {
			errs = append(errs, fmt.Errorf("lookup index %q: name must be unique and not %q", idx.Name, PrimaryIndex))
		}
		if idx.Values == nil && !idx.Whole {
			errs = append(errs, fmt.Errorf("lookup index %q: values accessor is required", idx.Name))
		}
		seen[idx.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("schema %q: %w", s.Name, errors.Join(errs...))
	}
	return nil
}
