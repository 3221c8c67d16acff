package repositorycache

import (
	"context"
	"errors"
	"slices"

	"github.com/goliatone/go-library-cache/cache"
)

// Store is the cache side of a CachedRepository. Every error it returns is a
// *cache.Error.
type Store[T any] interface {
	Get(ctx context.Context, index, key string) (T, bool, error)
	GetMany(ctx context.Context, index, value string) ([]T, bool, error)
	Put(ctx context.Context, entity T) (T, error)
	Evict(ctx context.Context, entity T) error
	Seal(ctx context.Context, index, value string, entities []T) error
}

var _ Store[any] = (*HashStore[any])(nil)

// HashStore keeps each entity in a primary hash and maintains the unique and
// lookup indexes declared by its schema on top of a cache.KV.
//
// Writes are a sequence of independent KV calls. Reads never trust an index
// blindly: the hash it points at must exist, decode and still carry the indexed
// value, otherwise the read is a miss and the stale entry is dropped.
type HashStore[T any] struct {
	kv     cache.KV
	schema Schema[T]
	keys   cache.Keys
	unique map[string]UniqueIndex[T]
	lookup map[string]LookupIndex[T]
}

// NewHashStore validates the schema and returns a store over kv.
func NewHashStore[T any](kv cache.KV, schema Schema[T]) (*HashStore[T], error) {
	if kv == nil {
		return nil, errors.New("repositorycache: kv is required")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	s := &HashStore[T]{
		kv:     kv,
		schema: schema,
		keys:   cache.NewKeys(schema.Name),
		unique: make(map[string]UniqueIndex[T], len(schema.Unique)),
		lookup: make(map[string]LookupIndex[T], len(schema.Lookup)),
	}
	for _, idx := range schema.Unique {
		s.unique[idx.Name] = idx
	}
	for _, idx := range schema.Lookup {
		s.lookup[idx.Name] = idx
	}
	return s, nil
}

// Schema returns the schema the store was built with.
func (s *HashStore[T]) Schema() Schema[T] {
	return s.schema
}

// Get resolves a unique key to its entity. PrimaryIndex reads the hash directly.
func (s *HashStore[T]) Get(ctx context.Context, index, key string) (T, bool, error) {
	var zero T

	if index == PrimaryIndex {
		pk := cache.Normalize(key, false)
		if pk == "" {
			return zero, false, nil
		}
		return s.load(ctx, pk)
	}

	idx, ok := s.unique[index]
	if !ok {
		return zero, false, cache.Wrap("get", index, cache.ErrUnknownIndex)
	}

	value := cache.Normalize(key, idx.Fold)
	if value == "" {
		return zero, false, nil
	}

	mapping := s.keys.Index(idx.Name, value)
	pk, ok, err := s.kv.Get(ctx, mapping)
	if err != nil {
		return zero, false, cache.Wrap("get", mapping, err)
	}
	if !ok {
		return zero, false, nil
	}

	entity, ok, err := s.load(ctx, pk)
	if err != nil {
		return zero, false, err
	}
	if !ok || cache.Normalize(idx.Value(entity), idx.Fold) != value {
		s.drop(ctx, mapping)
		return zero, false, nil
	}
	return entity, true, nil
}

// GetMany resolves a lookup value to its entities. Only sealed sets are served,
// and a set with a member whose hash is gone is a miss: a partial list is never
// returned as a complete one.
func (s *HashStore[T]) GetMany(ctx context.Context, index, value string) ([]T, bool, error) {
	idx, ok := s.lookup[index]
	if !ok {
		return nil, false, cache.Wrap("getmany", index, cache.ErrUnknownIndex)
	}

	query, setValue, setKey, ok := s.lookupKey(idx, value)
	if !ok {
		return nil, false, nil
	}

	members, err := s.kv.SMembers(ctx, setKey)
	if err != nil {
		return nil, false, cache.Wrap("getmany", setKey, err)
	}
	if !slices.Contains(members, cache.SealMarker) {
		return nil, false, nil
	}

	out := make([]T, 0, len(members)-1)
	var moved []string
	for _, pk := range members {
		if pk == cache.SealMarker {
			continue
		}
		entity, ok, err := s.load(ctx, pk)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			s.drop(ctx, setKey)
			return nil, false, nil
		}
		if !s.belongs(idx, entity, setValue) {
			moved = append(moved, pk)
			continue
		}
		if s.matches(idx, entity, query) {
			out = append(out, entity)
		}
	}

	if len(moved) > 0 {
		_ = s.kv.SRem(ctx, setKey, moved...)
	}
	if s.schema.Compare != nil {
		slices.SortFunc(out, s.schema.Compare)
	}
	return out, true, nil
}

// Put writes the primary hash and every populated index entry. An entity without
// a primary key is returned unchanged and nothing is written.
func (s *HashStore[T]) Put(ctx context.Context, entity T) (T, error) {
	pk, ok := s.schema.PrimaryKey(entity)
	if !ok {
		return entity, nil
	}

	ttl := s.schema.TTL
	primary := s.keys.Primary(pk)
	if err := s.kv.HSet(ctx, primary, s.schema.Mapper.ToRecord(entity), ttl); err != nil {
		return entity, cache.Wrap("put", primary, err)
	}

	for _, key := range s.uniqueKeys(entity) {
		if err := s.kv.Set(ctx, key, pk, ttl); err != nil {
			return entity, cache.Wrap("put", key, err)
		}
	}

	for _, idx := range s.schema.Lookup {
		for _, key := range s.lookupKeys(idx, entity) {
			if err := s.kv.SAdd(ctx, key, ttl, pk); err != nil {
				return entity, cache.Wrap("put", key, err)
			}
		}
	}

	return entity, nil
}

// Evict removes the unique mappings, the primary key from every lookup set and
// finally the primary hash. It keeps going after a failure and returns all of
// them joined.
func (s *HashStore[T]) Evict(ctx context.Context, entity T) error {
	pk, ok := s.schema.PrimaryKey(entity)
	if !ok {
		return nil
	}

	var errs []error
	for _, key := range s.uniqueKeys(entity) {
		if err := s.kv.Del(ctx, key); err != nil {
			errs = append(errs, cache.Wrap("evict", key, err))
		}
	}

	for _, idx := range s.schema.Lookup {
		for _, key := range s.lookupKeys(idx, entity) {
			if err := s.kv.SRem(ctx, key, pk); err != nil {
				errs = append(errs, cache.Wrap("evict", key, err))
			}
		}
	}

	primary := s.keys.Primary(pk)
	if err := s.kv.Del(ctx, primary); err != nil {
		errs = append(errs, cache.Wrap("evict", primary, err))
	}

	return errors.Join(errs...)
}

// Seal marks the lookup set of value as complete and adds the primary keys of
// entities to it. Callers seal only after every entity was put successfully.
func (s *HashStore[T]) Seal(ctx context.Context, index, value string, entities []T) error {
	idx, ok := s.lookup[index]
	if !ok {
		return cache.Wrap("seal", index, cache.ErrUnknownIndex)
	}

	query, setValue, setKey, ok := s.lookupKey(idx, value)
	if !ok || query != setValue {
		return nil
	}

	members := make([]string, 0, len(entities)+1)
	members = append(members, cache.SealMarker)
	for _, entity := range entities {
		if pk, ok := s.schema.PrimaryKey(entity); ok {
			members = append(members, pk)
		}
	}

	return cache.Wrap("seal", setKey, s.kv.SAdd(ctx, setKey, s.schema.TTL, members...))
}

func (s *HashStore[T]) load(ctx context.Context, pk string) (T, bool, error) {
	var zero T

	key := s.keys.Primary(pk)
	record, err := s.kv.HGetAll(ctx, key)
	if err != nil {
		return zero, false, cache.Wrap("get", key, err)
	}
	if len(record) == 0 {
		return zero, false, nil
	}

	entity, ok := s.schema.Mapper.FromRecord(record)
	if !ok {
		s.drop(ctx, key)
		return zero, false, nil
	}
	if got, ok := s.schema.PrimaryKey(entity); !ok || got != pk {
		s.drop(ctx, key)
		return zero, false, nil
	}
	return entity, true, nil
}

// drop deletes a stale or corrupt entry. Failures are ignored; the entry expires
// with its ttl anyway.
func (s *HashStore[T]) drop(ctx context.Context, key string) {
	_ = s.kv.Del(ctx, key)
}

func (s *HashStore[T]) uniqueKeys(entity T) []string {
	keys := make([]string, 0, len(s.schema.Unique))
	for _, idx := range s.schema.Unique {
		value := cache.Normalize(idx.Value(entity), idx.Fold)
		if value == "" {
			continue
		}
		keys = append(keys, s.keys.Index(idx.Name, value))
	}
	return keys
}

func (s *HashStore[T]) lookupKeys(idx LookupIndex[T], entity T) []string {
	if idx.Whole {
		return []string{s.keys.Index(idx.Name, "")}
	}

	values := idx.Values(entity)
	keys := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = cache.Normalize(v, idx.Fold)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		keys = append(keys, s.keys.Index(idx.Name, v))
	}
	return keys
}

// lookupKey returns the normalized query, the set value holding its candidates
// and that set's key. The set belongs to exactly this query when both values
// are equal.
func (s *HashStore[T]) lookupKey(idx LookupIndex[T], value string) (string, string, string, bool) {
	if idx.Whole {
		return "", "", s.keys.Index(idx.Name, ""), true
	}

	query := cache.Normalize(value, idx.Fold)
	if query == "" {
		return "", "", "", false
	}

	setValue := query
	if idx.Query != nil {
		setValue = idx.Query(query)
	}
	return query, setValue, s.keys.Index(idx.Name, setValue), true
}

// belongs reports whether entity is still indexed under setValue.
func (s *HashStore[T]) belongs(idx LookupIndex[T], entity T, setValue string) bool {
	if idx.Whole {
		return true
	}
	for _, v := range idx.Values(entity) {
		if cache.Normalize(v, idx.Fold) == setValue {
			return true
		}
	}
	return false
}

func (s *HashStore[T]) matches(idx LookupIndex[T], entity T, query string) bool {
	if idx.Whole {
		return true
	}
	if idx.Match != nil {
		return idx.Match(entity, query)
	}
	return s.belongs(idx, entity, query)
}
