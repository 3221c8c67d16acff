package repositorycache

import (
	"context"
)

// CachedRepository puts a cache-aside layer in front of a source store.
//
// Reads go to the cache first and fall back to the source; writes go to the
// source first and then refresh or evict the cache. Cache failures are logged,
// reported to the hooks and dropped. Source failures are returned unchanged and
// no cache operation follows them.
type CachedRepository[T any] struct {
	name   string
	source Source[T]
	store  Store[T]
	log    Logger
	hooks  Hooks
}

type options struct {
	log   Logger
	hooks Hooks
}

// Option configures a CachedRepository.
type Option func(*options)

// WithLogger sets the logger used for swallowed cache failures.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithHooks sets the event hooks.
func WithHooks(h Hooks) Option {
	return func(o *options) {
		if h != nil {
			o.hooks = h
		}
	}
}

// New creates a CachedRepository for the aggregate name over source and store.
func New[T any](name string, source Source[T], store Store[T], opts ...Option) *CachedRepository[T] {
	o := options{log: NopLogger{}, hooks: NopHooks{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &CachedRepository[T]{
		name:   name,
		source: source,
		store:  store,
		log:    o.log,
		hooks:  o.hooks,
	}
}

// Name returns the aggregate name.
func (c *CachedRepository[T]) Name() string {
	return c.name
}

// FindByUniqueKey returns the entity whose unique key index equals key.
// A cache hit never touches the source nor rewrites the cache.
func (c *CachedRepository[T]) FindByUniqueKey(ctx context.Context, index, key string) (T, bool, error) {
	var zero T
	op := "find_by_" + index

	entity, ok, err := c.store.Get(ctx, index, key)
	switch {
	case err != nil:
		c.cacheFailed(op, key, err)
	case ok:
		c.hooks.CacheHit(c.name, op)
		return entity, true, nil
	default:
		c.hooks.CacheMiss(c.name, op)
	}

	c.hooks.SourceCall(c.name, op)
	entity, ok, err = c.source.FindByUniqueKey(ctx, index, key)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	c.put(ctx, op, entity)
	return entity, true, nil
}

// FindByLookupKey returns every entity whose lookup index holds value.
// On a miss each source entity is cached on its own; one failing put does not
// stop the others, but it keeps the lookup set from being sealed.
func (c *CachedRepository[T]) FindByLookupKey(ctx context.Context, index, value string) ([]T, error) {
	op := "find_by_" + index

	entities, ok, err := c.store.GetMany(ctx, index, value)
	switch {
	case err != nil:
		c.cacheFailed(op, value, err)
	case ok:
		c.hooks.CacheHit(c.name, op)
		return entities, nil
	default:
		c.hooks.CacheMiss(c.name, op)
	}

	c.hooks.SourceCall(c.name, op)
	entities, err = c.source.FindByLookupKey(ctx, index, value)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return entities, nil
	}

	complete := true
	for _, entity := range entities {
		if !c.put(ctx, op, entity) {
			complete = false
		}
	}
	if complete {
		if err := c.store.Seal(ctx, index, value, entities); err != nil {
			c.cacheFailed(op, value, err)
		}
	}

	return entities, nil
}

// Save persists entity in the source and caches the value the source returned.
func (c *CachedRepository[T]) Save(ctx context.Context, entity T) (T, error) {
	c.hooks.SourceCall(c.name, "save")
	saved, err := c.source.Save(ctx, entity)
	if err != nil {
		var zero T
		return zero, err
	}

	c.put(ctx, "save", saved)
	return saved, nil
}

// Delete removes entity from the source, then evicts it from the cache.
func (c *CachedRepository[T]) Delete(ctx context.Context, entity T) error {
	c.hooks.SourceCall(c.name, "delete")
	if err := c.source.Delete(ctx, entity); err != nil {
		return err
	}

	if err := c.store.Evict(ctx, entity); err != nil {
		c.cacheFailed("delete", "", err)
	}
	return nil
}

func (c *CachedRepository[T]) put(ctx context.Context, op string, entity T) bool {
	if _, err := c.store.Put(ctx, entity); err != nil {
		c.cacheFailed(op, "", err)
		return false
	}
	return true
}

func (c *CachedRepository[T]) cacheFailed(op, key string, err error) {
	c.hooks.CacheError(c.name, op, err)
	c.log.Warn("cache operation failed, continuing without cache", Fields{
		"aggregate": c.name,
		"op":        op,
		"key":       key,
		"error":     err.Error(),
	})
}
