// Package repositorycache provides a generic cache-aside repository and the hash
// store it caches into.
//
// # Overview
//
// CachedRepository[T] sits between application services and an authoritative
// Source[T]. It owns the protocol; the per-aggregate parts (key prefix, ttl,
// indexes, record mapping) are data in a Schema[T], so a single implementation
// serves every aggregate.
//
//	store, err := repositorycache.NewHashStore(kv, bookSchema)
//	if err != nil {
//		return err
//	}
//	books := repositorycache.New("book", bookSource, store,
//		repositorycache.WithLogger(logger),
//		repositorycache.WithHooks(hooks),
//	)
//
//	book, ok, err := books.FindByUniqueKey(ctx, "isbn", "9780306406157")
//	fiction, err := books.FindByLookupKey(ctx, "genre", "Fiction")
//
// # Protocol
//
// Reads by unique key:
//
//  1. Ask the store; a hit returns immediately
//  2. On a miss ask the source
//  3. If the source found the entity, put it in the store (best effort)
//
// Reads by lookup key follow the same steps, put every source entity on its own
// and, when all puts succeeded, seal the lookup set so later reads can trust it.
//
// Save writes the source first and caches the value the source returned (which
// carries the assigned key and bumped version). Delete removes the source row
// first and evicts afterwards; the reverse order could leave a cache entry that
// outlives its row.
//
// Queries that filter on several fields, join aggregates or aggregate numbers are
// not part of this package. Repositories built on it route them straight to the
// source.
//
// # Hash Store Layout
//
// HashStore[T] writes, per entity:
//
//   - the primary hash <name>:<pk> holding the mapper's record
//   - one <name>:<index>:<value> -> <pk> string per populated unique index
//   - <pk> added to the <name>:<index>:<value> set per populated lookup value
//
// all with the schema's ttl. None of this is transactional. Every read checks that
// the hash exists, decodes and still carries the indexed value, and treats any
// inconsistency as a miss, so a write interrupted halfway costs a trip to the
// source and nothing else.
//
// # Error Handling
//
// Store errors are *cache.Error values. The repository reports them through
// Logger and Hooks and continues as if the cache had missed. Errors from the
// source, including stale version conflicts, are returned as they are.
//
// # See Also
//
// The key scheme and the KV contract are defined in the cache package. The
// library aggregates are wired in the librarycache package.
package repositorycache
