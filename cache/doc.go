// Package cache defines the contracts shared by the cache-aside repositories and
// the key-value backends they run on.
//
// # Overview
//
// The package exports:
//
//   - KV: the hash, string and set operations a backend must provide
//   - Record and Mapper: the flat string form of an entity and its codec
//   - Keys: the key naming scheme used by every aggregate
//   - Error: the error type every cache failure is reported as
//
// # Key Naming
//
// All keys of an aggregate share its prefix:
//
//	book:42                  primary hash of book 42
//	book:isbn:9780306406157  unique mapping, value is the primary key
//	book:title:dune          lookup set of primary keys
//	genre:all                whole-aggregate set
//
// Textual values are normalized with Normalize(v, true) (trimmed, lower-cased) and
// id-based values with Normalize(v, false) (trimmed). The same normalization must
// be used when writing, reading and evicting an entry.
//
// Lookup sets that were filled from a complete source result carry SealMarker as a
// member. A set without the marker only reflects side effects of individual writes
// and is never served as a complete answer.
//
// # Error Handling
//
// Backends return plain errors; stores wrap them with Wrap so callers can tell
// cache failures apart with IsCacheError. The cache is never authoritative, so a
// cache failure is never worth failing a request over.
//
// # See Also
//
// The generic store and coordinator live in the repositorycache package; the Redis
// and in-process backends live in internal/cacheinfra.
package cache
