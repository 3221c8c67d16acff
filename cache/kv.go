package cache

import (
	"context"
	"time"
)

// Record is the flat, string keyed form of an entity stored in a primary hash.
type Record map[string]string

// Mapper converts an entity to and from its Record.
// FromRecord returns false when a required field is missing or malformed.
type Mapper[T any] interface {
	ToRecord(entity T) Record
	FromRecord(record Record) (T, bool)
}

// KV is the key-value surface the hash store needs from a cache backend.
// Implementations must be safe for concurrent use.
type KV interface {
	// HSet replaces the hash at key with fields and applies ttl.
	HSet(ctx context.Context, key string, fields Record, ttl time.Duration) error
	// HGetAll returns the hash at key; a missing key yields an empty record.
	HGetAll(ctx context.Context, key string) (Record, error)

	// Set stores a plain string value with ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns (value, true, nil) on hit and ("", false, nil) on miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// SAdd adds members to the set at key and refreshes its ttl.
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	// SMembers returns the members of the set; a missing key yields no members.
	SMembers(ctx context.Context, key string) ([]string, error)
	// SRem removes members from the set at key.
	SRem(ctx context.Context, key string, members ...string) error

	// Del removes keys of any kind. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Close releases resources owned by the backend.
	Close() error
}
