package cacheinfra

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrWrongType is returned by every backend when a key holding one kind of
// value is used as another, e.g. reading a set as a hash.
var ErrWrongType = errors.New("cacheinfra: operation against a key holding the wrong kind of value")

// Config holds the configuration for the in-process sturdyc backend.
type Config struct {
	// Capacity defines the maximum number of keys that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// MaxTTL bounds how long sturdyc keeps any key. Every write also carries
	// its own ttl, which must not exceed this value to be honoured in full.
	// Must be greater than 0. Default: 24h
	MaxTTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	// Default: 10
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		MaxTTL:             24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the Config to sturdyc options. Capacity, NumShards,
// MaxTTL and EvictionPercentage are passed to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.MaxTTL <= 0 {
		return &ConfigError{Field: "MaxTTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

type entryKind uint8

const (
	kindString entryKind = iota + 1
	kindHash
	kindSet
)

// entry is the msgpack encoded value stored under every key. Encoding keeps
// callers from mutating what is cached.
type entry struct {
	Kind      entryKind         `msgpack:"k"`
	Value     string            `msgpack:"v,omitempty"`
	Hash      map[string]string `msgpack:"h,omitempty"`
	Members   []string          `msgpack:"m,omitempty"`
	ExpiresAt int64             `msgpack:"e"`
}

func (e entry) expired(now time.Time) bool {
	return e.ExpiresAt > 0 && now.UnixNano() >= e.ExpiresAt
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// SturdycKV is an in-process cache.KV on top of a sturdyc client. It mirrors
// the subset of Redis semantics the hash store relies on: whole-hash replace,
// set union with ttl refresh and per-key expiry.
type SturdycKV struct {
	client *sturdyc.Client[[]byte]
	locks  *xsync.MapOf[string, *keyLock]
	now    func() time.Time
}

var _ cache.KV = (*SturdycKV)(nil)

// NewSturdycKV validates cfg and creates the in-process backend.
func NewSturdycKV(cfg Config) (*SturdycKV, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycKV{
		client: client,
		locks:  xsync.NewMapOf[string, *keyLock](),
		now:    time.Now,
	}, nil
}

func (s *SturdycKV) HSet(ctx context.Context, key string, fields cache.Record, ttl time.Duration) error {
	if len(fields) == 0 {
		return s.Del(ctx, key)
	}
	hash := make(map[string]string, len(fields))
	for k, v := range fields {
		hash[k] = v
	}

	unlock := s.lock(key)
	defer unlock()
	return s.write(key, entry{Kind: kindHash, Hash: hash, ExpiresAt: s.expiresAt(ttl)})
}

func (s *SturdycKV) HGetAll(ctx context.Context, key string) (cache.Record, error) {
	e, ok, err := s.read(key, kindHash)
	if err != nil || !ok {
		return cache.Record{}, err
	}
	return cache.Record(e.Hash), nil
}

func (s *SturdycKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	unlock := s.lock(key)
	defer unlock()
	return s.write(key, entry{Kind: kindString, Value: value, ExpiresAt: s.expiresAt(ttl)})
}

func (s *SturdycKV) Get(ctx context.Context, key string) (string, bool, error) {
	e, ok, err := s.read(key, kindString)
	if err != nil || !ok {
		return "", false, err
	}
	return e.Value, true, nil
}

func (s *SturdycKV) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	unlock := s.lock(key)
	defer unlock()

	e, ok, err := s.read(key, kindSet)
	if err != nil {
		return err
	}
	if !ok {
		e = entry{Kind: kindSet}
	}
	e.Members = union(e.Members, members)
	e.ExpiresAt = s.expiresAt(ttl)
	return s.write(key, e)
}

func (s *SturdycKV) SMembers(ctx context.Context, key string) ([]string, error) {
	e, ok, err := s.read(key, kindSet)
	if err != nil || !ok {
		return nil, err
	}
	return e.Members, nil
}

func (s *SturdycKV) SRem(ctx context.Context, key string, members ...string) error {
	unlock := s.lock(key)
	defer unlock()

	e, ok, err := s.read(key, kindSet)
	if err != nil || !ok {
		return err
	}

	drop := make(map[string]struct{}, len(members))
	for _, m := range members {
		drop[m] = struct{}{}
	}
	kept := e.Members[:0]
	for _, m := range e.Members {
		if _, ok := drop[m]; !ok {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		s.client.Delete(key)
		return nil
	}
	e.Members = kept
	return s.write(key, e)
}

func (s *SturdycKV) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Close is a no-op; the sturdyc client has nothing to release.
func (s *SturdycKV) Close() error {
	return nil
}

// Len returns the number of keys held, expired or not.
func (s *SturdycKV) Len() int {
	return s.client.Size()
}

func (s *SturdycKV) read(key string, kind entryKind) (entry, bool, error) {
	raw, ok := s.client.Get(key)
	if !ok {
		return entry{}, false, nil
	}

	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		s.client.Delete(key)
		return entry{}, false, err
	}
	if e.expired(s.now()) {
		s.client.Delete(key)
		return entry{}, false, nil
	}
	if e.Kind != kind {
		return entry{}, false, ErrWrongType
	}
	return e, true, nil
}

func (s *SturdycKV) write(key string, e entry) error {
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return err
	}
	s.client.Set(key, raw)
	return nil
}

func (s *SturdycKV) expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixNano()
}

// lock serialises read-modify-write cycles on one key. Lock entries are
// reference counted and removed once nobody holds or waits for them.
func (s *SturdycKV) lock(key string) func() {
	l, _ := s.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			old = &keyLock{}
		}
		old.refs++
		return old, false
	})
	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
			old.refs--
			return old, old.refs == 0
		})
	}
}

func union(have, add []string) []string {
	seen := make(map[string]struct{}, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, group := range [][]string{have, add} {
		for _, m := range group {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}
