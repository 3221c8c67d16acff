package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds configuration for the circuit breaker in front of a KV.
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts are reset.
	Interval time.Duration
	// Timeout before an open breaker lets a probe through.
	Timeout time.Duration
	// FailureThreshold is the failure ratio that trips the breaker once
	// MinRequests have been seen.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a breaker that opens after half of at least ten
// calls failed and probes again after five seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          5 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      10,
	}
}

// Validate checks if the configuration values are valid.
func (c BreakerConfig) Validate() error {
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		return &ConfigError{Field: "FailureThreshold", Message: "must be in (0, 1]"}
	}
	if c.Interval < 0 {
		return &ConfigError{Field: "Interval", Message: "must be non-negative"}
	}
	if c.Timeout < 0 {
		return &ConfigError{Field: "Timeout", Message: "must be non-negative"}
	}
	return nil
}

// StateChangeFunc is notified when the breaker changes state.
type StateChangeFunc func(name string, from, to gobreaker.State)

// BreakerKV fails fast while the wrapped KV keeps failing. Open-state
// rejections surface as gobreaker.ErrOpenState and gobreaker.ErrTooManyRequests.
type BreakerKV struct {
	next cache.KV
	cb   *gobreaker.CircuitBreaker
}

var _ cache.KV = (*BreakerKV)(nil)

// NewBreakerKV wraps next in a circuit breaker. onChange may be nil.
func NewBreakerKV(next cache.KV, cfg BreakerConfig, onChange StateChangeFunc) (*BreakerKV, error) {
	if next == nil {
		return nil, errors.New("cacheinfra: breaker needs a kv")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		// Callers giving up and misuse of a key say nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrWrongType)
		},
	}
	if onChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from, to)
		}
	}

	return &BreakerKV{next: next, cb: gobreaker.NewCircuitBreaker(settings)}, nil
}

// State returns the current breaker state.
func (b *BreakerKV) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerKV) HSet(ctx context.Context, key string, fields cache.Record, ttl time.Duration) error {
	return b.run(func() error { return b.next.HSet(ctx, key, fields, ttl) })
}

func (b *BreakerKV) HGetAll(ctx context.Context, key string) (cache.Record, error) {
	var out cache.Record
	err := b.run(func() (err error) {
		out, err = b.next.HGetAll(ctx, key)
		return err
	})
	if err != nil {
		return cache.Record{}, err
	}
	return out, nil
}

func (b *BreakerKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.run(func() error { return b.next.Set(ctx, key, value, ttl) })
}

func (b *BreakerKV) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.run(func() (err error) {
		value, found, err = b.next.Get(ctx, key)
		return err
	})
	return value, found, err
}

func (b *BreakerKV) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	return b.run(func() error { return b.next.SAdd(ctx, key, ttl, members...) })
}

func (b *BreakerKV) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := b.run(func() (err error) {
		out, err = b.next.SMembers(ctx, key)
		return err
	})
	return out, err
}

func (b *BreakerKV) SRem(ctx context.Context, key string, members ...string) error {
	return b.run(func() error { return b.next.SRem(ctx, key, members...) })
}

func (b *BreakerKV) Del(ctx context.Context, keys ...string) error {
	return b.run(func() error { return b.next.Del(ctx, keys...) })
}

// Close closes the wrapped KV regardless of the breaker state.
func (b *BreakerKV) Close() error {
	return b.next.Close()
}

func (b *BreakerKV) run(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}
