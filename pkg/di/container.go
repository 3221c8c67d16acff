package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/goliatone/go-library-cache/config"
	"github.com/goliatone/go-library-cache/internal/cacheinfra"
	"github.com/goliatone/go-library-cache/internal/sqlstore"
	"github.com/goliatone/go-library-cache/librarycache"
	logruslog "github.com/goliatone/go-library-cache/log/logrus"
	zaplog "github.com/goliatone/go-library-cache/log/zap"
	"github.com/goliatone/go-library-cache/metrics"
	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BreakerName names the circuit breaker in front of the cache backend.
const BreakerName = "cache"

// Container wires the relational source, the cache backend and the four cached
// repositories from a config.Config. It owns what it creates and releases it
// on Close.
type Container struct {
	config  config.Config
	db      *bun.DB
	kv      cache.KV
	breaker *cacheinfra.BreakerKV
	logger  repositorycache.Logger
	metrics *metrics.Hooks

	books    *librarycache.BookRepository
	authors  *librarycache.AuthorRepository
	genres   *librarycache.GenreRepository
	readers  *librarycache.ReaderRepository
	lendings *sqlstore.LendingStore

	closers []func() error
}

type options struct {
	db         *bun.DB
	kv         cache.KV
	logger     repositorycache.Logger
	registerer prometheus.Registerer
	readerOpts []sqlstore.ReaderOption
}

// Option customizes a Container.
type Option func(*options)

// WithDB uses db instead of opening the configured source. The container does
// not close it.
func WithDB(db *bun.DB) Option {
	return func(o *options) { o.db = db }
}

// WithKV uses kv instead of building the configured backend. The container
// does not close it.
func WithKV(kv cache.KV) Option {
	return func(o *options) { o.kv = kv }
}

// WithLogger overrides the configured logger.
func WithLogger(l repositorycache.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the metrics with reg instead of the default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithReaderOptions passes options to the reader source, e.g. a fixed clock.
func WithReaderOptions(opts ...sqlstore.ReaderOption) Option {
	return func(o *options) { o.readerOpts = append(o.readerOpts, opts...) }
}

// NewContainer validates cfg and builds every component.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("di: invalid config: %w", err)
	}

	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{config: cfg}
	if err := c.build(o); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults builds a container from config.Default.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(config.Default(), opts...)
}

func (c *Container) build(o options) error {
	c.logger = o.logger
	if c.logger == nil {
		l, closeLog, err := newLogger(c.config.Log)
		if err != nil {
			return err
		}
		c.logger = l
		c.closers = append(c.closers, closeLog)
	}

	c.db = o.db
	if c.db == nil {
		db, err := sqlstore.Open(c.config.Source.Driver, c.config.Source.DSN)
		if err != nil {
			return err
		}
		c.db = db
		c.closers = append(c.closers, db.Close)
	}

	var hooks repositorycache.Hooks = repositorycache.NopHooks{}
	if c.config.Metrics.Enabled {
		m, err := metrics.NewHooks(c.config.Metrics.Namespace, o.registerer)
		if err != nil {
			return fmt.Errorf("di: register metrics: %w", err)
		}
		c.metrics = m
		hooks = m
	}

	c.kv = o.kv
	if c.kv == nil {
		kv, err := newKV(c.config.Cache)
		if err != nil {
			return err
		}
		c.kv = kv
		c.closers = append(c.closers, kv.Close)
	}

	if b := c.config.Cache.Breaker; b.Enabled {
		breaker, err := cacheinfra.NewBreakerKV(c.kv, cacheinfra.BreakerConfig{
			Name:             BreakerName,
			MaxRequests:      b.MaxRequests,
			Interval:         b.Interval,
			Timeout:          b.Timeout,
			FailureThreshold: b.FailureThreshold,
			MinRequests:      b.MinRequests,
		}, c.breakerChanged)
		if err != nil {
			return fmt.Errorf("di: cache breaker: %w", err)
		}
		c.breaker = breaker
		c.kv = breaker
	}

	repoOpts := []repositorycache.Option{
		repositorycache.WithLogger(c.logger),
		repositorycache.WithHooks(hooks),
	}

	bookStore, err := librarycache.NewBookStore(c.kv)
	if err != nil {
		return err
	}
	authorStore, err := librarycache.NewAuthorStore(c.kv)
	if err != nil {
		return err
	}
	genreStore, err := librarycache.NewGenreStore(c.kv)
	if err != nil {
		return err
	}
	readerStore, err := librarycache.NewReaderStore(c.kv)
	if err != nil {
		return err
	}

	c.books = librarycache.NewBookRepository(sqlstore.NewBookStore(c.db), bookStore, repoOpts...)
	c.authors = librarycache.NewAuthorRepository(sqlstore.NewAuthorStore(c.db), authorStore, repoOpts...)
	c.genres = librarycache.NewGenreRepository(sqlstore.NewGenreStore(c.db), genreStore, repoOpts...)
	c.readers = librarycache.NewReaderRepository(sqlstore.NewReaderStore(c.db, o.readerOpts...), readerStore, repoOpts...)
	c.lendings = sqlstore.NewLendingStore(c.db)
	return nil
}

func (c *Container) breakerChanged(name string, from, to gobreaker.State) {
	c.logger.Warn("cache breaker changed state", repositorycache.Fields{
		"breaker": name,
		"from":    from.String(),
		"to":      to.String(),
	})
	if c.metrics != nil {
		c.metrics.BreakerStateChanged(name, from, to)
	}
}

// Migrate creates the source tables.
func (c *Container) Migrate(ctx context.Context) error {
	return sqlstore.Migrate(ctx, c.db)
}

// Close releases everything the container created, in reverse order.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) Config() config.Config                   { return c.config }
func (c *Container) DB() *bun.DB                             { return c.db }
func (c *Container) KV() cache.KV                            { return c.kv }
func (c *Container) Logger() repositorycache.Logger          { return c.logger }
func (c *Container) Books() *librarycache.BookRepository     { return c.books }
func (c *Container) Authors() *librarycache.AuthorRepository { return c.authors }
func (c *Container) Genres() *librarycache.GenreRepository   { return c.genres }
func (c *Container) Readers() *librarycache.ReaderRepository { return c.readers }
func (c *Container) Lendings() *sqlstore.LendingStore        { return c.lendings }

// BreakerState reports the cache breaker state. It is closed when the breaker
// is disabled.
func (c *Container) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

func newKV(cfg config.CacheConfig) (cache.KV, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := cacheinfra.NewRedisClient(cacheinfra.RedisConfig{
			Addrs:        cfg.Redis.Addrs,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("di: redis: %w", err)
		}
		kv, err := cacheinfra.NewRedisKV(client,
			cacheinfra.WithOperationTimeout(cfg.Timeout),
			cacheinfra.WithOwnedClient(),
		)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("di: redis: %w", err)
		}
		return kv, nil
	case config.BackendMemory:
		kv, err := cacheinfra.NewSturdycKV(cacheinfra.Config{
			Capacity:           cfg.Memory.Capacity,
			NumShards:          cfg.Memory.NumShards,
			MaxTTL:             cfg.Memory.MaxTTL,
			EvictionPercentage: cfg.Memory.EvictionPercentage,
			EvictionInterval:   cfg.Memory.EvictionInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("di: memory cache: %w", err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("di: unknown cache backend %q", cfg.Backend)
	}
}

func newLogger(cfg config.LogConfig) (repositorycache.Logger, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.LogZap:
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("di: log level: %w", err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(level)
		l, err := zc.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("di: zap logger: %w", err)
		}
		// Sync fails on stderr for some terminals; it is not worth failing Close for.
		return zaplog.New(l), func() error { _ = l.Sync(); return nil }, nil
	case config.LogLogrus:
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("di: log level: %w", err)
		}
		l := logrus.New()
		l.SetLevel(level)
		l.SetFormatter(&logrus.JSONFormatter{})
		return logruslog.New(l), noop, nil
	default:
		return repositorycache.NopLogger{}, noop, nil
	}
}
