package di

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-library-cache/config"
	"github.com/goliatone/go-library-cache/internal/cacheinfra"
	"github.com/goliatone/go-library-cache/pkg/testsupport"
	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Log.Backend = config.LogNop
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "test"
	return cfg
}

func newTestContainer(t *testing.T, cfg config.Config, opts ...Option) (*Container, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	opts = append([]Option{WithDB(testsupport.OpenSQLite(t)), WithRegisterer(reg)}, opts...)
	container, err := NewContainer(cfg, opts...)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() { _ = container.Close() })
	return container, reg
}

func TestNewContainer(t *testing.T) {
	container, _ := newTestContainer(t, testConfig())

	if container.Books() == nil || container.Authors() == nil || container.Genres() == nil || container.Readers() == nil {
		t.Fatal("Container should build all four repositories")
	}
	if container.Lendings() == nil {
		t.Error("Container should build the lending store")
	}
	if container.DB() == nil {
		t.Error("Container should expose the database")
	}
	if _, ok := container.KV().(*cacheinfra.BreakerKV); !ok {
		t.Errorf("expected the cache to sit behind a breaker, got %T", container.KV())
	}
	if got := container.BreakerState(); got != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %v", got)
	}
	if container.Config().Cache.Backend != config.BackendMemory {
		t.Errorf("expected memory backend, got %q", container.Config().Cache.Backend)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults(
		WithDB(testsupport.OpenSQLite(t)),
		WithLogger(repositorycache.NopLogger{}),
	)
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	if container.Config().Metrics.Enabled {
		t.Error("metrics should be disabled by default")
	}
	if _, ok := container.Logger().(repositorycache.NopLogger); !ok {
		t.Errorf("expected the injected logger, got %T", container.Logger())
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown backend", func(c *config.Config) { c.Cache.Backend = "memcached" }, "backend"},
		{"unknown driver", func(c *config.Config) { c.Source.Driver = "oracle" }, "driver"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			_, err := NewContainer(cfg, WithRegisterer(prometheus.NewRegistry()))
			if err == nil {
				t.Fatal("expected an error for invalid config")
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.want) {
				t.Errorf("expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNewContainer_DuplicateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	db := testsupport.OpenSQLite(t)

	first, err := NewContainer(testConfig(), WithDB(db), WithRegisterer(reg))
	if err != nil {
		t.Fatalf("first container failed: %v", err)
	}
	defer first.Close()

	if _, err := NewContainer(testConfig(), WithDB(db), WithRegisterer(reg)); err == nil {
		t.Fatal("expected the second registration to fail")
	}
}

func TestContainer_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.Redis.Addrs = []string{mr.Addr()}

	container, reg := newTestContainer(t, cfg)
	lib := testsupport.SeedLibrary(t, container.DB())
	ctx := context.Background()

	omens := lib.Books["9780060853983"]
	for range 2 {
		got, ok, err := container.Books().FindByISBN(ctx, omens.ISBN)
		if err != nil || !ok {
			t.Fatalf("FindByISBN() = %v, %v", ok, err)
		}
		if got.Title != omens.Title {
			t.Errorf("expected %q, got %q", omens.Title, got.Title)
		}
	}

	if !mr.Exists("book:isbn:" + omens.ISBN) {
		t.Error("expected the isbn key in redis")
	}

	if hits := requestCount(t, reg, "find_by_isbn", "hit"); hits != 1 {
		t.Errorf("expected 1 hit, got %v", hits)
	}
}

func TestContainer_BreakerOpensWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.Redis.Addrs = []string{mr.Addr()}
	cfg.Cache.Redis.DialTimeout = 100 * time.Millisecond
	cfg.Cache.Breaker.MinRequests = 2
	cfg.Cache.Breaker.Timeout = time.Minute

	container, reg := newTestContainer(t, cfg)
	lib := testsupport.SeedLibrary(t, container.DB())
	ctx := context.Background()

	mr.Close()

	omens := lib.Books["9780060853983"]
	for range 3 {
		got, ok, err := container.Books().FindByISBN(ctx, omens.ISBN)
		if err != nil || !ok {
			t.Fatalf("reads must fall back to the source, got %v, %v", ok, err)
		}
		if got.ID != omens.ID {
			t.Errorf("expected book %d, got %d", omens.ID, got.ID)
		}
	}

	if got := container.BreakerState(); got != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %v", got)
	}

	expected := `
# HELP test_cache_breaker_state Cache circuit breaker state: 0 closed, 1 half-open, 2 open.
# TYPE test_cache_breaker_state gauge
test_cache_breaker_state{name="cache"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_cache_breaker_state"); err != nil {
		t.Error(err)
	}
}

func TestContainer_Close(t *testing.T) {
	container, err := NewContainer(testConfig(),
		WithDB(testsupport.OpenSQLite(t)),
		WithRegisterer(prometheus.NewRegistry()),
	)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if err := container.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if err := container.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if err := container.DB().Ping(); err != nil {
		t.Errorf("an injected database must stay open: %v", err)
	}
}

func requestCount(t *testing.T, reg *prometheus.Registry, op, result string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "test_cache_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["aggregate"] == "book" && labels["op"] == op && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
