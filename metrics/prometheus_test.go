package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
)

func TestHooks_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewHooks("library", reg)
	if err != nil {
		t.Fatalf("NewHooks: %v", err)
	}

	h.CacheHit("book", "find_by_isbn")
	h.CacheHit("book", "find_by_isbn")
	h.CacheMiss("book", "find_by_isbn")
	h.CacheError("reader", "save", errors.New("boom"))
	h.SourceCall("book", "find_by_isbn")

	if got := testutil.ToFloat64(h.requests.WithLabelValues("book", "find_by_isbn", "hit")); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(h.requests.WithLabelValues("book", "find_by_isbn", "miss")); got != 1 {
		t.Errorf("expected 1 miss, got %v", got)
	}

	expected := `
# HELP library_cache_errors_total Cache failures that were logged and ignored.
# TYPE library_cache_errors_total counter
library_cache_errors_total{aggregate="reader",op="save"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "library_cache_errors_total"); err != nil {
		t.Errorf("unexpected errors metric: %v", err)
	}

	if got := testutil.ToFloat64(h.sourceCalls.WithLabelValues("book", "find_by_isbn")); got != 1 {
		t.Errorf("expected 1 source call, got %v", got)
	}
}

func TestHooks_BreakerState(t *testing.T) {
	h, err := NewHooks("library", prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewHooks: %v", err)
	}

	h.BreakerStateChanged("cache", gobreaker.StateClosed, gobreaker.StateOpen)
	if got := testutil.ToFloat64(h.breaker.WithLabelValues("cache")); got != float64(gobreaker.StateOpen) {
		t.Errorf("expected open state, got %v", got)
	}
}

func TestNewHooks_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewHooks("library", reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewHooks("library", reg); err == nil {
		t.Error("expected second registration to fail")
	}
}
