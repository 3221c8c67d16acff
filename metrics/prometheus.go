// Package metrics exports cache repository events as Prometheus metrics.
package metrics

import (
	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Hooks counts cache hits, misses, swallowed errors and source calls per
// aggregate and operation. It also tracks the cache breaker state.
type Hooks struct {
	requests    *prometheus.CounterVec
	errors      *prometheus.CounterVec
	sourceCalls *prometheus.CounterVec
	breaker     *prometheus.GaugeVec
}

var _ repositorycache.Hooks = (*Hooks)(nil)

// NewHooks creates the collectors and registers them with reg.
func NewHooks(namespace string, reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache reads by aggregate, operation and result (hit or miss).",
			},
			[]string{"aggregate", "op", "result"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Cache failures that were logged and ignored.",
			},
			[]string{"aggregate", "op"},
		),
		sourceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_calls_total",
				Help:      "Calls that reached the relational source.",
			},
			[]string{"aggregate", "op"},
		),
		breaker: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_breaker_state",
				Help:      "Cache circuit breaker state: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"name"},
		),
	}

	for _, c := range []prometheus.Collector{h.requests, h.errors, h.sourceCalls, h.breaker} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) CacheHit(aggregate, op string) {
	h.requests.WithLabelValues(aggregate, op, "hit").Inc()
}

func (h *Hooks) CacheMiss(aggregate, op string) {
	h.requests.WithLabelValues(aggregate, op, "miss").Inc()
}

func (h *Hooks) CacheError(aggregate, op string, _ error) {
	h.errors.WithLabelValues(aggregate, op).Inc()
}

func (h *Hooks) SourceCall(aggregate, op string) {
	h.sourceCalls.WithLabelValues(aggregate, op).Inc()
}

// BreakerStateChanged records the new breaker state. It matches the breaker's
// state change callback.
func (h *Hooks) BreakerStateChanged(name string, _, to gobreaker.State) {
	h.breaker.WithLabelValues(name).Set(float64(to))
}
