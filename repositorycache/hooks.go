package repositorycache

// Hooks receives high-signal events from a CachedRepository.
// Implementations must be cheap and non-blocking; they run on every call.
type Hooks interface {
	// CacheHit is called when a read was answered by the cache.
	CacheHit(aggregate, op string)
	// CacheMiss is called when the cache had no usable answer.
	CacheMiss(aggregate, op string)
	// CacheError is called for every swallowed cache failure.
	CacheError(aggregate, op string, err error)
	// SourceCall is called before every call to the source store.
	SourceCall(aggregate, op string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) CacheHit(string, string)          {}
func (NopHooks) CacheMiss(string, string)         {}
func (NopHooks) CacheError(string, string, error) {}
func (NopHooks) SourceCall(string, string)        {}
