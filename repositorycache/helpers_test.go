package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-library-cache/cache"
)

var errCacheDown = errors.New("cache down")

// item is a small aggregate exercising every index kind.
type item struct {
	ID      int64
	Code    string
	Color   string
	Tags    []string
	Note    *string
	Version int64
}

type itemMapper struct{}

func (itemMapper) ToRecord(it item) cache.Record {
	r := cache.Record{
		"id":      strconv.FormatInt(it.ID, 10),
		"code":    it.Code,
		"color":   it.Color,
		"tags":    strings.Join(it.Tags, ","),
		"version": strconv.FormatInt(it.Version, 10),
	}
	if it.Note != nil {
		r["note"] = *it.Note
	}
	return r
}

func (itemMapper) FromRecord(r cache.Record) (item, bool) {
	var it item
	var err error
	for _, f := range []string{"id", "code", "color", "tags", "version"} {
		if _, ok := r[f]; !ok {
			return item{}, false
		}
	}
	if it.ID, err = strconv.ParseInt(r["id"], 10, 64); err != nil {
		return item{}, false
	}
	if it.Version, err = strconv.ParseInt(r["version"], 10, 64); err != nil {
		return item{}, false
	}
	it.Code = r["code"]
	it.Color = r["color"]
	if r["tags"] != "" {
		it.Tags = strings.Split(r["tags"], ",")
	}
	if note, ok := r["note"]; ok {
		it.Note = &note
	}
	return it, true
}

func itemSchema() Schema[item] {
	return Schema[item]{
		Name:   "item",
		TTL:    time.Hour,
		Mapper: itemMapper{},
		PrimaryKey: func(it item) (string, bool) {
			return strconv.FormatInt(it.ID, 10), it.ID > 0
		},
		Compare: func(a, b item) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		},
		Unique: []UniqueIndex[item]{
			{Name: "code", Fold: true, Value: func(it item) string { return it.Code }},
		},
		Lookup: []LookupIndex[item]{
			{Name: "color", Fold: true, Values: func(it item) []string { return []string{it.Color} }},
			{Name: "tag", Fold: true, Values: func(it item) []string { return it.Tags }},
			{Name: "all", Whole: true},
			{
				Name: "codeprefix",
				Fold: true,
				Values: func(it item) []string {
					code := strings.ToLower(strings.TrimSpace(it.Code))
					var out []string
					for i := 1; i <= len(code) && i <= 3; i++ {
						out = append(out, code[:i])
					}
					return out
				},
				Query: func(q string) string {
					if len(q) > 3 {
						return q[:3]
					}
					return q
				},
				Match: func(it item, q string) bool {
					return strings.HasPrefix(strings.ToLower(strings.TrimSpace(it.Code)), q)
				},
			},
		},
	}
}

// mapKV is an in-memory cache.KV that records calls and can be told to fail.
type mapKV struct {
	mu      sync.Mutex
	hashes  map[string]cache.Record
	strings map[string]string
	sets    map[string]map[string]struct{}
	ttls    map[string]time.Duration
	calls   []string
	failOn  map[string]error // keyed by "op" or "op:key"
}

func newMapKV() *mapKV {
	return &mapKV{
		hashes:  make(map[string]cache.Record),
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		ttls:    make(map[string]time.Duration),
		failOn:  make(map[string]error),
	}
}

func (m *mapKV) fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *mapKV) record(op, key string) error {
	m.calls = append(m.calls, op+":"+key)
	if err, ok := m.failOn[op+":"+key]; ok {
		return err
	}
	return m.failOn[op]
}

func (m *mapKV) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mapKV) clearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *mapKV) exists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, h := m.hashes[key]
	_, s := m.strings[key]
	_, set := m.sets[key]
	return h || s || set
}

func (m *mapKV) members(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for member := range m.sets[key] {
		out = append(out, member)
	}
	slices.Sort(out)
	return out
}

func (m *mapKV) keysWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.keySet() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func (m *mapKV) keySet() map[string]bool {
	all := make(map[string]bool)
	for k := range m.hashes {
		all[k] = true
	}
	for k := range m.strings {
		all[k] = true
	}
	for k := range m.sets {
		all[k] = true
	}
	return all
}

func (m *mapKV) HSet(ctx context.Context, key string, fields cache.Record, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("hset", key); err != nil {
		return err
	}
	copied := make(cache.Record, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	m.hashes[key] = copied
	m.ttls[key] = ttl
	return nil
}

func (m *mapKV) HGetAll(ctx context.Context, key string) (cache.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("hgetall", key); err != nil {
		return nil, err
	}
	out := cache.Record{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *mapKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("set", key); err != nil {
		return err
	}
	m.strings[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mapKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("get", key); err != nil {
		return "", false, err
	}
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *mapKV) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("sadd", key); err != nil {
		return err
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	m.ttls[key] = ttl
	return nil
}

func (m *mapKV) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("smembers", key); err != nil {
		return nil, err
	}
	var out []string
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *mapKV) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("srem", key); err != nil {
		return err
	}
	for _, member := range members {
		delete(m.sets[key], member)
	}
	if len(m.sets[key]) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *mapKV) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		if err := m.record("del", key); err != nil {
			return err
		}
		delete(m.hashes, key)
		delete(m.strings, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *mapKV) Close() error { return nil }

// fakeSource is an in-memory Source[item] that records calls into a shared log.
type fakeSource struct {
	mu      sync.Mutex
	items   map[int64]item
	nextID  int64
	log     *callLog
	saveErr error
	delErr  error
	findErr error
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.get() {
		if c == call {
			n++
		}
	}
	return n
}

func newFakeSource(log *callLog, items ...item) *fakeSource {
	s := &fakeSource{items: make(map[int64]item), log: log}
	for _, it := range items {
		s.items[it.ID] = it
		if it.ID > s.nextID {
			s.nextID = it.ID
		}
	}
	return s
}

func (s *fakeSource) FindByUniqueKey(ctx context.Context, index, key string) (item, bool, error) {
	s.log.add("source.find_unique")
	if s.findErr != nil {
		return item{}, false, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		switch index {
		case "code":
			if strings.EqualFold(it.Code, key) {
				return it, true, nil
			}
		case PrimaryIndex:
			if strconv.FormatInt(it.ID, 10) == key {
				return it, true, nil
			}
		default:
			return item{}, false, fmt.Errorf("%w: %q", ErrUnknownSourceIndex, index)
		}
	}
	return item{}, false, nil
}

func (s *fakeSource) FindByLookupKey(ctx context.Context, index, value string) ([]item, error) {
	s.log.add("source.find_lookup")
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []item
	for _, it := range s.items {
		switch index {
		case "color":
			if strings.EqualFold(it.Color, value) {
				out = append(out, it)
			}
		case "all":
			out = append(out, it)
		}
	}
	slices.SortFunc(out, itemSchema().Compare)
	return out, nil
}

func (s *fakeSource) Save(ctx context.Context, it item) (item, error) {
	s.log.add("source.save")
	if s.saveErr != nil {
		return item{}, s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == 0 {
		s.nextID++
		it.ID = s.nextID
	}
	it.Version++
	s.items[it.ID] = it
	return it, nil
}

func (s *fakeSource) Delete(ctx context.Context, it item) error {
	s.log.add("source.delete")
	if s.delErr != nil {
		return s.delErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, it.ID)
	return nil
}

// recordingStore wraps a Store and logs calls, optionally failing puts for
// selected primary keys.
type recordingStore struct {
	inner   Store[item]
	log     *callLog
	failPut map[int64]bool
	failGet bool
	puts    []item
}

func (r *recordingStore) Get(ctx context.Context, index, key string) (item, bool, error) {
	r.log.add("store.get")
	if r.failGet {
		return item{}, false, cache.Wrap("get", key, errCacheDown)
	}
	return r.inner.Get(ctx, index, key)
}

func (r *recordingStore) GetMany(ctx context.Context, index, value string) ([]item, bool, error) {
	r.log.add("store.getmany")
	if r.failGet {
		return nil, false, cache.Wrap("getmany", value, errCacheDown)
	}
	return r.inner.GetMany(ctx, index, value)
}

func (r *recordingStore) Put(ctx context.Context, it item) (item, error) {
	r.log.add("store.put")
	r.puts = append(r.puts, it)
	if r.failPut[it.ID] {
		return it, cache.Wrap("put", strconv.FormatInt(it.ID, 10), errCacheDown)
	}
	return r.inner.Put(ctx, it)
}

func (r *recordingStore) Evict(ctx context.Context, it item) error {
	r.log.add("store.evict")
	return r.inner.Evict(ctx, it)
}

func (r *recordingStore) Seal(ctx context.Context, index, value string, items []item) error {
	r.log.add("store.seal")
	return r.inner.Seal(ctx, index, value, items)
}

// countingHooks tallies hook events.
type countingHooks struct {
	mu     sync.Mutex
	hits   int
	misses int
	errors int
	source int
}

func (h *countingHooks) CacheHit(string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits++
}

func (h *countingHooks) CacheMiss(string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.misses++
}

func (h *countingHooks) CacheError(string, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors++
}

func (h *countingHooks) SourceCall(string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source++
}

// capturingLogger keeps warn messages.
type capturingLogger struct {
	NopLogger
	mu    sync.Mutex
	warns []Fields
}

func (l *capturingLogger) Warn(msg string, f Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, f)
}

func strPtr(s string) *string { return &s }
