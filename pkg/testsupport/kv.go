package testsupport

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-library-cache/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

// NewMemoryKV returns an in-process KV closed when the test ends.
func NewMemoryKV(t testing.TB) *cacheinfra.SturdycKV {
	t.Helper()

	kv, err := cacheinfra.NewSturdycKV(cacheinfra.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create memory kv: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

// NewMiniRedisKV starts a miniredis server and returns it with a KV talking to
// it. Tests can use the server to fast forward time or to stop it.
func NewMiniRedisKV(t testing.TB) (*miniredis.Miniredis, *cacheinfra.RedisKV) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv, err := cacheinfra.NewRedisKV(client, cacheinfra.WithOwnedClient())
	if err != nil {
		t.Fatalf("failed to create redis kv: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return mr, kv
}
