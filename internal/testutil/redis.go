package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"library/internal/cache"
)

// NewRedis starts an in-process Redis server and returns a cache client bound to it.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *cache.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return mr, cache.NewFromRedis(rc)
}
