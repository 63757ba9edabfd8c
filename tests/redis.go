package tests

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// RedisOptions starts an in-process redis server that lives for the duration
// of the test and returns options to connect to it.
func RedisOptions(t *testing.T) *redis.Options {
	t.Helper()
	mr := miniredis.RunT(t)
	return &redis.Options{Addr: mr.Addr()}
}
