//go:build integration

// Package testutil provides test helpers for integration tests that run
// against a real Redis instance.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// DB is the Redis database number used for policy mapping tables in
// integration tests.
const DB = 7

// RedisAddr returns the address of the test Redis instance from
// GBP_TEST_REDIS_ADDR, defaulting to localhost.
func RedisAddr() string {
	if addr := os.Getenv("GBP_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

// SkipIfNoRedis skips the test if the test Redis instance is not reachable.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: RedisAddr()})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test Redis not reachable at %s: %v", RedisAddr(), err)
	}
}

// FlushDB flushes the integration test database.
func FlushDB(t *testing.T) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: DB})
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", DB, err)
	}
}

// RedisClient returns a redis client for the test database, closed via
// t.Cleanup.
func RedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: DB})
	t.Cleanup(func() { client.Close() })
	return client
}

// Context returns a context with a test timeout, cancelled via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
