package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
)

// Redis is a Store backed by a Redis database. Entries are hashes keyed
// "<table>|<key>", the same layout SONiC uses for CONFIG_DB, which keeps
// the tables inspectable with plain redis-cli.
type Redis struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedis creates a redis-backed store. DB selects the Redis database
// number so policy tables can live alongside other state without key
// collisions.
func NewRedis(addr string, db int) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		ctx: context.Background(),
	}
}

// Connect verifies the connection, retrying with exponential backoff so a
// store coming up alongside its Redis container does not fail on the
// first probe.
func (r *Redis) Connect() error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		return r.client.Ping(r.ctx).Err()
	}, bo)
}

func redisKey(table, key string) string {
	return fmt.Sprintf("%s|%s", table, key)
}

func (r *Redis) Get(table, key string) (map[string]string, error) {
	return r.client.HGetAll(r.ctx, redisKey(table, key)).Result()
}

func (r *Redis) Set(table, key string, fields map[string]string) error {
	k := redisKey(table, key)
	if len(fields) == 0 {
		return r.client.HSet(r.ctx, k, "NULL", "NULL").Err()
	}
	// Replace, not merge: stale fields from a previous write must not
	// survive a Set.
	pipe := r.client.TxPipeline()
	pipe.Del(r.ctx, k)
	args := make([]interface{}, 0, len(fields)*2)
	for f, v := range fields {
		args = append(args, f, v)
	}
	pipe.HSet(r.ctx, k, args...)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *Redis) Delete(table, key string) error {
	return r.client.Del(r.ctx, redisKey(table, key)).Err()
}

func (r *Redis) DeleteField(table, key, field string) error {
	return r.client.HDel(r.ctx, redisKey(table, key), field).Err()
}

func (r *Redis) Keys(table string) ([]string, error) {
	pattern := fmt.Sprintf("%s|*", table)
	raw, err := r.client.Keys(r.ctx, pattern).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	prefix := table + "|"
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, prefix))
	}
	return keys, nil
}

func (r *Redis) Exists(table, key string) (bool, error) {
	n, err := r.client.Exists(r.ctx, redisKey(table, key)).Result()
	return n > 0, err
}

func (r *Redis) Close() error {
	return r.client.Close()
}
