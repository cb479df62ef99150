package store

import (
	"context"
	"path"
	"slices"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The Redis implementations let several tool server processes share state.
// The keys namespace is organized as follows:
// - `<prefix>/toolstate/counter/<name>` holds a counter as a Redis integer
// - `<prefix>/toolstate/kv/<name>` holds a KV as a Redis hash

type redisCounter struct {
	client *redis.Client
	key    string
}

// NewRedisCounter returns a Counter stored in Redis.
func NewRedisCounter(client *redis.Client, prefix, name string) Counter {
	return &redisCounter{
		client: client,
		key:    path.Join(prefix, "toolstate", "counter", name),
	}
}

func (m *redisCounter) Increment(ctx context.Context, delta int64) (int64, error) {
	v, err := m.client.IncrBy(ctx, m.key, delta).Result()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "IncrBy", "key", m.key, "err", err.Error())
		return 0, errors.Wrap(err, "failed to increment counter in Redis")
	}
	return v, nil
}

func (m *redisCounter) Value(ctx context.Context) (int64, error) {
	data, err := m.client.Get(ctx, m.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to get counter from Redis")
	}
	v, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid counter value %q", data)
	}
	return v, nil
}

func (m *redisCounter) Reset(ctx context.Context) error {
	if err := m.client.Del(ctx, m.key).Err(); err != nil {
		return errors.Wrap(err, "failed to reset counter in Redis")
	}
	return nil
}

type redisKV struct {
	client *redis.Client
	key    string
}

// NewRedisKV returns a KV stored in a Redis hash.
func NewRedisKV(client *redis.Client, prefix, name string) KV {
	return &redisKV{
		client: client,
		key:    path.Join(prefix, "toolstate", "kv", name),
	}
}

func (m *redisKV) Put(ctx context.Context, key, value string) error {
	if err := m.client.HSet(ctx, m.key, key, value).Err(); err != nil {
		return errors.Wrap(err, "failed to store value in Redis")
	}
	return nil
}

func (m *redisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := m.client.HGet(ctx, m.key, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", errors.Wrap(err, "failed to get value from Redis")
	}
	return v, nil
}

func (m *redisKV) Keys(ctx context.Context) ([]string, error) {
	keys, err := m.client.HKeys(ctx, m.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keys from Redis")
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *redisKV) Delete(ctx context.Context, key string) error {
	if err := m.client.HDel(ctx, m.key, key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete value from Redis")
	}
	return nil
}
