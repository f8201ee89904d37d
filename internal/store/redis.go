package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDelete only deletes the key while we still own its value
var compareAndDelete = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// maxUpdateAttempts bounds the WATCH retries of one Update
const maxUpdateAttempts = 20

// RedisStore implements Store on a Redis server
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis URL and verifies the link with a ping
func NewRedisStore(ctx context.Context, url, prefix string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB)
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, s.prefix+key, value, ttl).Result()
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.rdb, []string{s.prefix + key}, expected).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Update runs fn inside an optimistic WATCH transaction and retries when another client
// wrote the key between our read and our EXEC
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := s.prefix + key
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for range maxUpdateAttempts {
		err := s.rdb.Watch(ctx, txf, k)
		switch {
		case err == nil, errors.Is(err, ErrNoChange):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("update %s after %d attempts: %w", key, maxUpdateAttempts, ErrConflict)
}

func (s *RedisStore) PushCapped(ctx context.Context, key string, value []byte, limit int) error {
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, s.prefix+key, value)
	if limit > 0 {
		pipe.LTrim(ctx, s.prefix+key, 0, int64(limit-1))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Range(ctx context.Context, key string, n int) ([][]byte, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	items, err := s.rdb.LRange(ctx, s.prefix+key, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
