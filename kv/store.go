// Package kv implements the orchestration core's only shared mutable
// resource: a thin adapter over a networked key-value store, plus the
// primitives built on top of it (distributed lock, priority queue,
// active-slot controller, timer wheel, event log).
package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key does not exist. Callers
// that treat absence as a normal case (cache misses, unset timers) check
// for it with errors.Is; it is never a TRANSIENT or FATAL condition.
var ErrNotFound = errors.New("kv: key not found")

// Kind classifies a Store failure so that callers know whether to retry
// one level up (TRANSIENT) or surface it (FATAL), per spec section 4.A.
type Kind int

const (
	KindTransient Kind = iota
	KindFatal
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

// IsTransient reports whether err (or a wrapped cause) is classified
// TRANSIENT.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return false
}

// Store is the atomic-primitive surface every higher-level component
// (lock, queue, slot controller, timer wheel, event log) is built on. No
// cross-key atomicity is assumed; every multi-key invariant is enforced
// by the caller (typically via WithLock).
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LRem(ctx context.Context, key string, count int64, value string) error
	LPop(ctx context.Context, key string) (string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	Scan(ctx context.Context, pattern string) ([]string, error)
	Incr(ctx context.Context, key string) (int64, error)
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Store backed by go-redis, addressed by REDIS_URL
// (e.g. "redis://:password@host:6379/0").
func NewRedisStore(url string) (Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &redisStore{client: redis.NewClient(opt)}, nil
}

func NewRedisStoreFromClient(c *redis.Client) Store {
	return &redisStore{client: c}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", transient(err)
	}
	return v, nil
}

func (s *redisStore) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return transient(err)
	}
	return nil
}

func (s *redisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, transient(err)
	}
	return ok, nil
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return transient(err)
	}
	return nil
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return transient(err)
	}
	return nil
}

func (s *redisStore) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := s.client.RPush(ctx, key, args...).Err(); err != nil {
		return transient(err)
	}
	return nil
}

func (s *redisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, transient(err)
	}
	return vals, nil
}

func (s *redisStore) LRem(ctx context.Context, key string, count int64, value string) error {
	if err := s.client.LRem(ctx, key, count, value).Err(); err != nil {
		return transient(err)
	}
	return nil
}

func (s *redisStore) LPop(ctx context.Context, key string) (string, error) {
	v, err := s.client.LPop(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", transient(err)
	}
	return v, nil
}

func (s *redisStore) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, transient(err)
	}
	return n, nil
}

func (s *redisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := s.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return transient(err)
	}
	return nil
}

func (s *redisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, transient(err)
	}
	return keys, nil
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, transient(err)
	}
	return n, nil
}
