package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dispatchbot/pkg/logger"
)

const (
	lockTTL        = 5 * time.Second
	lockRetryDelay = 120 * time.Millisecond
	lockMaxRetries = 8
)

// QueueLockKey and ReclaimLockKey are the two advisory locks named in
// spec section 6's persisted-state layout: the main per-group lock
// guarding queue/slot mutation, and a secondary lock guarding the
// sweeper's crash-recovery reclaim so a hung activation can't block it.
func QueueLockKey(group string) string   { return fmt.Sprintf("queue:lock:%s", group) }
func ReclaimLockKey(group string) string { return fmt.Sprintf("queue:reclaim:lock:%s", group) }

// WithKeyedLock implements the advisory mutual-exclusion primitive of
// spec section 4.B against an arbitrary key. It attempts SetIfAbsent
// with a 5s TTL, retries on contention, and on exhaustion runs fn anyway
// as a best-effort fallback: the lock is advisory, contention is rare,
// and the operations it guards are themselves idempotent and monotonic.
// Callers that must preserve invariant 1 under Byzantine delay should
// treat a nil error from an unlocked execution as acceptable per the
// documented design choice in spec section 9, or wrap this to surface
// ContendedLock instead.
func WithKeyedLock(ctx context.Context, store Store, key string, log logger.ILogger, fn func(ctx context.Context) error) error {
	nonce := uuid.NewString()

	var acquired bool
	for attempt := 0; attempt < lockMaxRetries; attempt++ {
		ok, err := store.SetIfAbsent(ctx, key, nonce, lockTTL)
		if err != nil {
			if IsTransient(err) {
				time.Sleep(lockRetryDelay)
				continue
			}
			return err
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	if !acquired {
		log.Warning("lock contention exhausted, running critical section unlocked", logger.String("lock_key", key))
		return fn(ctx)
	}

	defer func() {
		cur, err := store.Get(ctx, key)
		if err == nil && cur == nonce {
			_ = store.Del(ctx, key)
		}
	}()

	return fn(ctx)
}

// WithLock is WithKeyedLock against the main per-group lock.
func WithLock(ctx context.Context, store Store, group string, log logger.ILogger, fn func(ctx context.Context) error) error {
	return WithKeyedLock(ctx, store, QueueLockKey(group), log, fn)
}
