package session

import (
	"context"
	"fmt"
	"time"

	"dispatchbot/kv"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

const blocklistCacheTTL = 5 * time.Minute

func blocklistCacheKey(driverID int64) string { return fmt.Sprintf("blocklist:cache:driver:%d", driverID) }

// QueueLookup implements kv.DriverLookup against the session store (for
// the cached priority/vehicle fields every chat already carries) and a
// TTL-cached read-through over the blocklist repository, so the queue's
// per-mutation re-sort doesn't hit Postgres on every enqueue/pickNext.
type QueueLookup struct {
	sessions  *Store
	kv        kv.Store
	blocklist storage.IBlocklistStorage
}

func NewQueueLookup(sessions *Store, store kv.Store, blocklist storage.IBlocklistStorage) *QueueLookup {
	return &QueueLookup{sessions: sessions, kv: store, blocklist: blocklist}
}

func (l *QueueLookup) SessionSnapshot(ctx context.Context, chatID int64) (priorityScore int, isFiorino bool, ok bool) {
	sess, err := l.sessions.Get(ctx, chatID)
	if err != nil || sess == nil {
		return 0, false, false
	}
	return sess.PriorityScore, sess.VehicleType == models.VehicleFiorino, true
}

func (l *QueueLookup) IsBlocklisted(ctx context.Context, chatID int64) bool {
	sess, err := l.sessions.Get(ctx, chatID)
	if err != nil || sess == nil || !sess.HasIdentity() {
		return false
	}

	key := blocklistCacheKey(sess.DriverID)
	cached, err := l.kv.Get(ctx, key)
	if err == nil {
		return cached == "1"
	}

	active, err := l.blocklist.IsActive(ctx, sess.DriverID)
	if err != nil {
		return false
	}

	val := "0"
	if active {
		val = "1"
	}
	_ = l.kv.SetTTL(ctx, key, val, blocklistCacheTTL)
	return active
}
