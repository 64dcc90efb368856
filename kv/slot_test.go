package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchbot/pkg/models"
)

func TestSlotTryAcquireActivatesWaitingChat(t *testing.T) {
	lookup := newFakeLookup()
	store := newMemStore()
	q := NewQueue(store, lookup, testLogger(), models.GroupGeneral, time.Hour)
	s := NewSlot(store, q, testLogger(), models.GroupGeneral, time.Hour)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)

	ok, err := s.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "the caller itself should be activated when it's next in line")

	cur, err := store.Get(ctx, s.activeKey())
	require.NoError(t, err)
	assert.Equal(t, "1", cur)
}

func TestSlotTryAcquireNotifiesSomeoneElse(t *testing.T) {
	lookup := newFakeLookup()
	store := newMemStore()
	q := NewQueue(store, lookup, testLogger(), models.GroupGeneral, time.Hour)
	s := NewSlot(store, q, testLogger(), models.GroupGeneral, time.Hour)
	ctx := context.Background()

	var notified int64
	s.OnNotifyNext(func(ctx context.Context, chatID int64, group models.QueueGroup) { notified = chatID })

	_, err := q.Enqueue(ctx, 5)
	require.NoError(t, err)

	ok, err := s.TryAcquire(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok, "caller 99 is not the activated chat")
	assert.Equal(t, int64(5), notified)
}

func TestSlotReleaseAndNotifyNextActivatesWaitingChat(t *testing.T) {
	lookup := newFakeLookup()
	store := newMemStore()
	q := NewQueue(store, lookup, testLogger(), models.GroupMoto, time.Hour)
	s := NewSlot(store, q, testLogger(), models.GroupMoto, time.Hour)
	ctx := context.Background()

	ok, err := s.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "no one queued yet, nothing to activate")

	_, err = q.Enqueue(ctx, 2)
	require.NoError(t, err)

	var notified int64
	s.OnNotifyNext(func(ctx context.Context, chatID int64, group models.QueueGroup) { notified = chatID })

	require.NoError(t, s.ReleaseAndNotifyNext(ctx))
	assert.Equal(t, int64(2), notified)
}

func TestSlotRequeueExpiredActiveFiresTimeoutAfterWindow(t *testing.T) {
	lookup := newFakeLookup()
	store := newMemStore()
	q := NewQueue(store, lookup, testLogger(), models.GroupGeneral, time.Hour)
	s := NewSlot(store, q, testLogger(), models.GroupGeneral, 30*time.Millisecond)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)
	_, err = s.TryAcquire(ctx, 1)
	require.NoError(t, err)

	var timedOut int64
	s.OnTimeout(func(ctx context.Context, chatID int64, group models.QueueGroup) { timedOut = chatID })

	expired, err := s.RequeueExpiredActive(ctx)
	require.NoError(t, err)
	assert.False(t, expired, "window hasn't elapsed yet")

	time.Sleep(40 * time.Millisecond)

	expired, err = s.RequeueExpiredActive(ctx)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, int64(1), timedOut)
}

func TestSlotActivateIfIdleSkipsWhenAlreadyActive(t *testing.T) {
	lookup := newFakeLookup()
	store := newMemStore()
	q := NewQueue(store, lookup, testLogger(), models.GroupGeneral, time.Hour)
	s := NewSlot(store, q, testLogger(), models.GroupGeneral, time.Hour)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)
	_, err = s.TryAcquire(ctx, 1)
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, 2)
	require.NoError(t, err)

	var notified bool
	s.OnNotifyNext(func(ctx context.Context, chatID int64, group models.QueueGroup) { notified = true })

	require.NoError(t, s.ActivateIfIdle(ctx))
	assert.False(t, notified, "slot already held, idle-activation must be a no-op")
}
