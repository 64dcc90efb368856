package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
)

type fakeLookup struct {
	snapshot map[int64][2]int // chatID -> [priorityScore, isFiorino(0/1)]
	blocked  map[int64]bool
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{snapshot: make(map[int64][2]int), blocked: make(map[int64]bool)}
}

func (f *fakeLookup) SessionSnapshot(ctx context.Context, chatID int64) (int, bool, bool) {
	s, ok := f.snapshot[chatID]
	if !ok {
		return 0, false, false
	}
	return s[0], s[1] == 1, true
}

func (f *fakeLookup) IsBlocklisted(ctx context.Context, chatID int64) bool {
	return f.blocked[chatID]
}

func testLogger() logger.ILogger { return logger.New("test") }

func TestQueueEnqueueOrdersFiorinoFirstThenScore(t *testing.T) {
	lookup := newFakeLookup()
	lookup.snapshot[1] = [2]int{10, 0}
	lookup.snapshot[2] = [2]int{90, 0}
	lookup.snapshot[3] = [2]int{5, 1} // fiorino, low score, still first

	q := NewQueue(newMemStore(), lookup, testLogger(), models.GroupGeneral, 120*time.Second)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 2)
	require.NoError(t, err)
	pos, err := q.Enqueue(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	next, ok, err := q.PickNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), next, "fiorino driver should be served before higher-score non-fiorino drivers")

	next, ok, err = q.PickNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), next, "higher priority score wins among non-fiorino drivers")
}

func TestQueueEnqueueIsIdempotentForRepeatedChat(t *testing.T) {
	lookup := newFakeLookup()
	q := NewQueue(newMemStore(), lookup, testLogger(), models.GroupMoto, 120*time.Second)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 2)
	require.NoError(t, err)
	pos, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, pos, "re-enqueuing moves the chat to the back, not a duplicate entry")

	ids, err := q.readList(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestQueuePickNextDefersBlocklistedUntilWaitElapses(t *testing.T) {
	lookup := newFakeLookup()
	lookup.blocked[1] = true

	q := NewQueue(newMemStore(), lookup, testLogger(), models.GroupGeneral, 50*time.Millisecond)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)

	_, ok, err := q.PickNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a queue of only blocklisted drivers should not activate before the wait window")

	time.Sleep(60 * time.Millisecond)

	next, ok, err := q.PickNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), next)
}

func TestQueuePickNextPrefersClearDriverOverBlocklisted(t *testing.T) {
	lookup := newFakeLookup()
	lookup.blocked[1] = true
	q := NewQueue(newMemStore(), lookup, testLogger(), models.GroupGeneral, time.Hour)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 2)
	require.NoError(t, err)

	next, ok, err := q.PickNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), next)
}

func TestQueueResetClearsListAndMembers(t *testing.T) {
	lookup := newFakeLookup()
	q := NewQueue(newMemStore(), lookup, testLogger(), models.GroupMoto, time.Hour)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, q.Reset(ctx))

	ids, err := q.readList(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
