package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
)

// DriverLookup resolves the fields the queue's total order needs. The
// queue engine never reaches into Postgres directly; it asks for a
// snapshot through this seam so tests can supply a fake.
type DriverLookup interface {
	// SessionSnapshot returns the cached driver fields a session carries
	// (priority score, vehicle type) without a live driver-registry read.
	SessionSnapshot(ctx context.Context, chatID int64) (priorityScore int, isFiorino bool, ok bool)
	// IsBlocklisted reports the cached blocklist status for a driver,
	// keyed by the chat's resolved driverID.
	IsBlocklisted(ctx context.Context, chatID int64) bool
}

// member is the sort key snapshot taken at the start of a single
// enqueue/pickNext call. originalIndex is the position in the list as
// read at the start of that call, not a historical insertion order —
// this is what makes the total order "stable within a call" per spec
// section 4.C.
type member struct {
	chatID        int64
	priorityScore int
	isFiorino     bool
	originalIndex int
	blocklisted   bool
}

type Queue struct {
	store  Store
	lookup DriverLookup
	log    logger.ILogger
	group  models.QueueGroup

	blocklistWait time.Duration
}

func NewQueue(store Store, lookup DriverLookup, log logger.ILogger, group models.QueueGroup, blocklistWait time.Duration) *Queue {
	return &Queue{store: store, lookup: lookup, log: log, group: group, blocklistWait: blocklistWait}
}

func (q *Queue) listKey() string       { return fmt.Sprintf("queue:list:%s", q.group) }
func (q *Queue) emptySinceKey() string { return fmt.Sprintf("queue:empty_since:%s", q.group) }
func memberKey(chatID int64) string    { return fmt.Sprintf("queue:member:%d", chatID) }

const memberTTL = 6 * time.Hour

// Reset clears the group's waiting list and empty-since marker. Used by
// operator tooling to force a stuck group back to empty.
func (q *Queue) Reset(ctx context.Context) error {
	ids, err := q.readList(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := q.store.Del(ctx, memberKey(id)); err != nil {
			return err
		}
	}
	return q.store.Del(ctx, q.listKey(), q.emptySinceKey())
}

// Enqueue inserts chatID into the group's waiting list (removing any
// existing occurrence first, so repeated enqueues are idempotent), then
// re-sorts the whole list by the total order and returns chatID's
// 1-based position. Spec section 4.C.
func (q *Queue) Enqueue(ctx context.Context, chatID int64) (int, error) {
	var position int
	err := WithLock(ctx, q.store, string(q.group), q.log, func(ctx context.Context) error {
		ids, err := q.readList(ctx)
		if err != nil {
			return err
		}
		ids = removeValue(ids, chatID)
		ids = append(ids, chatID)

		sorted := q.sortByTotalOrder(ctx, ids)

		if err := q.writeList(ctx, sorted); err != nil {
			return err
		}
		if err := q.store.SetTTL(ctx, memberKey(chatID), "1", memberTTL); err != nil {
			return err
		}

		for i, id := range sorted {
			if id == chatID {
				position = i + 1
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	q.log.Info("queue enqueue", logger.String("group", string(q.group)), logger.Int64("chat_id", chatID), logger.Int("position", position))
	return position, nil
}

// PickNext acquires the group lock and delegates to pickNextLocked. Use
// this when the caller does not already hold the group lock; Slot holds
// the lock itself across activate/release, so it calls pickNextLocked
// directly instead.
func (q *Queue) PickNext(ctx context.Context) (int64, bool, error) {
	var (
		next  int64
		found bool
	)
	err := WithLock(ctx, q.store, string(q.group), q.log, func(ctx context.Context) error {
		var err error
		next, found, err = q.pickNextLocked(ctx)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return next, found, nil
}

// pickNextLocked implements the blocklist-deferral policy of spec
// section 4.C: non-blocklisted drivers are served first; a queue of
// only blocklisted drivers waits out the deferral window before its
// head is activated. Callers must already hold the group lock.
func (q *Queue) pickNextLocked(ctx context.Context) (int64, bool, error) {
	ids, err := q.readList(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, q.store.Del(ctx, q.emptySinceKey())
	}

	members := q.snapshot(ctx, ids)
	var clear, blocked []member
	for _, m := range members {
		if m.blocklisted {
			blocked = append(blocked, m)
		} else {
			clear = append(clear, m)
		}
	}
	sortMembers(clear)
	sortMembers(blocked)

	if len(clear) > 0 {
		next := clear[0].chatID
		if err := q.removeLocked(ctx, next); err != nil {
			return 0, false, err
		}
		return next, true, q.store.Del(ctx, q.emptySinceKey())
	}

	if len(blocked) == 0 {
		return 0, false, q.store.Del(ctx, q.emptySinceKey())
	}

	since, err := q.store.Get(ctx, q.emptySinceKey())
	switch {
	case errors.Is(err, ErrNotFound):
		return 0, false, q.store.SetTTL(ctx, q.emptySinceKey(), nowUnix(), 0)
	case err != nil:
		return 0, false, err
	}

	elapsed := nowFunc().Sub(unixToTime(since))
	if elapsed < q.blocklistWait {
		return 0, false, nil
	}

	next := blocked[0].chatID
	if err := q.removeLocked(ctx, next); err != nil {
		return 0, false, err
	}
	return next, true, q.store.Del(ctx, q.emptySinceKey())
}

// Remove deletes chatID from the group's waiting list by value,
// regardless of position, and clears its membership marker.
func (q *Queue) Remove(ctx context.Context, chatID int64) error {
	return WithLock(ctx, q.store, string(q.group), q.log, func(ctx context.Context) error {
		return q.removeLocked(ctx, chatID)
	})
}

func (q *Queue) removeLocked(ctx context.Context, chatID int64) error {
	if err := q.store.LRem(ctx, q.listKey(), 0, fmt.Sprintf("%d", chatID)); err != nil {
		return err
	}
	return q.store.Del(ctx, memberKey(chatID))
}

func (q *Queue) readList(ctx context.Context) ([]int64, error) {
	raw, err := q.store.LRange(ctx, q.listKey(), 0, -1)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		var id int64
		if _, err := fmt.Sscanf(r, "%d", &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (q *Queue) writeList(ctx context.Context, ids []int64) error {
	if err := q.store.Del(ctx, q.listKey()); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	vals := make([]string, len(ids))
	for i, id := range ids {
		vals[i] = fmt.Sprintf("%d", id)
	}
	return q.store.RPush(ctx, q.listKey(), vals...)
}

func (q *Queue) snapshot(ctx context.Context, ids []int64) []member {
	members := make([]member, 0, len(ids))
	for i, id := range ids {
		score, fiorino, _ := q.lookup.SessionSnapshot(ctx, id)
		members = append(members, member{
			chatID:        id,
			priorityScore: score,
			isFiorino:     fiorino,
			originalIndex: i,
			blocklisted:   q.lookup.IsBlocklisted(ctx, id),
		})
	}
	return members
}

func (q *Queue) sortByTotalOrder(ctx context.Context, ids []int64) []int64 {
	members := q.snapshot(ctx, ids)
	sortMembers(members)
	out := make([]int64, len(members))
	for i, m := range members {
		out[i] = m.chatID
	}
	return out
}

// sortMembers applies the stable total order from spec section 4.C:
// Fiorino-type vehicles first, then higher priority score, then earlier
// original index.
func sortMembers(members []member) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.isFiorino != b.isFiorino {
			return a.isFiorino
		}
		if a.priorityScore != b.priorityScore {
			return a.priorityScore > b.priorityScore
		}
		return a.originalIndex < b.originalIndex
	})
}

func removeValue(ids []int64, v int64) []int64 {
	out := ids[:0:0]
	for _, id := range ids {
		if id != v {
			out = append(out, id)
		}
	}
	return out
}

func nowUnix() string {
	return fmt.Sprintf("%d", nowFunc().Unix())
}

func unixToTime(s string) time.Time {
	var sec int64
	_, _ = fmt.Sscanf(s, "%d", &sec)
	return time.Unix(sec, 0)
}

// nowFunc is overridable in tests to pin wall-clock reads for the
// deferral-timer boundary cases (119s vs 120s).
var nowFunc = time.Now
