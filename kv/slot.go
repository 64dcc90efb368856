package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
)


type slotMeta struct {
	ChatID    int64     `json:"chat_id"`
	StartedAt time.Time `json:"started_at"`
}

// Slot is the active-slot controller for one queue group: it enforces
// the single-active-driver-per-group invariant (spec invariant 1) and
// owns the acquire/refresh/release/expire lifecycle of spec section 4.D.
type Slot struct {
	store Store
	queue *Queue
	log   logger.ILogger
	group models.QueueGroup

	queueTTL time.Duration

	// notifyNext is called (outside any lock) whenever activation hands
	// the slot to a chat other than the caller, so the session layer can
	// push the routes menu to the new holder.
	notifyNext func(ctx context.Context, chatID int64, group models.QueueGroup)
	// onTimeout is called when the sweeper or a background reclaim finds
	// an expired slot holder, so the session layer can close that
	// session and notify the chat. Spec section 4.G handleTimeout.
	onTimeout func(ctx context.Context, chatID int64, group models.QueueGroup)
}

func NewSlot(store Store, queue *Queue, log logger.ILogger, group models.QueueGroup, queueTTL time.Duration) *Slot {
	return &Slot{store: store, queue: queue, log: log, group: group, queueTTL: queueTTL}
}

func (s *Slot) OnNotifyNext(fn func(ctx context.Context, chatID int64, group models.QueueGroup)) { s.notifyNext = fn }
func (s *Slot) OnTimeout(fn func(ctx context.Context, chatID int64, group models.QueueGroup))     { s.onTimeout = fn }

func (s *Slot) activeKey() string { return fmt.Sprintf("queue:active:%s", s.group) }
func (s *Slot) metaKey() string   { return fmt.Sprintf("queue:active:meta:%s", s.group) }

// Reset clears the active slot unconditionally, without notifying
// anyone or activating a replacement. Used by operator tooling to force
// a stuck group back to idle.
func (s *Slot) Reset(ctx context.Context) error {
	return s.store.Del(ctx, s.activeKey(), s.metaKey())
}

// metaTTL outlives the slot window so a crashed process's held slot can
// still be observed and reclaimed by the sweeper without ambiguity.
func (s *Slot) metaTTL() time.Duration { return 2 * s.queueTTL }

// TryAcquire implements spec section 4.D: idempotent if the caller
// already holds the slot; reclaims an expired holder and retries;
// otherwise activates the next queued chat, which may or may not be the
// caller.
func (s *Slot) TryAcquire(ctx context.Context, chatID int64) (bool, error) {
	current, err := s.store.Get(ctx, s.activeKey())
	switch {
	case errors.Is(err, ErrNotFound):
		return s.activateNext(ctx, chatID)
	case err != nil:
		return false, err
	}

	if current == fmt.Sprintf("%d", chatID) {
		return true, nil
	}

	expired, err := s.RequeueExpiredActive(ctx)
	if err != nil {
		return false, err
	}
	if !expired {
		return false, nil
	}
	return s.activateNext(ctx, chatID)
}

// ActivateIfIdle activates the next queued chat only if the group
// currently holds no active slot. Used by the sweeper, which is not
// itself a waiting chat and so has no "caller" to hand the slot to.
func (s *Slot) ActivateIfIdle(ctx context.Context) error {
	_, err := s.store.Get(ctx, s.activeKey())
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.activateNext(ctx, 0)
	return err
}

func (s *Slot) activateNext(ctx context.Context, caller int64) (bool, error) {
	var (
		activated int64
		ok        bool
	)
	err := WithLock(ctx, s.store, string(s.group), s.log, func(ctx context.Context) error {
		next, found, err := s.queue.pickNextLocked(ctx)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if err := s.installSlot(ctx, next); err != nil {
			return err
		}
		activated = next
		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if activated == caller {
		return true, nil
	}
	if s.notifyNext != nil {
		s.notifyNext(ctx, activated, s.group)
	}
	return false, nil
}

func (s *Slot) installSlot(ctx context.Context, chatID int64) error {
	if err := s.store.SetTTL(ctx, s.activeKey(), fmt.Sprintf("%d", chatID), s.queueTTL); err != nil {
		return err
	}
	meta := slotMeta{ChatID: chatID, StartedAt: time.Now()}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.store.SetTTL(ctx, s.metaKey(), string(raw), s.metaTTL())
}

// RefreshMeta extends the slot window. Called every time the holder is
// served a fresh routes menu (spec section 4.D rationale for the
// activeChatId/activeMeta TTL split).
func (s *Slot) RefreshMeta(ctx context.Context, chatID int64) error {
	if err := s.store.Expire(ctx, s.activeKey(), s.queueTTL); err != nil {
		return err
	}
	meta := slotMeta{ChatID: chatID, StartedAt: time.Now()}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.store.SetTTL(ctx, s.metaKey(), string(raw), s.metaTTL())
}

// ReleaseAndNotifyNext clears the slot and activates whoever is next in
// line, notifying them outside the lock.
func (s *Slot) ReleaseAndNotifyNext(ctx context.Context) error {
	var (
		next  int64
		found bool
	)
	err := WithLock(ctx, s.store, string(s.group), s.log, func(ctx context.Context) error {
		if err := s.store.Del(ctx, s.activeKey(), s.metaKey()); err != nil {
			return err
		}
		n, f, err := s.queue.pickNextLocked(ctx)
		if err != nil {
			return err
		}
		if !f {
			return nil
		}
		if err := s.installSlot(ctx, n); err != nil {
			return err
		}
		next, found = n, f
		return nil
	})
	if err != nil {
		return err
	}
	if found && s.notifyNext != nil {
		s.notifyNext(ctx, next, s.group)
	}
	return nil
}

// RequeueExpiredActive implements the crash-recovery reclaim of spec
// section 4.D: under a secondary reclaim lock (distinct from the
// group's main lock, so a hung activation doesn't block reclaim), reads
// activeMeta and, if the 30s service window has elapsed, clears the slot
// and fires onTimeout for the abandoned holder.
func (s *Slot) RequeueExpiredActive(ctx context.Context) (bool, error) {
	var expired bool
	var timedOutChat int64

	err := WithKeyedLock(ctx, s.store, ReclaimLockKey(string(s.group)), s.log, func(ctx context.Context) error {
		raw, err := s.store.Get(ctx, s.metaKey())
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var meta slotMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return s.store.Del(ctx, s.activeKey(), s.metaKey())
		}
		if time.Since(meta.StartedAt) < s.queueTTL {
			return nil
		}
		if err := s.store.Del(ctx, s.activeKey(), s.metaKey()); err != nil {
			return err
		}
		expired = true
		timedOutChat = meta.ChatID
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired && s.onTimeout != nil {
		s.onTimeout(ctx, timedOutChat, s.group)
	}
	return expired, nil
}
