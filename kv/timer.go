package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
)

func timerKey(chatID int64) string { return fmt.Sprintf("route:timeout:%d", chatID) }

// SessionReader is the narrow read the timer wheel needs from the
// session store: the current state and queue group for the chat the
// timer was armed for. Defined here (rather than imported from session)
// to avoid a kv -> session import cycle; session implements it.
type SessionReader interface {
	StateAndGroup(ctx context.Context, chatID int64) (state models.SessionState, group models.QueueGroup, ok bool)
}

// Timer is the per-slot response-timeout mechanism of spec section 4.G.
// In-memory scheduling (time.AfterFunc) is a latency optimization; the
// background sweeper is the correctness backstop, since the token and
// slot metadata survive process restarts in the KV store.
type Timer struct {
	store    Store
	sessions SessionReader
	log      logger.ILogger
	queueTTL time.Duration

	onExpire func(ctx context.Context, chatID int64, group models.QueueGroup)
}

func NewTimer(store Store, sessions SessionReader, log logger.ILogger, queueTTL time.Duration) *Timer {
	return &Timer{store: store, sessions: sessions, log: log, queueTTL: queueTTL}
}

func (t *Timer) OnExpire(fn func(ctx context.Context, chatID int64, group models.QueueGroup)) {
	t.onExpire = fn
}

// Arm writes a fresh token for chatID and schedules an in-process
// callback at +queueTTL that re-validates token, slot, and session state
// before invoking handleTimeout — the check chain from spec section 4.G.
func (t *Timer) Arm(ctx context.Context, chatID int64, group models.QueueGroup, activeChatOf func(context.Context, models.QueueGroup) (int64, bool)) error {
	token := uuid.NewString()
	if err := t.store.SetTTL(ctx, timerKey(chatID), token, t.queueTTL); err != nil {
		return err
	}

	time.AfterFunc(t.queueTTL, func() {
		fireCtx := context.Background()
		t.fire(fireCtx, chatID, group, token, activeChatOf)
	})
	return nil
}

func (t *Timer) fire(ctx context.Context, chatID int64, group models.QueueGroup, token string, activeChatOf func(context.Context, models.QueueGroup) (int64, bool)) {
	cur, err := t.store.Get(ctx, timerKey(chatID))
	if err != nil || cur != token {
		return
	}

	if activeChatOf != nil {
		active, ok := activeChatOf(ctx, group)
		if !ok || active != chatID {
			_ = t.store.Del(ctx, timerKey(chatID))
			return
		}
	}

	state, _, ok := t.sessions.StateAndGroup(ctx, chatID)
	if !ok || state != models.StateChoosingRoute {
		_ = t.store.Del(ctx, timerKey(chatID))
		return
	}

	_ = t.store.Del(ctx, timerKey(chatID))
	t.log.Info("session timer fired", logger.Int64("chat_id", chatID), logger.String("group", string(group)))
	if t.onExpire != nil {
		t.onExpire(ctx, chatID, group)
	}
}

// Disarm clears the token without firing handleTimeout, used when the
// session leaves CHOOSING_ROUTE on its own (claim success, encerrar).
func (t *Timer) Disarm(ctx context.Context, chatID int64) error {
	if err := t.store.Del(ctx, timerKey(chatID)); err != nil {
		return err
	}
	return nil
}

const sweepInterval = 5 * time.Second

// Sweeper is the crash-recovery backstop of spec section 4.G: a single
// ticker that, every sweepInterval, visits each queue group in turn,
// reclaims an expired active slot and, if the group currently holds no
// slot, tries to activate whoever is next in line. It exists because a crashed process never gets to run
// its in-memory time.AfterFunc callback, so the slot would otherwise sit
// held until a human intervenes.
type Sweeper struct {
	log    logger.ILogger
	slots  map[models.QueueGroup]*Slot
	cancel context.CancelFunc
}

func NewSweeper(log logger.ILogger, slots map[models.QueueGroup]*Slot) *Sweeper {
	return &Sweeper{log: log, slots: slots}
}

// Run blocks until ctx is cancelled, sweeping every group on a fixed
// interval. Intended to be launched with `go sweeper.Run(ctx)`.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *Sweeper) tick(ctx context.Context) {
	for group, slot := range sw.slots {
		expired, err := slot.RequeueExpiredActive(ctx)
		if err != nil {
			sw.log.Warning("sweeper reclaim failed", logger.String("group", string(group)), logger.Error(err))
			continue
		}
		if expired {
			continue
		}
		if err := slot.ActivateIfIdle(ctx); err != nil {
			sw.log.Warning("sweeper activate failed", logger.String("group", string(group)), logger.Error(err))
		}
	}
}
