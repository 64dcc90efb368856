// Package session implements the per-driver conversational state machine
// of spec section 4.E: the bounded WAITING_ID/MENU/HELP_MENU/CHOOSING_ROUTE
// flow, global event preprocessing (admin handshake, sync gating, queue
// re-entry), and the glue between the queue/slot/timer primitives in kv
// and the route claim executor.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dispatchbot/kv"
	"dispatchbot/pkg/models"
)

func sessionKey(chatID int64) string { return fmt.Sprintf("session:%d", chatID) }

// Store persists DriverSession as JSON under session:<chatId> with the
// soft idle TTL from spec section 3 (STATE_TTL, default 3h).
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

func NewStore(store kv.Store, stateTTL time.Duration) *Store {
	return &Store{kv: store, ttl: stateTTL}
}

// Get returns the stored session for chatID, or (nil, nil) if none exists.
func (s *Store) Get(ctx context.Context, chatID int64) (*models.DriverSession, error) {
	raw, err := s.kv.Get(ctx, sessionKey(chatID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess models.DriverSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) Save(ctx context.Context, sess *models.DriverSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.kv.SetTTL(ctx, sessionKey(sess.ChatID), string(raw), s.ttl)
}

func (s *Store) Clear(ctx context.Context, chatID int64) error {
	return s.kv.Del(ctx, sessionKey(chatID))
}

// StateAndGroup implements kv.SessionReader for the timer wheel: it needs
// to know whether the session that armed a timer is still in
// CHOOSING_ROUTE without pulling in the whole session package.
func (s *Store) StateAndGroup(ctx context.Context, chatID int64) (models.SessionState, models.QueueGroup, bool) {
	sess, err := s.Get(ctx, chatID)
	if err != nil || sess == nil {
		return "", "", false
	}
	return sess.State, sess.QueueGroup, true
}
