package session

import (
	"context"
	"time"
)

const syncFlagKey = "sync:in_progress"
const syncMaxHold = 30 * time.Minute

// SyncRunner is the injected collaborator for the out-of-scope bulk ETL
// (spreadsheet import/export and schema refresh) named in spec section
// 1's non-redesigned collaborators. The core only gates chat traffic
// around it and reports completion; it never inspects what the runner
// actually synchronizes.
type SyncRunner interface {
	SyncAll(ctx context.Context) error
	SyncDrivers(ctx context.Context) error
}

// NoopSyncRunner is used when no ETL collaborator is wired in (e.g. a
// local/dev boot); it acknowledges the handshake without doing anything.
type NoopSyncRunner struct{}

func (NoopSyncRunner) SyncAll(ctx context.Context) error    { return nil }
func (NoopSyncRunner) SyncDrivers(ctx context.Context) error { return nil }

func (m *Machine) syncInProgress(ctx context.Context) bool {
	_, err := m.kv.Get(ctx, syncFlagKey)
	return err == nil
}

func (m *Machine) beginSync(ctx context.Context) error {
	_, err := m.kv.SetIfAbsent(ctx, syncFlagKey, "1", syncMaxHold)
	return err
}

func (m *Machine) endSync(ctx context.Context) error {
	return m.kv.Del(ctx, syncFlagKey)
}
