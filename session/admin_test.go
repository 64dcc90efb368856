package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncRunner struct {
	allCalled     bool
	driversCalled bool
}

func (f *fakeSyncRunner) SyncAll(ctx context.Context) error    { f.allCalled = true; return nil }
func (f *fakeSyncRunner) SyncDrivers(ctx context.Context) error { f.driversCalled = true; return nil }

func TestAdminSyncPromptsThenRunsOnCorrectPassword(t *testing.T) {
	m, sender, _, _ := newTestMachine(t)
	runner := &fakeSyncRunner{}
	m.syncRunner = runner
	ctx := context.Background()

	require.NoError(t, m.Handle(ctx, 1, "x"))
	require.NoError(t, m.Handle(ctx, 1, "1")) // identify driver 1

	sender.sent = nil
	require.NoError(t, m.Handle(ctx, 1, "/sync"))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "senha")

	require.NoError(t, m.Handle(ctx, 1, "secret"))
	assert.True(t, runner.allCalled)

	sess, err := m.sessions.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, sess.AdminPending)
}

func TestAdminSyncRejectsWrongPassword(t *testing.T) {
	m, sender, _, _ := newTestMachine(t)
	runner := &fakeSyncRunner{}
	m.syncRunner = runner
	ctx := context.Background()

	require.NoError(t, m.Handle(ctx, 1, "x"))
	require.NoError(t, m.Handle(ctx, 1, "1"))
	require.NoError(t, m.Handle(ctx, 1, "/sync"))

	sender.sent = nil
	require.NoError(t, m.Handle(ctx, 1, "wrong"))
	assert.False(t, runner.allCalled)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "incorreta")
}

func TestAdminCommandTakesPrecedenceOverQueueState(t *testing.T) {
	m, sender, _, _ := newTestMachine(t)
	ctx := context.Background()

	require.NoError(t, m.Handle(ctx, 1, "x"))
	require.NoError(t, m.Handle(ctx, 1, "1"))

	sess, err := m.sessions.Get(ctx, 1)
	require.NoError(t, err)
	sess.InQueue = true
	require.NoError(t, m.sessions.Save(ctx, sess))

	sender.sent = nil
	require.NoError(t, m.Handle(ctx, 1, "/logdiario"))
	require.Len(t, sender.sent, 1, "admin command must be handled even though the session is parked inQueue")
	assert.Contains(t, sender.sent[0], "action=identified")
}

func TestLogDiarioChunksLongOutput(t *testing.T) {
	m, sender, _, _ := newTestMachine(t)
	ctx := context.Background()

	require.NoError(t, m.Handle(ctx, 1, "x"))
	require.NoError(t, m.Handle(ctx, 1, "1"))

	for i := 0; i < 200; i++ {
		m.logEvent(ctx, "tick", map[string]string{"i": "0123456789012345"})
	}

	sender.sent = nil
	require.NoError(t, m.handleLogDiario(ctx, 1))
	require.NotEmpty(t, sender.sent)
	for _, chunk := range sender.sent {
		assert.LessOrEqual(t, len(chunk), maxLogChunk+1)
	}
}
