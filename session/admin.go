package session

import (
	"context"
	"strings"
	"time"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
)

const maxLogChunk = 3500

// handleAdminCommand implements global preprocessing rule 1: admin
// commands take precedence over session state, even mid sync-password
// handshake. It returns handled=true when the event was fully consumed
// here (the caller should not fall through to per-state dispatch).
func (m *Machine) handleAdminCommand(ctx context.Context, sess *models.DriverSession, text string) (handled bool, err error) {
	switch text {
	case "/sync", "/atualizar_dados":
		sess.AdminPending = "sync_all"
		m.send(ctx, sess.ChatID, msg("sync_prompt"))
		return true, m.sessions.Save(ctx, sess)
	case "/syncDriver":
		sess.AdminPending = "sync_driver"
		m.send(ctx, sess.ChatID, msg("sync_prompt"))
		return true, m.sessions.Save(ctx, sess)
	case "/logdiario":
		return true, m.handleLogDiario(ctx, sess.ChatID)
	}

	if sess.AdminPending != "" {
		return true, m.handleSyncPassword(ctx, sess, text)
	}

	return false, nil
}

func (m *Machine) handleSyncPassword(ctx context.Context, sess *models.DriverSession, text string) error {
	pending := sess.AdminPending
	sess.AdminPending = ""
	if err := m.sessions.Save(ctx, sess); err != nil {
		return err
	}

	if text != m.syncPassword {
		m.send(ctx, sess.ChatID, msg("sync_wrong_pass"))
		return nil
	}

	if m.syncInProgress(ctx) {
		m.send(ctx, sess.ChatID, msg("sync_in_progress"))
		return nil
	}
	if err := m.beginSync(ctx); err != nil {
		return err
	}
	defer func() { _ = m.endSync(ctx) }()

	var runErr error
	if pending == "sync_driver" {
		runErr = m.syncRunner.SyncDrivers(ctx)
	} else {
		runErr = m.syncRunner.SyncAll(ctx)
	}
	if runErr != nil {
		m.log.Error("sync run failed", logger.String("kind", pending), logger.Error(runErr))
		return runErr
	}

	m.send(ctx, sess.ChatID, msg("sync_done"))
	m.logEvent(ctx, "admin_sync", map[string]string{"kind": pending})
	return nil
}

func (m *Machine) handleLogDiario(ctx context.Context, chatID int64) error {
	today := time.Now().UTC()
	lines, err := m.eventlog.Day(ctx, today.Format("2006-01-02"))
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		m.send(ctx, chatID, msg("logdiario_empty"))
		return nil
	}

	var chunk strings.Builder
	for _, line := range lines {
		if chunk.Len()+len(line)+1 > maxLogChunk {
			m.send(ctx, chatID, chunk.String())
			chunk.Reset()
		}
		chunk.WriteString(line)
		chunk.WriteString("\n")
	}
	if chunk.Len() > 0 {
		m.send(ctx, chatID, chunk.String())
	}
	return nil
}
