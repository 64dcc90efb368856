package bot

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v3"

	"dispatchbot/config"
	"dispatchbot/pkg/logger"
)

// Sender wraps a telebot client as the orchestration core's outbound
// chat delivery adapter (spec section 4.I). It never blocks a state
// transition on delivery success: failures are logged and returned to
// the caller, who decides whether that's fatal for the current event.
type Sender struct {
	bot *tele.Bot
	log logger.ILogger
}

func New(cfg config.Config, log logger.ILogger) (*Sender, error) {
	pref := tele.Settings{
		Token:  cfg.TelegramBotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("bot: init telebot client: %w", err)
	}
	return &Sender{bot: b, log: log}, nil
}

func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	_, err := s.bot.Send(&tele.User{ID: chatID}, text)
	if err != nil {
		s.log.Warning("outbound send failed", logger.Int64("chat_id", chatID), logger.Error(err))
		return err
	}
	return nil
}
