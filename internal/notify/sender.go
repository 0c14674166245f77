package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers a text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// BotAPI is the part of *tgbotapi.BotAPI the sender uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts messages through the Telegram Bot API, retrying a few
// times with exponential backoff.
type TelegramSender struct {
	bot      BotAPI
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewTelegramSender wraps a bot client.
func NewTelegramSender(bot BotAPI, logger *slog.Logger) *TelegramSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramSender{
		bot:      bot,
		attempts: 3,
		backoff:  time.Second,
		logger:   logger.With("component", "telegram_sender"),
	}
}

// Send implements Sender.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	if s == nil || s.bot == nil {
		return errors.New("notify: telegram sender is nil")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	var err error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			wait := s.backoff << (attempt - 1)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		var sent tgbotapi.Message
		if sent, err = s.bot.Send(msg); err == nil {
			s.logger.DebugContext(ctx, "message sent", "chat_id", chatID, "message_id", sent.MessageID)
			return nil
		}
		s.logger.WarnContext(ctx, "send failed", "chat_id", chatID, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("notify: send to chat %d: %w", chatID, err)
}

// LogSender writes messages to the log. It stands in for Telegram when no
// bot token is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, chatID int64, text string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "chat_id", chatID, "text", text)
	return nil
}
