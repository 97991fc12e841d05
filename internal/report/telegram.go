// Package report delivers trade events and daily digests over Telegram.
package report

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Sender delivers one formatted message to the reporting channel.
type Sender interface {
	Send(text string) error
}

// TelegramSender sends messages to a single chat via the Bot API.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

var _ Sender = (*TelegramSender)(nil)

// NewTelegramSender authenticates against the Bot API. It fails fast on a
// bad token so misconfiguration surfaces at startup, not at first trade.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send implements Sender.
func (t *TelegramSender) Send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of a chat. Used when no bot
// token is configured.
type LogSender struct {
	Logger *logrus.Logger
}

var _ Sender = (*LogSender)(nil)

// Send implements Sender.
func (l *LogSender) Send(text string) error {
	l.Logger.WithField("channel", "report").Info(text)
	return nil
}
