// Package notify delivers volume alerts to external channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"go.uber.org/zap"
)

// MessageSender is the part of *bot.Bot used for alerts.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram posts alerts to a chat.
type Telegram struct {
	sender MessageSender
	chatID int64
	logger *zap.Logger
}

// NewTelegram creates a Telegram notifier. The token is not validated against
// the API until the first message is sent.
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	return NewTelegramWithSender(b, chatID, logger), nil
}

func NewTelegramWithSender(sender MessageSender, chatID int64, logger *zap.Logger) *Telegram {
	return &Telegram{sender: sender, chatID: chatID, logger: logger}
}

// Notify sends one alert. It has the alert subscriber signature.
func (t *Telegram) Notify(ctx context.Context, symbol string, alert domain.Alert) error {
	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      FormatMarkdown(symbol, alert),
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}
	t.logger.Debug("telegram alert sent", zap.String("symbol", symbol), zap.String("alert", alert.Text))
	return nil
}

// FormatMarkdown renders an alert as a Telegram markdown message.
func FormatMarkdown(symbol string, alert domain.Alert) string {
	icon := "🔴"
	if alert.Direction == domain.DirectionBullish {
		icon = "🟢"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s\n", icon, symbol, alert.Text)
	fmt.Fprintf(&b, "Price: `%s`\n", alert.Price.String())
	fmt.Fprintf(&b, "Volume: `%s` (%sx avg)\n", alert.Volume.String(), alert.VolumeRatio.StringFixed(2))
	fmt.Fprintf(&b, "Bar: %s UTC", alert.BarTime.UTC().Format("2006-01-02 15:04"))
	return b.String()
}
