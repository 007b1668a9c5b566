package channel

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/slack-go/slack"

	"aquabot/internal/config"
	"aquabot/internal/domain"
)

// TelegramAlerts posts ops alerts (complaints, suggestions, failures) to a
// Telegram chat.
type TelegramAlerts struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

func NewTelegramAlerts(cfg config.TelegramAlertConfig, logger *slog.Logger) (*TelegramAlerts, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram alerts init: %w", err)
	}
	logger.Info("telegram alerts ready", "bot", bot.Self.UserName, "chat", cfg.ChatID)
	return &TelegramAlerts{bot: bot, chatID: cfg.ChatID, logger: logger}, nil
}

func (t *TelegramAlerts) Notify(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram alert send: %w", err)
	}
	return nil
}

// SlackAlerts posts ops alerts to a Slack channel.
type SlackAlerts struct {
	client  *slack.Client
	channel string
	logger  *slog.Logger
}

func NewSlackAlerts(cfg config.SlackAlertConfig, logger *slog.Logger) *SlackAlerts {
	return &SlackAlerts{
		client:  slack.New(cfg.Token),
		channel: cfg.Channel,
		logger:  logger,
	}
}

func (s *SlackAlerts) Notify(ctx context.Context, text string) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack alert send: %w", err)
	}
	return nil
}

// Notifiers builds the enabled alert sinks from configuration. A sink that
// fails to initialize is skipped with a logged error rather than blocking
// startup.
func Notifiers(cfg config.AlertsConfig, logger *slog.Logger) []domain.Notifier {
	var sinks []domain.Notifier
	if cfg.Telegram.Enabled {
		tg, err := NewTelegramAlerts(cfg.Telegram, logger)
		if err != nil {
			logger.Error("telegram alerts disabled", "error", err)
		} else {
			sinks = append(sinks, tg)
		}
	}
	if cfg.Slack.Enabled {
		sinks = append(sinks, NewSlackAlerts(cfg.Slack, logger))
	}
	return sinks
}
