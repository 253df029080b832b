package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harunnryd/ivrbridge/internal/errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramNotifier struct {
	token    string
	chatID   int64
	endpoint string

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier sends notices to chatID. An empty endpoint uses the public Bot API.
func NewTelegramNotifier(token string, chatID int64, endpoint string) *TelegramNotifier {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramNotifier{
		token:    token,
		chatID:   chatID,
		endpoint: endpoint,
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// client connects on first use so a Telegram outage never blocks startup.
func (t *TelegramNotifier) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init telegram bot")
	}
	slog.Info("Telegram notifier connected", "user", bot.Self.UserName)
	t.bot = bot
	return bot, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, tr Transfer) error {
	bot, err := t.client()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, Format(tr))
	if _, err := bot.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send telegram notice")
	}

	slog.Debug("Telegram notice sent", "chat_id", t.chatID, "call_id", tr.CallID)
	return nil
}

func (t *TelegramNotifier) Health(ctx context.Context) error {
	bot, err := t.client()
	if err != nil {
		return errors.Transient("Telegram bot not initialized: " + err.Error())
	}

	if _, err := bot.GetMe(); err != nil {
		return errors.Transient("Telegram connection failed: " + err.Error())
	}

	return nil
}
