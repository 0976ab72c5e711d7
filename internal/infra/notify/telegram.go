package notify

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes operational alerts to the admin chat. A nil Notifier is
// valid and silently drops messages, so wiring stays optional.
type Notifier struct {
	log    *slog.Logger
	bot    *tgbotapi.BotAPI
	chatID int64
}

func New(log *slog.Logger, token string, chatID int64) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Notifier{log: log, bot: bot, chatID: chatID}, nil
}

func (n *Notifier) Send(text string) {
	if n == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error("admin notification failed", "err", err)
	}
}
