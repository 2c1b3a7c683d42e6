package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"vpn-backend/internal/service"
)

// TelegramNotifier доставляет события об истечении подписок прямо в
// чат пользователя.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: bot}, nil
}

func (n *TelegramNotifier) SubscriptionExpiring(ctx context.Context, ev service.Event) error {
	text := fmt.Sprintf(`⚠️ Напоминание о подписке

Ваша подписка (%s, %s, %s) истекает завтра.

Не забудьте продлить подписку, чтобы не потерять доступ к VPN!`,
		ev.Type, ev.Region, ev.Protocol,
	)
	return n.send(ev.TelegramID, text)
}

func (n *TelegramNotifier) SubscriptionExpired(ctx context.Context, ev service.Event) error {
	text := fmt.Sprintf(`⛔️ Подписка завершена

Срок вашей подписки (%s, %s, %s) истек, доступ отключен.

Оформите новую подписку, чтобы снова пользоваться VPN.`,
		ev.Type, ev.Region, ev.Protocol,
	)
	return n.send(ev.TelegramID, text)
}

func (n *TelegramNotifier) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := n.bot.Send(msg)
	return err
}

// LogNotifier - заглушка на случай, когда бот не сконфигурирован:
// события только логируются.
type LogNotifier struct{}

func (LogNotifier) SubscriptionExpiring(ctx context.Context, ev service.Event) error {
	slog.Info("Subscription expiring", "tg_id", ev.TelegramID, "type", ev.Type, "region", ev.Region)
	return nil
}

func (LogNotifier) SubscriptionExpired(ctx context.Context, ev service.Event) error {
	slog.Info("Subscription expired", "tg_id", ev.TelegramID, "type", ev.Type, "region", ev.Region)
	return nil
}
