// Package notifier implements the ops-alert channel: fleet-health events
// (bot ready, bot disconnects, failed logins, bot errors) reported to a
// Telegram chat for the operator; relogs have no event of their own. Adapted from the teacher's
// TelegramBot, which served the analogous "good deal found" alert for the
// gift-market domain; the wire client (mymmrac/telego) and send/run shape
// are unchanged, only the event payload and message templates differ.
package notifier

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"inspectfleet/internal/infrastructure/gc"
	"inspectfleet/pkg/contextx"
	"inspectfleet/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// TelegramBot posts fleet-health alerts from a gc.Fleet's event stream.
type TelegramBot struct {
	bot    *telego.Bot
	chatID int64
}

func NewTelegramBot(token string, chatID int64) (*TelegramBot, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &TelegramBot{bot: bot, chatID: chatID}, nil
}

// Run drains events until the channel closes or ctx is cancelled.
func (b *TelegramBot) Run(ctx context.Context, events <-chan gc.FleetEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			if err := b.SendEvent(ctx, ev); err != nil {
				logger(ctx).Error("notifier: send fleet event", logx.Error(err))
			}
		}
	}
}

// SendEvent formats and posts one fleet-health notification.
func (b *TelegramBot) SendEvent(ctx context.Context, ev gc.FleetEvent) error {
	var text string

	switch ev.Kind {
	case gc.FleetEventReady:
		text = fmt.Sprintf("✅ <b>%s</b> is ready", ev.Bot)
	case gc.FleetEventDisconnected:
		text = fmt.Sprintf("⚠️ <b>%s</b> disconnected (eresult %d) %s", ev.Bot, ev.EResult, ev.Message)
	case gc.FleetEventLoginFailed:
		text = fmt.Sprintf("❌ <b>%s</b> login failed: %v", ev.Bot, ev.Err)
	case gc.FleetEventError:
		text = fmt.Sprintf("❌ <b>%s</b> session error: %v", ev.Bot, ev.Err)
	default:
		return nil
	}

	return b.SendText(ctx, text)
}

// SendText posts a plain/HTML-formatted message.
func (b *TelegramBot) SendText(ctx context.Context, text string) error {
	msg := tu.Message(tu.ID(b.chatID), text).WithParseMode(telego.ModeHTML)

	if _, err := b.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}
