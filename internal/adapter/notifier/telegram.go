// Package notifier sends operation reports to chat services.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sndnv/stasis-sub000/internal/config"
	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/tracker"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot    sender
	chatID int64
}

func NewTelegram(cfg *config.TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}

	return nil
}

// OperationCompleted reports the outcome of a finished operation.
func (t *Telegram) OperationCompleted(ctx context.Context, op domain.OperationID, summary tracker.Summary, failure error) error {
	return t.Notify(ctx, FormatSummary(op, summary, failure))
}

func FormatSummary(op domain.OperationID, summary tracker.Summary, failure error) string {
	var b strings.Builder

	title := "Operation"
	if summary.Type != "" {
		title = strings.ToUpper(string(summary.Type[:1])) + string(summary.Type[1:])
	}
	if failure != nil {
		fmt.Fprintf(&b, "❌ %s Failed\n\n", title)
	} else {
		fmt.Fprintf(&b, "✅ %s Completed\n\n", title)
	}

	fmt.Fprintf(&b, "🆔 Operation: %s\n", op)
	fmt.Fprintf(&b, "📁 Entities: %d/%d\n", summary.Processed, summary.Total)
	fmt.Fprintf(&b, "⚠️ Failures: %d\n", summary.Failures)

	end := time.Now()
	if summary.Completed != nil {
		end = *summary.Completed
	}
	fmt.Fprintf(&b, "🕐 Duration: %s", end.Sub(summary.Started).Round(time.Second))

	if failure != nil {
		fmt.Fprintf(&b, "\n\n%v", failure)
	}

	return b.String()
}
