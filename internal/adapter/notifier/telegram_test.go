package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/tracker"
)

type recordingSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.sent = append(r.sent, c)
	return tgbotapi.Message{}, r.err
}

func TestTelegram(t *testing.T) {
	Convey("Given a telegram notifier", t, func() {
		sender := &recordingSender{}
		notifier := &Telegram{bot: sender, chatID: 42}

		op := uuid.New()
		started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		completed := started.Add(90 * time.Second)
		summary := tracker.Summary{
			Type:      domain.OperationBackup,
			Started:   started,
			Total:     10,
			Processed: 8,
			Failures:  2,
			Completed: &completed,
		}

		Convey("When an operation completes", func() {
			err := notifier.OperationCompleted(context.Background(), op, summary, nil)

			Convey("It should send a summary to the configured chat", func() {
				So(err, ShouldBeNil)
				So(sender.sent, ShouldHaveLength, 1)

				msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
				So(ok, ShouldBeTrue)
				So(msg.ChatID, ShouldEqual, int64(42))
				So(msg.Text, ShouldStartWith, "✅ Backup Completed")
				So(msg.Text, ShouldContainSubstring, op.String())
				So(msg.Text, ShouldContainSubstring, "Entities: 8/10")
				So(msg.Text, ShouldContainSubstring, "Failures: 2")
				So(msg.Text, ShouldContainSubstring, "Duration: 1m30s")
			})
		})

		Convey("When an operation fails", func() {
			text := FormatSummary(op, summary, errors.New("upload failed"))

			Convey("It should include the failure", func() {
				So(text, ShouldStartWith, "❌ Backup Failed")
				So(text, ShouldEndWith, "upload failed")
			})
		})

		Convey("When sending fails", func() {
			sender.err = errors.New("unauthorized")
			err := notifier.Notify(context.Background(), "test")

			Convey("It should return a wrapped error", func() {
				So(err, ShouldWrap, sender.err)
				So(err.Error(), ShouldContainSubstring, "failed to send telegram notification")
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			Convey("It should not send anything", func() {
				So(notifier.Notify(ctx, "test"), ShouldEqual, context.Canceled)
				So(sender.sent, ShouldBeEmpty)
			})
		})
	})
}
