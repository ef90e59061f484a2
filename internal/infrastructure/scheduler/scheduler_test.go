package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
)

func TestScheduler(t *testing.T) {
	logger := zap.NewNop().Sugar()

	Convey("Given a Scheduler", t, func() {
		Convey("New function", func() {
			scheduler := New(logger)

			Convey("It should create a new scheduler successfully", func() {
				So(scheduler, ShouldNotBeNil)
				So(scheduler.cron, ShouldNotBeNil)
				So(scheduler.Jobs(), ShouldBeEmpty)
			})
		})

		Convey("AddJob function", func() {
			scheduler := New(logger)

			Convey("When adding a job with a valid cron spec", func() {
				var runs atomic.Int32
				err := scheduler.AddJob("counter", "* * * * * *", func(context.Context) error {
					runs.Add(1)
					return nil
				})

				Convey("It should run the job", func() {
					So(err, ShouldBeNil)

					jobs := scheduler.Jobs()
					So(jobs, ShouldHaveLength, 1)
					So(jobs[0].Name, ShouldEqual, "counter")
					So(jobs[0].Spec, ShouldEqual, "* * * * * *")

					scheduler.Start()
					time.Sleep(2 * time.Second)
					scheduler.Stop()

					So(runs.Load(), ShouldBeGreaterThanOrEqualTo, 1)
				})
			})

			Convey("When a job fails", func() {
				var runs atomic.Int32
				err := scheduler.AddJob("failing", "* * * * * *", func(context.Context) error {
					runs.Add(1)
					return errors.New("boom")
				})
				So(err, ShouldBeNil)

				Convey("It should keep running it", func() {
					scheduler.Start()
					time.Sleep(2500 * time.Millisecond)
					scheduler.Stop()

					So(runs.Load(), ShouldBeGreaterThanOrEqualTo, 2)
				})
			})

			Convey("When adding a job with an invalid cron spec", func() {
				err := scheduler.AddJob("invalid", "invalid spec", func(context.Context) error { return nil })

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to schedule job [invalid]")
					So(err.Error(), ShouldContainSubstring, "expected exactly 6 fields")
				})
			})
		})

		Convey("Start and Stop methods", func() {
			scheduler := New(logger)

			Convey("When a running job is stopped", func() {
				started := make(chan struct{}, 1)
				var cancelled atomic.Bool
				err := scheduler.AddJob("long", "* * * * * *", func(ctx context.Context) error {
					select {
					case started <- struct{}{}:
					default:
					}
					<-ctx.Done()
					cancelled.Store(true)
					return ctx.Err()
				})
				So(err, ShouldBeNil)

				Convey("It should cancel the job and wait for it", func() {
					scheduler.Start()
					<-started
					scheduler.Stop()

					So(cancelled.Load(), ShouldBeTrue)
				})
			})
		})
	})
}
