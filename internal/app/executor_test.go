package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

type recordedOperation struct {
	operation string
	err       error
}

type operationRecorder struct {
	mu        sync.Mutex
	started   []string
	completed []recordedOperation
}

func (r *operationRecorder) OperationStarted(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, operation)
}

func (r *operationRecorder) OperationCompleted(operation string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, recordedOperation{operation: operation, err: err})
}

func TestExecutor(t *testing.T) {
	ctx := context.Background()

	Convey("Given an Executor", t, func() {
		recorder := &operationRecorder{}
		executor := NewExecutor(recorder, zap.NewNop().Sugar())

		var notified []Operation
		var notifiedMu sync.Mutex
		executor.OnCompleted(func(operation Operation, _ error) {
			notifiedMu.Lock()
			defer notifiedMu.Unlock()
			notified = append(notified, operation)
		})

		blocking := func(release <-chan struct{}) Runner {
			return func(ctx context.Context, _ domain.OperationID) error {
				select {
				case <-release:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		Convey("When an operation completes", func() {
			var received domain.OperationID
			op, err := executor.Start(ctx, domain.OperationBackup, func(_ context.Context, op domain.OperationID) error {
				received = op
				return nil
			})
			So(err, ShouldBeNil)
			So(executor.Wait(ctx, op), ShouldBeNil)

			Convey("It should move it to the completed operations", func() {
				So(received, ShouldEqual, op)
				So(executor.Active(), ShouldBeEmpty)

				completed := executor.Completed()
				So(completed, ShouldHaveLength, 1)
				So(completed[0].ID, ShouldEqual, op)
				So(completed[0].Type, ShouldEqual, domain.OperationBackup)
				So(completed[0].Completed, ShouldNotBeNil)
				So(completed[0].Failure, ShouldBeEmpty)

				So(recorder.started, ShouldResemble, []string{"backup"})
				So(recorder.completed, ShouldHaveLength, 1)
				So(recorder.completed[0].err, ShouldBeNil)

				So(notified, ShouldHaveLength, 1)
				So(notified[0].ID, ShouldEqual, op)
			})
		})

		Convey("When an operation fails", func() {
			op, err := executor.Start(ctx, domain.OperationRecovery, func(context.Context, domain.OperationID) error {
				return errors.New("no entry found")
			})
			So(err, ShouldBeNil)

			Convey("It should report the failure", func() {
				err := executor.Wait(ctx, op)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldEqual, "no entry found")

				completed := executor.Completed()
				So(completed, ShouldHaveLength, 1)
				So(completed[0].Failure, ShouldEqual, "no entry found")
				So(recorder.completed[0].err, ShouldNotBeNil)
			})
		})

		Convey("When an operation of the same type is already active", func() {
			release := make(chan struct{})
			first, err := executor.Start(ctx, domain.OperationBackup, blocking(release))
			So(err, ShouldBeNil)

			_, err = executor.Start(ctx, domain.OperationBackup, blocking(release))

			Convey("It should reject the new operation", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldEqual,
					"cannot start [backup] operation; [backup] with ID ["+first.String()+"] is already active")

				active := executor.Active()
				So(active, ShouldHaveLength, 1)
				So(active[0].ID, ShouldEqual, first)
			})

			Convey("It should allow operations of other types", func() {
				other, err := executor.Start(ctx, domain.OperationRecovery, blocking(release))
				So(err, ShouldBeNil)
				So(executor.Active(), ShouldHaveLength, 2)

				close(release)
				So(executor.Wait(ctx, first), ShouldBeNil)
				So(executor.Wait(ctx, other), ShouldBeNil)
			})

			Convey("It should allow a new operation after the active one completes", func() {
				close(release)
				So(executor.Wait(ctx, first), ShouldBeNil)

				second, err := executor.Start(ctx, domain.OperationBackup, func(context.Context, domain.OperationID) error { return nil })
				So(err, ShouldBeNil)
				So(executor.Wait(ctx, second), ShouldBeNil)
				So(executor.Completed(), ShouldHaveLength, 2)
			})
		})

		Convey("When an operation is stopped", func() {
			op, err := executor.Start(ctx, domain.OperationBackup, blocking(make(chan struct{})))
			So(err, ShouldBeNil)

			So(executor.Stop(op), ShouldBeNil)

			Convey("It should cancel the operation", func() {
				So(errors.Is(executor.Wait(ctx, op), context.Canceled), ShouldBeTrue)
				So(executor.Active(), ShouldBeEmpty)
				So(executor.Stop(op), ShouldWrap, ErrOperationNotFound)
			})
		})

		Convey("When the operation is unknown", func() {
			unknown := domain.NewOperationID()

			Convey("It should fail to stop or wait for it", func() {
				So(executor.Stop(unknown), ShouldWrap, ErrOperationNotFound)
				So(executor.Wait(ctx, unknown), ShouldWrap, ErrOperationNotFound)
			})
		})

		Convey("When the executor is shut down", func() {
			backup, err := executor.Start(ctx, domain.OperationBackup, blocking(make(chan struct{})))
			So(err, ShouldBeNil)
			recovery, err := executor.Start(ctx, domain.OperationRecovery, blocking(make(chan struct{})))
			So(err, ShouldBeNil)

			executor.Shutdown()

			Convey("It should stop all active operations", func() {
				So(executor.Active(), ShouldBeEmpty)
				So(executor.Completed(), ShouldHaveLength, 2)
				So(errors.Is(executor.Wait(ctx, backup), context.Canceled), ShouldBeTrue)
				So(errors.Is(executor.Wait(ctx, recovery), context.Canceled), ShouldBeTrue)
			})
		})
	})
}
