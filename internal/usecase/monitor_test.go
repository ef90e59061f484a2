package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/sndnv/stasis-sub000/internal/tracker"
)

type flakyPinger struct {
	mu        sync.Mutex
	reachable bool
	pings     int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings++
	if !p.reachable {
		return errors.New("connection refused")
	}
	return nil
}

func (p *flakyPinger) Server() string { return "test-server" }

func (p *flakyPinger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pings
}

type reachabilityRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *reachabilityRecorder) ServerReachable(_ string, reachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reachable)
}

func TestServerMonitor(t *testing.T) {
	logger := zap.NewNop().Sugar()

	Convey("Given a server monitor", t, func() {
		pinger := &flakyPinger{reachable: true}
		servers := tracker.NewServerTracker()
		defer servers.Close()
		recorder := &reachabilityRecorder{}

		monitor := NewServerMonitor(pinger, servers, recorder, logger, 10*time.Millisecond, time.Second)

		Convey("When the server is reachable", func() {
			So(monitor.Check(context.Background()), ShouldBeTrue)

			Convey("It should record it", func() {
				So(recorder.calls, ShouldResemble, []bool{true})
				So(eventually(func() bool {
					state, ok := servers.StateOf("test-server")
					return ok && state.Reachable
				}), ShouldBeTrue)
			})
		})

		Convey("When the server is not reachable", func() {
			pinger.reachable = false
			So(monitor.Check(context.Background()), ShouldBeFalse)

			Convey("It should record it", func() {
				So(recorder.calls, ShouldResemble, []bool{false})
				So(eventually(func() bool {
					state, ok := servers.StateOf("test-server")
					return ok && !state.Reachable
				}), ShouldBeTrue)
			})
		})

		Convey("It should check unreachable servers more often", func() {
			So(monitor.next(true), ShouldEqual, time.Second)
			So(monitor.next(false), ShouldEqual, 100*time.Millisecond)

			slow := NewServerMonitor(pinger, servers, recorder, logger, 500*time.Millisecond, time.Second)
			So(slow.next(false), ShouldEqual, 500*time.Millisecond)
		})

		Convey("When it runs against an unreachable server", func() {
			pinger.reachable = false
			fast := NewServerMonitor(pinger, servers, recorder, logger, 5*time.Millisecond, 50*time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			So(fast.Run(ctx), ShouldBeNil)

			Convey("It should keep retrying until cancelled", func() {
				So(pinger.count(), ShouldBeGreaterThanOrEqualTo, 3)
			})
		})
	})
}

func eventually(condition func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
