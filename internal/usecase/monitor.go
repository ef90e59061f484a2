package usecase

import (
	"context"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
	Server() string
}

type ServerTracker interface {
	Reachable(server string)
	Unreachable(server string)
}

type ReachabilityRecorder interface {
	ServerReachable(server string, reachable bool)
}

// ServerMonitor periodically checks whether the API server is reachable.
// Unreachable servers are checked again sooner: a tenth of the interval, but
// never sooner than the initial delay.
type ServerMonitor struct {
	api          Pinger
	tracker      ServerTracker
	metrics      ReachabilityRecorder
	logger       Logger
	initialDelay time.Duration
	interval     time.Duration
}

func NewServerMonitor(
	api Pinger,
	tracker ServerTracker,
	metrics ReachabilityRecorder,
	logger Logger,
	initialDelay time.Duration,
	interval time.Duration,
) *ServerMonitor {
	return &ServerMonitor{
		api:          api,
		tracker:      tracker,
		metrics:      metrics,
		logger:       logger,
		initialDelay: initialDelay,
		interval:     interval,
	}
}

// Run checks the server until ctx is cancelled.
func (uc *ServerMonitor) Run(ctx context.Context) error {
	timer := time.NewTimer(uc.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			timer.Reset(uc.next(uc.Check(ctx)))
		}
	}
}

// Check pings the server once and records the outcome.
func (uc *ServerMonitor) Check(ctx context.Context) bool {
	server := uc.api.Server()

	if err := uc.api.Ping(ctx); err != nil {
		uc.logger.Warnf("Server [%s] is not reachable: %v", server, err)
		uc.tracker.Unreachable(server)
		uc.metrics.ServerReachable(server, false)
		return false
	}

	uc.logger.Debugf("Server [%s] is reachable", server)
	uc.tracker.Reachable(server)
	uc.metrics.ServerReachable(server, true)
	return true
}

func (uc *ServerMonitor) next(reachable bool) time.Duration {
	if reachable {
		return uc.interval
	}
	return max(uc.interval/10, uc.initialDelay)
}
