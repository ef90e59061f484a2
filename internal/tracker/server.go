package tracker

import (
	"context"
	"time"
)

type ServerState struct {
	Reachable bool
	Timestamp time.Time
}

type serverEvent struct {
	reachable bool
	at        time.Time
}

// ServerTracker remembers the last known reachability of every server.
type ServerTracker struct {
	store *store[string, ServerState, serverEvent]
}

func NewServerTracker() *ServerTracker {
	return &ServerTracker{
		store: newStore[string, ServerState, serverEvent](func(_ string, _ ServerState, _ bool, event serverEvent) ServerState {
			return ServerState{Reachable: event.reachable, Timestamp: event.at}
		}),
	}
}

func (t *ServerTracker) Reachable(server string) {
	t.store.record(server, serverEvent{reachable: true, at: time.Now()})
}

func (t *ServerTracker) Unreachable(server string) {
	t.store.record(server, serverEvent{reachable: false, at: time.Now()})
}

func (t *ServerTracker) StateOf(server string) (ServerState, bool) {
	return t.store.stateOf(server)
}

func (t *ServerTracker) State() map[string]ServerState {
	return t.store.state()
}

func (t *ServerTracker) Subscribe(ctx context.Context) <-chan map[string]ServerState {
	return t.store.subscribe(ctx)
}

func (t *ServerTracker) Updates(ctx context.Context, server string) <-chan ServerState {
	return t.store.updates(ctx, server)
}

func (t *ServerTracker) Listen(listener func(server string, state ServerState)) {
	t.store.listen(func(server string, event serverEvent) {
		listener(server, ServerState{Reachable: event.reachable, Timestamp: event.at})
	})
}

func (t *ServerTracker) Close() { t.store.close() }
