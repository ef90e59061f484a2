// Package tracker keeps the live state of backup, recovery and server
// activity and publishes it to observers.
package tracker

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
)

const eventBuffer = 1024

type command[K comparable, E any] struct {
	key    K
	event  E
	remove bool
	clear  bool
}

// store is a single-writer state container. Every mutation is applied by one
// goroutine, readers see immutable snapshots and subscribers only ever get
// the latest value.
type store[K comparable, S any, E any] struct {
	apply func(key K, state S, exists bool, event E) S

	commands chan command[K, E]
	current  atomic.Pointer[map[K]S]
	done     chan struct{}
	stopped  chan struct{}
	closing  sync.Once

	mu          sync.Mutex
	subscribers map[chan map[K]S]struct{}
	watchers    map[K]map[chan S]struct{}
	listeners   []func(K, E)
}

func newStore[K comparable, S any, E any](apply func(K, S, bool, E) S) *store[K, S, E] {
	s := &store[K, S, E]{
		apply:       apply,
		commands:    make(chan command[K, E], eventBuffer),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		subscribers: make(map[chan map[K]S]struct{}),
		watchers:    make(map[K]map[chan S]struct{}),
	}

	empty := make(map[K]S)
	s.current.Store(&empty)

	go s.run()

	return s
}

func (s *store[K, S, E]) run() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case cmd := <-s.commands:
			s.handle(cmd)
		}
	}
}

func (s *store[K, S, E]) handle(cmd command[K, E]) {
	previous := *s.current.Load()
	next := maps.Clone(previous)

	switch {
	case cmd.clear:
		next = make(map[K]S)
	case cmd.remove:
		delete(next, cmd.key)
	default:
		state, exists := previous[cmd.key]
		next[cmd.key] = s.apply(cmd.key, state, exists, cmd.event)
	}

	s.current.Store(&next)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cmd.clear && !cmd.remove {
		for _, listener := range s.listeners {
			listener(cmd.key, cmd.event)
		}

		if state, ok := next[cmd.key]; ok {
			for ch := range s.watchers[cmd.key] {
				offer(ch, state)
			}
		}
	}

	for ch := range s.subscribers {
		offer(ch, next)
	}
}

func (s *store[K, S, E]) send(cmd command[K, E]) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.commands <- cmd:
	case <-s.done:
	}
}

func (s *store[K, S, E]) record(key K, event E) {
	s.send(command[K, E]{key: key, event: event})
}

func (s *store[K, S, E]) remove(key K) {
	s.send(command[K, E]{key: key, remove: true})
}

func (s *store[K, S, E]) clear() {
	s.send(command[K, E]{clear: true})
}

func (s *store[K, S, E]) stateOf(key K) (S, bool) {
	state, ok := (*s.current.Load())[key]
	return state, ok
}

func (s *store[K, S, E]) state() map[K]S {
	return maps.Clone(*s.current.Load())
}

// listen registers a hook called from the store goroutine for every recorded event.
func (s *store[K, S, E]) listen(listener func(K, E)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *store[K, S, E]) subscribe(ctx context.Context) <-chan map[K]S {
	ch := make(chan map[K]S, 1)

	s.mu.Lock()
	offer(ch, s.state())
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, ch)
		close(ch)
	}()

	return ch
}

func (s *store[K, S, E]) updates(ctx context.Context, key K) <-chan S {
	ch := make(chan S, 1)

	s.mu.Lock()
	if state, ok := s.stateOf(key); ok {
		offer(ch, state)
	}
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[chan S]struct{})
	}
	s.watchers[key][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[key], ch)
		if len(s.watchers[key]) == 0 {
			delete(s.watchers, key)
		}
		close(ch)
	}()

	return ch
}

// close stops the store goroutine; events recorded afterwards are dropped.
func (s *store[K, S, E]) close() {
	s.closing.Do(func() {
		close(s.done)
		<-s.stopped
	})
}

// offer replaces whatever value is waiting in ch with v.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
