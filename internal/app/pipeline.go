package app

import (
	"sync"
	"sync/atomic"

	"github.com/ayusman/drishti/internal/render"
)

// DefaultSubscriberBuffer is the queue size used when Subscribe is given a
// non-positive buffer.
const DefaultSubscriberBuffer = 16

// Subscription delivers frame events to one consumer. Events are dropped when
// the consumer falls behind; the frame loop never waits on it.
type Subscription struct {
	C       <-chan render.Event
	ch      chan render.Event
	dropped atomic.Uint64
	hub     *eventHub
	once    sync.Once
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

type eventHub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[*Subscription]struct{})}
}

func (h *eventHub) add(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan render.Event, buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *eventHub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

// publish is registered as a render.Observer and runs on the frame loop.
func (h *eventHub) publish(e render.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}
