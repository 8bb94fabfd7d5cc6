package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/pkg/events"
)

// defaultBuffer sizes a subscription's delivery channel when the caller
// passes a non-positive buffer.
const defaultBuffer = 64

// Subscription is one subscriber's handle on the bus. Events are delivered
// in publish order on the Events channel; delivery is at-least-once. A slow
// consumer backs up into an internal queue, never back into the publisher.
type Subscription struct {
	// ID identifies the subscription for Unsubscribe.
	ID uuid.UUID

	ch    chan events.Event
	kinds map[events.Kind]struct{} // nil = all kinds
	quit  chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []events.Event
	closed bool
}

// Events returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan events.Event {
	return s.ch
}

// matches reports whether the subscription wants events of the given kind.
func (s *Subscription) matches(kind events.Kind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// enqueue appends one event to the subscription's queue.
func (s *Subscription) enqueue(ev events.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.cond.Signal()
}

// stop marks the subscription closed and wakes the pump.
func (s *Subscription) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	close(s.quit)
	s.cond.Signal()
}

// pump moves events from the queue to the delivery channel, preserving order.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.ch)
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- ev:
			BusDeliveredInc(string(ev.EventKind()))
		case <-s.quit:
			close(s.ch)
			return
		}
	}
}

// Bus fans marketplace events out to in-process subscribers.
// Publish never blocks and never drops for live subscriptions; each
// subscriber receives events in publish order (FIFO, at-least-once).
type Bus struct {
	log *logger.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// New creates an event bus.
func New(log *logger.Logger) *Bus {
	return &Bus{
		log:  log.WithComponent(common.ComponentBus),
		subs: make(map[uuid.UUID]*Subscription),
	}
}

// Subscribe registers a new subscription. With no kinds every event is
// delivered; otherwise only events whose kind is listed. buffer sizes the
// delivery channel (a non-positive value selects the default).
func (b *Bus) Subscribe(buffer int, kinds ...events.Kind) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	sub := &Subscription{
		ID:   uuid.New(),
		ch:   make(chan events.Event, buffer),
		quit: make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	if len(kinds) > 0 {
		sub.kinds = make(map[events.Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	count := len(b.subs)
	b.mu.Unlock()

	go sub.pump()

	BusSubscribersLog(count)
	b.log.Debugf("subscribed: id=%s, kinds=%v", sub.ID, kinds)

	return sub
}

// Unsubscribe closes the subscription and its delivery channel.
// Undelivered events queued for that subscriber are discarded.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	count := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}

	sub.stop()
	BusSubscribersLog(count)
	b.log.Debugf("unsubscribed: id=%s", id)
}

// Publish delivers the event to every matching subscription in publish order.
func (b *Bus) Publish(ev events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.matches(ev.EventKind()) {
			sub.enqueue(ev)
		}
	}

	BusPublishedInc(string(ev.EventKind()))
}

// Close shuts down every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uuid.UUID]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	BusSubscribersLog(0)
}
