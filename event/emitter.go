// Package event implements the connection-lifecycle event emitter.
//
// Listeners are plain receive channels rather than callbacks: subscribing
// returns a buffered channel, and Emit performs non-blocking sends on every
// subscribed channel. A listener that stops draining loses events (logged)
// instead of stalling the dispatcher.
//
//	reconnected := proto.On(event.Reconnected)
//	go func() {
//		for range reconnected {
//			proto.PlayQueue()
//		}
//	}()
package event

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event names an observable moment in the connection lifecycle.
type Event string

const (
	// Connected — the first successful connection of the client.
	Connected Event = "connected"
	// Disconnected — the connection dropped or was closed.
	Disconnected Event = "disconnected"
	// Reconnected — a reconnection attempt succeeded.
	Reconnected Event = "reconnected"
	// StateChange — any connection state transition; Payload.State holds the
	// new state name.
	StateChange Event = "stateChange"
	// NetworkError — the transport reported an error; Payload.Err holds it.
	NetworkError Event = "networkError"
	// OfflineQueuePush — a request was appended to the offline queue.
	OfflineQueuePush Event = "offlineQueuePush"
	// OfflineQueuePop — a queued request was drained by PlayQueue.
	OfflineQueuePop Event = "offlineQueuePop"
	// QueryDiscarded — a request was dropped without being sent: not
	// queuable while offline, evicted by queue overflow, expired past the
	// queue TTL, or cleared.
	QueryDiscarded Event = "queryDiscarded"
)

// Payload carries the context of an emission. Which fields are set depends
// on the event.
type Payload struct {
	// State is the new connection state, on StateChange.
	State string
	// Err is the transport or discard error, when there is one.
	Err error
	// RequestID identifies the request concerned by queue events.
	RequestID string
}

// listenerBuffer is the per-listener channel capacity. Sixteen events absorb
// a reconnection storm; beyond that the listener is clearly not draining.
const listenerBuffer = 16

type listener struct {
	ch   chan Payload
	once bool
}

// Emitter fans events out to its listeners. Safe for concurrent use. The
// zero value is not usable: create one with NewEmitter.
type Emitter struct {
	mu        sync.Mutex
	listeners map[Event][]*listener
	log       *logrus.Logger
	closed    bool
}

// NewEmitter creates an emitter logging dropped events to the given logger
// (nil for a default logger).
func NewEmitter(log *logrus.Logger) *Emitter {
	if log == nil {
		log = logrus.New()
	}
	return &Emitter{
		listeners: make(map[Event][]*listener),
		log:       log,
	}
}

// On subscribes to an event. The returned channel is closed when the emitter
// closes or when Off is called with it.
func (e *Emitter) On(ev Event) <-chan Payload {
	return e.subscribe(ev, false)
}

// Once subscribes for a single delivery: after the first event is received
// the channel is closed and the listener removed.
func (e *Emitter) Once(ev Event) <-chan Payload {
	return e.subscribe(ev, true)
}

func (e *Emitter) subscribe(ev Event, once bool) <-chan Payload {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Payload, listenerBuffer)
	if e.closed {
		close(ch)
		return ch
	}
	e.listeners[ev] = append(e.listeners[ev], &listener{ch: ch, once: once})
	return ch
}

// Off removes a listener previously returned by On or Once and closes its
// channel. Unknown channels are ignored.
func (e *Emitter) Off(ev Event, ch <-chan Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[ev]
	for i, l := range ls {
		if l.ch == ch {
			e.listeners[ev] = append(ls[:i], ls[i+1:]...)
			close(l.ch)
			return
		}
	}
}

// ListenerCount returns the number of active listeners for an event.
func (e *Emitter) ListenerCount(ev Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[ev])
}

// Emit delivers the payload to every listener of the event. Never blocks:
// a full listener channel drops the event with a log line.
func (e *Emitter) Emit(ev Event, p Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	ls := e.listeners[ev]
	kept := ls[:0]
	for _, l := range ls {
		delivered := false
		select {
		case l.ch <- p:
			delivered = true
		default:
			e.log.WithField("event", string(ev)).Warn("event dropped: listener not draining")
		}
		if l.once && delivered {
			close(l.ch)
			continue
		}
		kept = append(kept, l)
	}
	e.listeners[ev] = kept
}

// Close closes every listener channel and stops further subscriptions.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for ev, ls := range e.listeners {
		for _, l := range ls {
			close(l.ch)
		}
		delete(e.listeners, ev)
	}
}
