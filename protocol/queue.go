package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/xbill82/kuzzle-sdk-go/event"
	"github.com/xbill82/kuzzle-sdk-go/metrics"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

// The offline queue parks queuable requests issued while the connection is
// down. Callers stay blocked on their outcome channel the whole time: a
// queued request resolves through exactly one of PlayQueue (transmitted and
// answered), ClearQueue, TTL expiry, overflow eviction, or Close.

// StartQueuing activates the offline queue until StopQueuing. Queuing is also
// active, without any call, when Options.AutoQueue is set.
func (d *Dispatcher) StartQueuing() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queuing = true
}

// StopQueuing deactivates manual queuing. Already queued requests stay queued.
func (d *Dispatcher) StopQueuing() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queuing = false
}

func (d *Dispatcher) queuingActiveLocked() bool {
	return d.queuing || d.opts.AutoQueue
}

// enqueueLocked appends the entry, evicting the oldest entries beyond
// QueueMaxSize. Callers hold mu and must fail the returned evictions after
// unlocking.
func (d *Dispatcher) enqueueLocked(e *queueEntry) []*queueEntry {
	var evicted []*queueEntry
	for d.opts.QueueMaxSize > 0 && len(d.queue) >= d.opts.QueueMaxSize {
		evicted = append(evicted, d.queue[0])
		d.queue = d.queue[1:]
	}
	d.queue = append(d.queue, e)
	d.met.QueueDepth.Set(float64(len(d.queue)))
	return evicted
}

// failEntries resolves queue entries with err, one QueryDiscarded event each.
// The awaiting callers observe the resolutions; label overrides their metrics
// classification (empty means derive from err).
func (d *Dispatcher) failEntries(entries []*queueEntry, err error, label string) {
	for _, e := range entries {
		e.ch <- outcome{
			err:   fmt.Errorf("%s.%s: %w", e.req.Controller, e.req.Action, err),
			label: label,
		}
		d.events.Emit(event.QueryDiscarded, event.Payload{RequestID: e.req.RequestID, Err: err})
	}
}

// ClearQueue fails every queued request with a connection error.
func (d *Dispatcher) ClearQueue() {
	d.mu.Lock()
	cleared := d.queue
	d.queue = nil
	d.met.QueueDepth.Set(0)
	d.mu.Unlock()

	d.failEntries(cleared, fmt.Errorf("offline queue cleared: %w", types.ErrNotConnected), metrics.OutcomeDiscarded)
}

// PlayQueue drains the offline queue in FIFO order, pacing transmissions by
// ReplayInterval and failing entries older than QueueTTL. It is the explicit
// resubmission step: nothing calls it automatically, not even a successful
// reconnection. It returns silently when not connected; remaining entries
// stay queued.
func (d *Dispatcher) PlayQueue() {
	for {
		d.mu.Lock()
		if d.state != Connected || len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		e := d.queue[0]
		d.queue = d.queue[1:]
		d.met.QueueDepth.Set(float64(len(d.queue)))

		if d.opts.QueueTTL > 0 && time.Since(e.queuedAt) > d.opts.QueueTTL {
			d.mu.Unlock()
			d.failEntries([]*queueEntry{e}, fmt.Errorf("offline queue TTL exceeded: %w", types.ErrTimeout), "")
			continue
		}

		d.pending[e.req.RequestID] = e.ch
		conn := d.conn
		d.mu.Unlock()

		d.events.Emit(event.OfflineQueuePop, event.Payload{RequestID: e.req.RequestID})
		if err := d.transmit(conn, e.req); err != nil {
			// The connection just broke again; leave the rest queued and let
			// this entry surface the error.
			d.mu.Lock()
			_, still := d.pending[e.req.RequestID]
			delete(d.pending, e.req.RequestID)
			d.mu.Unlock()
			if still {
				e.ch <- outcome{err: fmt.Errorf("%s.%s: %w", e.req.Controller, e.req.Action, err)}
			}
			return
		}

		if d.opts.ReplayInterval > 0 {
			time.Sleep(d.opts.ReplayInterval)
		}
	}
}

// QueueSize returns the number of requests currently parked in the queue.
func (d *Dispatcher) QueueSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
