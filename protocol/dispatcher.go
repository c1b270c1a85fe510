package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xbill82/kuzzle-sdk-go/codec"
	"github.com/xbill82/kuzzle-sdk-go/event"
	"github.com/xbill82/kuzzle-sdk-go/metrics"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

// outcome is the terminal resolution of one request. Exactly one outcome is
// delivered per sent or queued request, on a channel of capacity 1. label,
// when set, overrides the metrics classification derived from err.
type outcome struct {
	res   *types.KuzzleResponse
	err   error
	label string
}

// queueEntry is a request parked in the offline queue. Its caller stays
// blocked on ch until PlayQueue transmits it or the queue fails it.
type queueEntry struct {
	req      *types.KuzzleRequest
	ch       chan outcome
	queuedAt time.Time
}

// Dispatcher drives a persistent connection: it assigns correlation ids,
// tracks in-flight requests, demultiplexes responses, routes realtime
// notifications, and owns the offline queue and the reconnection loop.
//
// A single mutex guards the pending table, the offline queue and the
// connection state: a request moves atomically from queued to pending, so a
// timeout or cancellation always finds it in exactly one place.
type Dispatcher struct {
	dial   DialFunc
	cdc    codec.Codec
	opts   *types.Options
	log    *logrus.Logger
	events *event.Emitter
	met    *metrics.Metrics

	mu      sync.Mutex
	conn    Conn
	state   State
	closed  bool
	queuing bool
	pending map[string]chan outcome
	queue   []*queueEntry
	subs    map[string]chan<- *types.Notification

	history *History
	done    chan struct{}
}

// NewDispatcher creates a dispatcher that obtains connections from dial.
// Nothing is dialed until Connect.
func NewDispatcher(dial DialFunc, opts *types.Options) *Dispatcher {
	if opts == nil {
		opts = types.DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &Dispatcher{
		dial:    dial,
		cdc:     codec.JSON{},
		opts:    opts,
		log:     log,
		events:  event.NewEmitter(log),
		met:     metrics.New(opts.MetricsRegisterer),
		pending: make(map[string]chan outcome),
		subs:    make(map[string]chan<- *types.Notification),
		history: NewHistory(DefaultHistorySize),
		done:    make(chan struct{}),
	}
}

// Connect dials a connection and starts the receive loop. Unlike automatic
// reconnections, a failed Connect is returned to the caller immediately. When
// a connection or reconnection attempt is already in progress the call is a
// no-op.
func (d *Dispatcher) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("connect: client closed: %w", types.ErrNotConnected)
	}
	if d.state != Disconnected {
		d.mu.Unlock()
		return nil
	}
	d.setStateLocked(Connecting)
	d.mu.Unlock()

	conn, err := d.dial(ctx)
	if err != nil {
		d.mu.Lock()
		d.setStateLocked(Disconnected)
		d.mu.Unlock()
		return fmt.Errorf("connect: %v: %w", err, types.ErrNotConnected)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		conn.Close()
		return fmt.Errorf("connect: client closed: %w", types.ErrNotConnected)
	}
	d.conn = conn
	d.setStateLocked(Connected)
	d.mu.Unlock()

	d.events.Emit(event.Connected, event.Payload{})
	go d.recvLoop(conn)
	return nil
}

// Send assigns a correlation id, transmits the request (or parks it in the
// offline queue) and blocks until its outcome. See Protocol.Send for the
// contract.
func (d *Dispatcher) Send(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
	if req == nil {
		return nil, types.NewSdkError("protocol.send", "request must not be nil")
	}
	r := req.Clone()
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	ch := make(chan outcome, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("%s.%s: client closed: %w", r.Controller, r.Action, types.ErrNotConnected)
	}
	switch {
	case d.state == Connected:
		d.pending[r.RequestID] = ch
		conn := d.conn
		d.mu.Unlock()
		if err := d.transmit(conn, r); err != nil {
			d.dropPending(r.RequestID)
			d.met.Resolve(outcomeOf(err))
			return nil, fmt.Errorf("%s.%s: %w", r.Controller, r.Action, err)
		}

	case opts.Queuable && d.queuingActiveLocked():
		evicted := d.enqueueLocked(&queueEntry{req: r, ch: ch, queuedAt: time.Now()})
		d.mu.Unlock()
		d.events.Emit(event.OfflineQueuePush, event.Payload{RequestID: r.RequestID})
		d.log.WithFields(logrus.Fields{
			"requestId": r.RequestID,
			"action":    r.Controller + "." + r.Action,
		}).Debug("request queued while offline")
		d.failEntries(evicted, fmt.Errorf("offline queue overflow: %w", types.ErrNotConnected), metrics.OutcomeDiscarded)

	default:
		d.mu.Unlock()
		err := fmt.Errorf("%s.%s: not connected and not queuable: %w", r.Controller, r.Action, types.ErrNotConnected)
		d.met.Resolve(metrics.OutcomeDiscarded)
		d.events.Emit(event.QueryDiscarded, event.Payload{RequestID: r.RequestID, Err: err})
		return nil, err
	}

	return d.await(ctx, r, opts, ch)
}

// transmit encodes and writes one request on conn, recording it in the
// history. The pending entry must already be registered: responses can arrive
// before transmit returns.
func (d *Dispatcher) transmit(conn Conn, r *types.KuzzleRequest) error {
	payload, err := d.cdc.EncodeRequest(r)
	if err != nil {
		return fmt.Errorf("%v: %w", err, types.ErrProtocol)
	}
	if err := conn.Send(payload); err != nil {
		return fmt.Errorf("%v: %w", err, types.ErrConnectionLost)
	}
	d.history.Add(r)
	d.met.Sent.Inc()
	return nil
}

// await blocks the calling goroutine on its own outcome channel.
func (d *Dispatcher) await(ctx context.Context, r *types.KuzzleRequest, opts types.QueryOptions, ch chan outcome) (*types.KuzzleResponse, error) {
	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-ch:
		return d.finish(out)

	case <-timeout:
		if d.abandon(r.RequestID) {
			d.met.Resolve(metrics.OutcomeTimeout)
			return nil, fmt.Errorf("%s.%s: no response within %s: %w", r.Controller, r.Action, opts.Timeout, types.ErrTimeout)
		}
		// Lost the race: a resolution is already on the channel.
		return d.finish(<-ch)

	case <-ctx.Done():
		if d.abandon(r.RequestID) {
			d.met.Resolve(metrics.OutcomeCanceled)
			return nil, fmt.Errorf("%s.%s: %w", r.Controller, r.Action, ctx.Err())
		}
		return d.finish(<-ch)
	}
}

// finish records the outcome's metric and unwraps it. It is the single
// resolution-counting site for awaited requests.
func (d *Dispatcher) finish(out outcome) (*types.KuzzleResponse, error) {
	if out.err != nil {
		label := out.label
		if label == "" {
			label = outcomeOf(out.err)
		}
		d.met.Resolve(label)
		return nil, out.err
	}
	if out.res.Error != nil {
		d.met.Resolve(metrics.OutcomeRemoteError)
	} else {
		d.met.Resolve(metrics.OutcomeSuccess)
	}
	return out.res, nil
}

// abandon removes the request from the pending table or the offline queue.
// It reports false when the request is in neither: its resolution is already
// in flight and the waiter must consume it instead.
func (d *Dispatcher) abandon(requestID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[requestID]; ok {
		delete(d.pending, requestID)
		return true
	}
	for i, e := range d.queue {
		if e.req.RequestID == requestID {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			d.met.QueueDepth.Set(float64(len(d.queue)))
			return true
		}
	}
	return false
}

func (d *Dispatcher) dropPending(requestID string) {
	d.mu.Lock()
	delete(d.pending, requestID)
	d.mu.Unlock()
}

// recvLoop runs in a dedicated goroutine per connection, continuously reading
// frames and routing them. A single reader keeps frame handling ordered; the
// per-request channels fan the responses back out to their callers.
func (d *Dispatcher) recvLoop(conn Conn) {
	for raw := range conn.Receive() {
		d.onMessage(raw)
	}

	// Receive closed: the connection is gone. The cause, if the transport
	// recorded one, sits in the error channel.
	var cause error
	select {
	case cause = <-conn.Errors():
	default:
	}
	d.connLost(conn, cause)
}

// onMessage routes one incoming frame: pending request first, then realtime
// subscription, else logged and dropped.
func (d *Dispatcher) onMessage(raw []byte) {
	res, err := d.cdc.DecodeResponse(raw)
	if err != nil {
		d.log.WithError(err).Warn("dropping malformed frame")
		return
	}

	if res.RequestID != "" {
		d.mu.Lock()
		ch, ok := d.pending[res.RequestID]
		if ok {
			delete(d.pending, res.RequestID)
		}
		d.mu.Unlock()
		if ok {
			ch <- outcome{res: res}
			return
		}
	}

	if res.Channel != "" {
		// The non-blocking send happens under mu so that UnregisterSub,
		// once returned, guarantees no further delivery: the owner may
		// close the channel.
		d.mu.Lock()
		sub, ok := d.subs[res.Channel]
		if ok {
			n := types.Notification(*res)
			select {
			case sub <- &n:
			default:
				d.log.WithField("channel", res.Channel).Warn("notification dropped: subscriber not draining")
			}
		}
		d.mu.Unlock()
		if ok {
			return
		}
	}

	d.log.WithFields(logrus.Fields{
		"requestId": res.RequestID,
		"channel":   res.Channel,
	}).Warn("dropping unmatched frame")
}

// connLost handles the death of conn: every in-flight request fails exactly
// once with a connection-lost error, queued requests stay queued, and the
// reconnection loop starts when the policy allows. Stale calls (an older
// connection, or a connection already torn down by Close) are ignored.
func (d *Dispatcher) connLost(conn Conn, cause error) {
	d.mu.Lock()
	if d.closed || d.conn != conn {
		d.mu.Unlock()
		return
	}
	d.conn = nil
	failed := d.pending
	d.pending = make(map[string]chan outcome)
	reconnecting := d.opts.AutoReconnect
	if reconnecting {
		d.setStateLocked(Reconnecting)
	} else {
		d.setStateLocked(Disconnected)
	}
	d.mu.Unlock()

	connErr := fmt.Errorf("connection lost: %w", types.ErrConnectionLost)
	if cause != nil {
		connErr = fmt.Errorf("connection lost: %v: %w", cause, types.ErrConnectionLost)
		d.events.Emit(event.NetworkError, event.Payload{Err: cause})
	}
	for id, ch := range failed {
		d.log.WithField("requestId", id).Debug("failing in-flight request: connection lost")
		ch <- outcome{err: connErr}
	}
	d.events.Emit(event.Disconnected, event.Payload{Err: cause})

	if reconnecting {
		go d.reconnectLoop()
	}
}

// reconnectLoop redials every ReconnectionDelay until a connection is
// established or the dispatcher is closed. It never replays queued requests:
// that stays an explicit PlayQueue call.
func (d *Dispatcher) reconnectLoop() {
	for attempt := 1; ; attempt++ {
		select {
		case <-d.done:
			return
		case <-time.After(d.opts.ReconnectionDelay):
		}

		conn, err := d.dial(context.Background())
		if err != nil {
			d.log.WithError(err).WithField("attempt", attempt).Warn("reconnection attempt failed")
			d.events.Emit(event.NetworkError, event.Payload{Err: err})
			continue
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			conn.Close()
			return
		}
		d.conn = conn
		d.setStateLocked(Connected)
		d.mu.Unlock()

		d.met.Reconnects.Inc()
		d.events.Emit(event.Reconnected, event.Payload{})
		d.log.WithField("attempt", attempt).Info("reconnected")
		go d.recvLoop(conn)
		return
	}
}

// Close tears everything down: the connection, the in-flight requests, the
// offline queue and the event listeners. Idempotent.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	conn := d.conn
	d.conn = nil
	failed := d.pending
	d.pending = make(map[string]chan outcome)
	queued := d.queue
	d.queue = nil
	d.met.QueueDepth.Set(0)
	d.setStateLocked(Disconnected)
	close(d.done)
	d.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	err := fmt.Errorf("client closed: %w", types.ErrConnectionLost)
	for _, ch := range failed {
		ch <- outcome{err: err}
	}
	d.failEntries(queued, err, "")
	d.events.Emit(event.Disconnected, event.Payload{})
	d.events.Close()
	return nil
}

// State returns the current connection state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// setStateLocked transitions the state and emits StateChange. Callers hold mu.
func (d *Dispatcher) setStateLocked(s State) {
	if d.state == s {
		return
	}
	d.state = s
	d.events.Emit(event.StateChange, event.Payload{State: s.String()})
	d.log.WithField("state", s.String()).Debug("connection state changed")
}

func (d *Dispatcher) On(ev event.Event) <-chan event.Payload { return d.events.On(ev) }

func (d *Dispatcher) Once(ev event.Event) <-chan event.Payload { return d.events.Once(ev) }

func (d *Dispatcher) Off(ev event.Event, ch <-chan event.Payload) { d.events.Off(ev, ch) }

func (d *Dispatcher) ListenerCount(ev event.Event) int { return d.events.ListenerCount(ev) }

// RequestHistory returns the transmitted requests, most recent first.
func (d *Dispatcher) RequestHistory() []HistoryEntry { return d.history.Entries() }

// RegisterSub routes notifications for the given channel id into ch. The
// dispatcher never closes ch; delivery is non-blocking (a full channel drops
// the notification with a log line). After UnregisterSub returns, no further
// delivery happens: the owner may close ch.
func (d *Dispatcher) RegisterSub(channel string, ch chan<- *types.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[channel] = ch
	return nil
}

// UnregisterSub stops routing the channel id. Later frames for it are dropped.
func (d *Dispatcher) UnregisterSub(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, channel)
}

func outcomeOf(err error) string {
	switch {
	case isAny(err, types.ErrTimeout):
		return metrics.OutcomeTimeout
	case isAny(err, types.ErrConnectionLost, types.ErrNotConnected):
		return metrics.OutcomeConnectionLost
	default:
		return metrics.OutcomeDiscarded
	}
}
