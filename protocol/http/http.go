// Package http implements the Protocol interface over plain HTTP.
//
// Kuzzle exposes every API action as an HTTP route; this transport maps the
// request envelope onto verb+URL pairs (see routes.go) instead of shipping
// the envelope itself. It is stateless: one Send is one round trip, there is
// no correlation table and nothing to queue while offline. Realtime
// subscriptions need a persistent connection and are rejected here.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xbill82/kuzzle-sdk-go/codec"
	"github.com/xbill82/kuzzle-sdk-go/endpoints"
	"github.com/xbill82/kuzzle-sdk-go/event"
	"github.com/xbill82/kuzzle-sdk-go/metrics"
	"github.com/xbill82/kuzzle-sdk-go/protocol"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

// HTTP sends each request as one HTTP round trip against a node picked from
// the configured rotation. Safe for concurrent use.
type HTTP struct {
	opts   *types.Options
	log    *logrus.Logger
	cdc    codec.Codec
	routes Routes
	client *nethttp.Client
	picker endpoints.Picker
	nodes  []endpoints.Endpoint

	events  *event.Emitter
	met     *metrics.Metrics
	history *protocol.History

	mu    sync.Mutex
	state protocol.State
}

var _ protocol.Protocol = (*HTTP)(nil)

// New creates an HTTP protocol with the built-in route table.
func New(opts *types.Options) *HTTP {
	return NewWithRoutes(opts, DefaultRoutes())
}

// NewWithRoutes creates an HTTP protocol with a custom route table, usually
// obtained from LoadRoutes.
func NewWithRoutes(opts *types.Options, routes Routes) *HTTP {
	if opts == nil {
		opts = types.DefaultOptions()
	}
	picker := opts.Picker
	if picker == nil {
		picker = &endpoints.RoundRobin{}
	}
	return &HTTP{
		opts:    opts,
		log:     opts.Logger,
		cdc:     codec.JSON{},
		routes:  routes,
		client:  &nethttp.Client{},
		picker:  picker,
		nodes:   opts.AllNodes(),
		events:  event.NewEmitter(opts.Logger),
		met:     metrics.New(opts.MetricsRegisterer),
		history: protocol.NewHistory(protocol.DefaultHistorySize),
		state:   protocol.Disconnected,
	}
}

func (h *HTTP) scheme() string {
	if h.opts.SslConnection {
		return "https"
	}
	return "http"
}

// Connect verifies the backend answers by pinging server.now. A stateless
// transport has no connection to keep, so this is the only moment the state
// changes to Connected.
func (h *HTTP) Connect(ctx context.Context) error {
	res, err := h.Send(ctx, types.NewRequest("server", "now"), types.NewQueryOptions())
	if err != nil {
		return fmt.Errorf("http connect: %w", err)
	}
	if res.Error != nil {
		return fmt.Errorf("http connect: %w", res.Error)
	}

	h.mu.Lock()
	h.state = protocol.Connected
	h.mu.Unlock()
	h.events.Emit(event.Connected, event.Payload{State: protocol.Connected.String()})
	return nil
}

// Send resolves the route for the request, performs the round trip and
// decodes the response envelope. A response carrying a backend error is
// returned as-is with a nil error.
func (h *HTTP) Send(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
	if req == nil {
		return nil, types.NewSdkError("protocol.send", "request must not be nil")
	}
	r := req.Clone()
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}

	route, ok := h.routes.Get(r.Controller, r.Action)
	if !ok {
		return nil, fmt.Errorf("%s.%s: no http route: %w", r.Controller, r.Action, types.ErrProtocol)
	}
	path, err := route.expand(r)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %v: %w", r.Controller, r.Action, err, types.ErrProtocol)
	}

	node, err := h.picker.Pick(h.nodes)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %v: %w", r.Controller, r.Action, err, types.ErrNotConnected)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	res, err := h.roundTrip(ctx, node, route.Verb, path, r)
	if err != nil {
		h.met.Resolve(outcomeLabel(err))
		return nil, fmt.Errorf("%s.%s: %w", r.Controller, r.Action, err)
	}
	if res.RequestID == "" {
		res.RequestID = r.RequestID
	}
	if res.Error != nil {
		h.met.Resolve(metrics.OutcomeRemoteError)
	} else {
		h.met.Resolve(metrics.OutcomeSuccess)
	}
	return res, nil
}

func (h *HTTP) roundTrip(ctx context.Context, node *endpoints.Endpoint, verb, path string, r *types.KuzzleRequest) (*types.KuzzleResponse, error) {
	target := url.URL{Scheme: h.scheme(), Host: node.Addr(), Path: path}
	if len(r.QueryStrings) > 0 {
		q := target.Query()
		for k, v := range r.QueryStrings {
			q.Set(k, fmt.Sprint(v))
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if len(r.Body) > 0 {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %v: %w", err, types.ErrProtocol)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, verb, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, types.ErrProtocol)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.Jwt != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.Jwt)
	}
	if len(r.Volatile) > 0 {
		volatile, err := json.Marshal(r.Volatile)
		if err != nil {
			return nil, fmt.Errorf("encode volatile: %v: %w", err, types.ErrProtocol)
		}
		httpReq.Header.Set("X-Kuzzle-Volatile", string(volatile))
	}

	h.history.Add(r)
	h.met.Sent.Inc()
	h.log.WithFields(logrus.Fields{
		"requestId": r.RequestID,
		"verb":      verb,
		"url":       target.String(),
	}).Debug("http request")

	httpRes, err := h.client.Do(httpReq)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("no response within deadline: %w", types.ErrTimeout)
		case errors.Is(err, context.Canceled):
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("%v: %w", err, types.ErrNotConnected)
		}
	}
	defer httpRes.Body.Close()

	data, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, types.ErrConnectionLost)
	}
	res, err := h.cdc.DecodeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("status %d: %v: %w", httpRes.StatusCode, err, types.ErrProtocol)
	}
	return res, nil
}

// Close drops idle connections and marks the protocol disconnected.
func (h *HTTP) Close() error {
	h.mu.Lock()
	h.state = protocol.Disconnected
	h.mu.Unlock()

	h.client.CloseIdleConnections()
	h.events.Emit(event.Disconnected, event.Payload{State: protocol.Disconnected.String()})
	h.events.Close()
	return nil
}

func (h *HTTP) State() protocol.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *HTTP) On(ev event.Event) <-chan event.Payload { return h.events.On(ev) }

func (h *HTTP) Once(ev event.Event) <-chan event.Payload { return h.events.Once(ev) }

func (h *HTTP) Off(ev event.Event, ch <-chan event.Payload) { h.events.Off(ev, ch) }

func (h *HTTP) ListenerCount(ev event.Event) int { return h.events.ListenerCount(ev) }

// StartQueuing is a no-op: a stateless transport is never offline-queued.
func (h *HTTP) StartQueuing() {}

// StopQueuing is a no-op.
func (h *HTTP) StopQueuing() {}

// ClearQueue is a no-op.
func (h *HTTP) ClearQueue() {}

// PlayQueue is a no-op.
func (h *HTTP) PlayQueue() {}

// RequestHistory returns the transmitted requests, most recent first.
func (h *HTTP) RequestHistory() []protocol.HistoryEntry { return h.history.Entries() }

// RegisterSub always fails: notifications need a persistent connection.
func (h *HTTP) RegisterSub(channel string, ch chan<- *types.Notification) error {
	return fmt.Errorf("realtime subscriptions are not available over http: %w", types.ErrProtocol)
}

// UnregisterSub is a no-op.
func (h *HTTP) UnregisterSub(channel string) {}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, types.ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return metrics.OutcomeCanceled
	case errors.Is(err, types.ErrNotConnected), errors.Is(err, types.ErrConnectionLost):
		return metrics.OutcomeConnectionLost
	default:
		return metrics.OutcomeDiscarded
	}
}
