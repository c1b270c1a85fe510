// Package kuzzle is the typed entry point of the SDK.
//
// A Kuzzle client owns one protocol instance and exposes the API through
// controller accessors:
//
//	proto, err := websocket.New(opts)
//	if err != nil { ... }
//	k := kuzzle.New(proto, opts)
//	if err := k.Connect(ctx); err != nil { ... }
//	defer k.Disconnect()
//
//	exists, err := k.Index().Exists(ctx, "nyc-open-data")
//
// Every query flows through Query: the client injects its token and volatile
// metadata, runs the middleware chain, and surfaces backend failures as the
// returned error.
package kuzzle

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xbill82/kuzzle-sdk-go/event"
	"github.com/xbill82/kuzzle-sdk-go/middleware"
	"github.com/xbill82/kuzzle-sdk-go/protocol"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Kuzzle is the SDK client. Create one with New; safe for concurrent use.
type Kuzzle struct {
	proto protocol.Protocol
	opts  *types.Options
	log   *logrus.Logger

	mu       sync.RWMutex
	jwt      string
	volatile map[string]any

	chainMu sync.RWMutex
	mws     []middleware.Middleware
	handler middleware.HandlerFunc

	realtime *Realtime
}

// New wraps an established protocol. When the options carry a rate limit,
// the corresponding middleware is installed first.
func New(proto protocol.Protocol, opts *types.Options) *Kuzzle {
	if opts == nil {
		opts = types.DefaultOptions()
	}
	k := &Kuzzle{
		proto: proto,
		opts:  opts,
		log:   opts.Logger,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		k.mws = append(k.mws, middleware.RateLimit(opts.RateLimit, burst))
	}
	k.rebuildChain()
	k.realtime = newRealtime(k)
	return k
}

// Use appends a middleware to the query chain.
func (k *Kuzzle) Use(mw middleware.Middleware) {
	k.chainMu.Lock()
	defer k.chainMu.Unlock()
	k.mws = append(k.mws, mw)
	k.handler = middleware.Chain(k.mws...)(k.send)
}

func (k *Kuzzle) rebuildChain() {
	k.chainMu.Lock()
	defer k.chainMu.Unlock()
	k.handler = middleware.Chain(k.mws...)(k.send)
}

// send is the innermost handler of the middleware chain.
func (k *Kuzzle) send(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
	return k.proto.Send(ctx, req, opts)
}

// Query executes one request. The client's token is injected when the
// request carries none, and volatile metadata is merged (client < query
// options < request). A backend failure is returned BOTH ways: the envelope
// comes back for inspection and res.Error is the returned error.
func (k *Kuzzle) Query(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
	if req == nil {
		return nil, types.NewSdkError("kuzzle.query", "request must not be nil")
	}
	if req.Controller == "" || req.Action == "" {
		return nil, types.NewSdkError("kuzzle.query", "controller and action must not be empty.")
	}

	r := req.Clone()
	k.mu.RLock()
	if r.Jwt == "" {
		r.Jwt = k.jwt
	}
	r.Volatile = mergeVolatile(k.volatile, opts.Volatile, r.Volatile)
	k.mu.RUnlock()

	k.chainMu.RLock()
	handler := k.handler
	k.chainMu.RUnlock()

	res, err := handler(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	if res.Error != nil {
		return res, res.Error
	}
	return res, nil
}

// mergeVolatile overlays the maps left to right; later wins. Nil when all
// are empty, so requests without metadata stay lean on the wire.
func mergeVolatile(layers ...map[string]any) map[string]any {
	var merged map[string]any
	for _, layer := range layers {
		if len(layer) == 0 {
			continue
		}
		if merged == nil {
			merged = make(map[string]any)
		}
		for key, value := range layer {
			merged[key] = value
		}
	}
	return merged
}

// Connect establishes the protocol's connection.
func (k *Kuzzle) Connect(ctx context.Context) error { return k.proto.Connect(ctx) }

// Disconnect closes the protocol, failing everything pending or queued.
func (k *Kuzzle) Disconnect() error { return k.proto.Close() }

// State returns the protocol's connection state.
func (k *Kuzzle) State() protocol.State { return k.proto.State() }

// Jwt returns the authentication token the client injects in its queries.
func (k *Kuzzle) Jwt() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.jwt
}

// SetJwt installs the authentication token. Auth.Login calls it on success.
func (k *Kuzzle) SetJwt(jwt string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.jwt = jwt
}

// Volatile returns the client-wide volatile metadata.
func (k *Kuzzle) Volatile() map[string]any {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.volatile
}

// SetVolatile installs metadata merged into every query.
func (k *Kuzzle) SetVolatile(volatile map[string]any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.volatile = volatile
}

func (k *Kuzzle) On(ev event.Event) <-chan event.Payload { return k.proto.On(ev) }

func (k *Kuzzle) Once(ev event.Event) <-chan event.Payload { return k.proto.Once(ev) }

func (k *Kuzzle) Off(ev event.Event, ch <-chan event.Payload) { k.proto.Off(ev, ch) }

func (k *Kuzzle) ListenerCount(ev event.Event) int { return k.proto.ListenerCount(ev) }

func (k *Kuzzle) StartQueuing() { k.proto.StartQueuing() }

func (k *Kuzzle) StopQueuing() { k.proto.StopQueuing() }

func (k *Kuzzle) ClearQueue() { k.proto.ClearQueue() }

// PlayQueue drains the offline queue. Replay never happens on its own.
func (k *Kuzzle) PlayQueue() { k.proto.PlayQueue() }

// RequestHistory returns the protocol's transmitted requests, most recent
// first.
func (k *Kuzzle) RequestHistory() []protocol.HistoryEntry { return k.proto.RequestHistory() }

// Auth returns the authentication controller.
func (k *Kuzzle) Auth() *Auth { return &Auth{k} }

// Bulk returns the bulk controller.
func (k *Kuzzle) Bulk() *Bulk { return &Bulk{k} }

// Collection returns the collection controller.
func (k *Kuzzle) Collection() *Collection { return &Collection{k} }

// Document returns the document controller.
func (k *Kuzzle) Document() *Document { return &Document{k} }

// Index returns the index controller.
func (k *Kuzzle) Index() *Index { return &Index{k} }

// MS returns the memory storage controller.
func (k *Kuzzle) MS() *MemoryStorage { return &MemoryStorage{k} }

// Realtime returns the realtime controller. It is a singleton: it tracks
// live subscriptions to restore them after a reconnection.
func (k *Kuzzle) Realtime() *Realtime { return k.realtime }

// Security returns the security controller.
func (k *Kuzzle) Security() *Security { return &Security{k} }

// Server returns the server controller.
func (k *Kuzzle) Server() *Server { return &Server{k} }
