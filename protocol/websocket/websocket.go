// Package websocket implements the persistent transport of the SDK.
//
// All dispatch logic (correlation ids, pending table, offline queue,
// reconnection policy) lives in the embedded protocol.Dispatcher; this
// package contributes the gorilla/websocket connection it drives, node
// selection across the configured cluster, and optional etcd-based node
// discovery.
package websocket

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xbill82/kuzzle-sdk-go/endpoints"
	"github.com/xbill82/kuzzle-sdk-go/protocol"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

// handshakeTimeout bounds the websocket upgrade of one dial attempt.
const handshakeTimeout = 10 * time.Second

// WebSocket is the full-duplex protocol. Create one with New, then Connect.
type WebSocket struct {
	*protocol.Dispatcher

	opts   *types.Options
	log    *logrus.Logger
	picker endpoints.Picker

	mu    sync.Mutex
	nodes []endpoints.Endpoint

	discovery *endpoints.EtcdSource
	stop      context.CancelFunc
}

var _ protocol.Protocol = (*WebSocket)(nil)

// New builds the protocol for the nodes in opts. When DiscoveryEndpoints is
// set, an etcd watcher keeps folding published nodes into the dial rotation.
// Nothing is dialed until Connect.
func New(opts *types.Options) (*WebSocket, error) {
	if opts == nil {
		opts = types.DefaultOptions()
	}
	picker := opts.Picker
	if picker == nil {
		picker = &endpoints.RoundRobin{}
	}

	w := &WebSocket{
		opts:   opts,
		log:    opts.Logger,
		picker: picker,
		nodes:  opts.AllNodes(),
	}
	w.Dispatcher = protocol.NewDispatcher(w.dial, opts)

	if len(opts.DiscoveryEndpoints) > 0 {
		src, err := endpoints.NewEtcdSource(opts.DiscoveryEndpoints, opts.DiscoveryPrefix)
		if err != nil {
			return nil, fmt.Errorf("node discovery: %w", err)
		}
		w.discovery = src
		ctx, cancel := context.WithCancel(context.Background())
		w.stop = cancel
		go w.watchNodes(ctx)
	}
	return w, nil
}

// dial picks a node from the rotation and opens one connection to it. The
// dispatcher calls it on Connect and on every reconnection attempt, so a
// dead node is skipped on the next try by the picker's rotation.
func (w *WebSocket) dial(ctx context.Context) (protocol.Conn, error) {
	w.mu.Lock()
	nodes := append([]endpoints.Endpoint(nil), w.nodes...)
	w.mu.Unlock()

	node, err := w.picker.Pick(nodes)
	if err != nil {
		return nil, err
	}

	scheme := "ws"
	if w.opts.SslConnection {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: node.Addr()}

	dialer := gws.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	w.log.WithFields(logrus.Fields{
		"node":   node.Addr(),
		"picker": w.picker.Name(),
	}).Debug("websocket connected")
	return newConn(ws), nil
}

// watchNodes folds discovery updates into the dial rotation. Static nodes
// from the options always stay in the set.
func (w *WebSocket) watchNodes(ctx context.Context) {
	if nodes, err := w.discovery.Endpoints(ctx); err == nil {
		w.setNodes(mergeNodes(w.opts.AllNodes(), nodes))
	} else {
		w.log.WithError(err).Warn("initial node discovery failed")
	}

	for update := range w.discovery.Watch(ctx) {
		w.setNodes(mergeNodes(w.opts.AllNodes(), update))
	}
}

func (w *WebSocket) setNodes(nodes []endpoints.Endpoint) {
	w.mu.Lock()
	w.nodes = nodes
	w.mu.Unlock()
	w.log.WithField("nodes", len(nodes)).Debug("node rotation updated")
}

func mergeNodes(static, discovered []endpoints.Endpoint) []endpoints.Endpoint {
	seen := make(map[string]struct{}, len(static)+len(discovered))
	merged := make([]endpoints.Endpoint, 0, len(static)+len(discovered))
	for _, n := range append(static, discovered...) {
		if _, ok := seen[n.Addr()]; ok {
			continue
		}
		seen[n.Addr()] = struct{}{}
		merged = append(merged, n)
	}
	return merged
}

// Close stops node discovery, then tears the dispatcher down.
func (w *WebSocket) Close() error {
	if w.stop != nil {
		w.stop()
	}
	if w.discovery != nil {
		w.discovery.Close()
	}
	return w.Dispatcher.Close()
}
