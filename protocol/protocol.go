// Package protocol implements the request/response dispatch layer of the SDK.
//
// The Dispatcher multiplexes concurrent API calls over a single connection.
// The key insight: each request gets a unique correlation id, and a background
// goroutine (recvLoop) continuously reads frames and routes responses to the
// correct caller via per-request channels.
//
//	goroutine-1 ──Send(id=a1)──┐
//	goroutine-2 ──Send(id=b2)──┼──→ single connection ──→ Kuzzle
//	goroutine-3 ──Send(id=c3)──┘
//
//	recvLoop:  ←── response(id=b2) → pending[b2] chan ← response → goroutine-2 wakes up
//
// Transports only move bytes: the websocket sub-package provides the
// persistent Conn the Dispatcher drives, the http sub-package implements
// Protocol on its own (stateless request/response needs no correlation).
package protocol

import (
	"context"
	"time"

	"github.com/xbill82/kuzzle-sdk-go/event"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

// State is the connection state of a protocol instance.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// Conn is one established transport connection. The Dispatcher is the only
// consumer of these channels.
//
// Contract: Receive's channel closes when the connection dies, whatever the
// cause; the cause, if any, is readable from Errors afterwards (buffered,
// never blocking the transport). Send must be safe for concurrent use and
// must write each payload as one atomic frame.
type Conn interface {
	Send(payload []byte) error
	Receive() <-chan []byte
	Errors() <-chan error
	Close() error
}

// DialFunc establishes one connection. The Dispatcher calls it on Connect and
// on every reconnection attempt; node selection happens inside (see the
// websocket sub-package and the endpoints package).
type DialFunc func(ctx context.Context) (Conn, error)

// Protocol is the boundary between the Kuzzle client and a transport. Both
// implementations (websocket.WebSocket, http.HTTP) satisfy it.
type Protocol interface {
	// Connect establishes the connection. It fails fast: retrying the first
	// connection is the caller's decision, only established connections are
	// redialed automatically (when AutoReconnect is set).
	Connect(ctx context.Context) error
	// Send transmits the request and blocks until its response arrives, the
	// per-request timeout elapses, ctx is cancelled, or the connection drops.
	// A response carrying a backend error is returned as-is with a nil error:
	// mapping it to a Go error is the client's concern.
	Send(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error)
	// Close tears the connection down and fails everything pending or queued.
	Close() error
	State() State

	// Connection lifecycle events (see the event package).
	On(ev event.Event) <-chan event.Payload
	Once(ev event.Event) <-chan event.Payload
	Off(ev event.Event, ch <-chan event.Payload)
	ListenerCount(ev event.Event) int

	// Offline queue control. Replay is never automatic: PlayQueue is the only
	// way queued requests get transmitted.
	StartQueuing()
	StopQueuing()
	ClearQueue()
	PlayQueue()

	// RequestHistory returns the transmitted requests, most recent first.
	RequestHistory() []HistoryEntry

	// RegisterSub routes realtime notifications for a channel id into ch.
	// Transports without realtime support return an error wrapping
	// types.ErrProtocol.
	RegisterSub(channel string, ch chan<- *types.Notification) error
	UnregisterSub(channel string)
}

// HistoryEntry records one transmitted request.
type HistoryEntry struct {
	RequestID  string
	Controller string
	Action     string
	SentAt     time.Time
}
