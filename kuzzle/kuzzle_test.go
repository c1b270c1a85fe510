package kuzzle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/xbill82/kuzzle-sdk-go/event"
	"github.com/xbill82/kuzzle-sdk-go/middleware"
	"github.com/xbill82/kuzzle-sdk-go/protocol"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

// stubProtocol scripts responses per controller.action and records every
// request the client hands to the transport.
type stubProtocol struct {
	mu       sync.Mutex
	requests []*types.KuzzleRequest
	script   map[string][]*types.KuzzleResponse
	sendErr  error
	subs     map[string]chan<- *types.Notification
	queuing  bool
	played   int
	cleared  int

	events *event.Emitter
}

var _ protocol.Protocol = (*stubProtocol)(nil)

func newStubProtocol() *stubProtocol {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &stubProtocol{
		script: make(map[string][]*types.KuzzleResponse),
		subs:   make(map[string]chan<- *types.Notification),
		events: event.NewEmitter(log),
	}
}

// respond queues one response for the given controller.action. Responses are
// consumed in order; actions without a script get an acknowledgment.
func (s *stubProtocol) respond(controllerAction string, res *types.KuzzleResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[controllerAction] = append(s.script[controllerAction], res)
}

func (s *stubProtocol) Connect(context.Context) error { return nil }

func (s *stubProtocol) Send(_ context.Context, req *types.KuzzleRequest, _ types.QueryOptions) (*types.KuzzleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.requests = append(s.requests, req)

	key := req.Controller + "." + req.Action
	var res *types.KuzzleResponse
	if queued := s.script[key]; len(queued) > 0 {
		res, s.script[key] = queued[0], queued[1:]
	} else {
		res = &types.KuzzleResponse{Status: 200, Result: json.RawMessage(`{"acknowledged":true}`)}
	}
	res.RequestID = req.RequestID
	return res, nil
}

func (s *stubProtocol) Close() error { s.events.Close(); return nil }

func (s *stubProtocol) State() protocol.State { return protocol.Connected }

func (s *stubProtocol) On(ev event.Event) <-chan event.Payload   { return s.events.On(ev) }
func (s *stubProtocol) Once(ev event.Event) <-chan event.Payload { return s.events.Once(ev) }
func (s *stubProtocol) Off(ev event.Event, ch <-chan event.Payload) {
	s.events.Off(ev, ch)
}
func (s *stubProtocol) ListenerCount(ev event.Event) int { return s.events.ListenerCount(ev) }

func (s *stubProtocol) StartQueuing() { s.mu.Lock(); s.queuing = true; s.mu.Unlock() }
func (s *stubProtocol) StopQueuing()  { s.mu.Lock(); s.queuing = false; s.mu.Unlock() }
func (s *stubProtocol) ClearQueue()   { s.mu.Lock(); s.cleared++; s.mu.Unlock() }
func (s *stubProtocol) PlayQueue()    { s.mu.Lock(); s.played++; s.mu.Unlock() }

func (s *stubProtocol) RequestHistory() []protocol.HistoryEntry { return nil }

func (s *stubProtocol) RegisterSub(channel string, ch chan<- *types.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[channel] = ch
	return nil
}

func (s *stubProtocol) UnregisterSub(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, channel)
}

// push delivers a notification the way the dispatcher would.
func (s *stubProtocol) push(channel string, n *types.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.subs[channel]
	if !ok {
		return false
	}
	select {
	case ch <- n:
		return true
	default:
		return false
	}
}

func (s *stubProtocol) hasSub(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[channel]
	return ok
}

func (s *stubProtocol) sentRequests() []*types.KuzzleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.KuzzleRequest(nil), s.requests...)
}

func (s *stubProtocol) lastRequest() *types.KuzzleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func quietOptions() *types.Options {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return types.NewOptions("localhost", 7512).SetLogger(log)
}

func newTestClient(t *testing.T) (*Kuzzle, *stubProtocol) {
	t.Helper()
	stub := newStubProtocol()
	k := New(stub, quietOptions())
	t.Cleanup(func() { _ = k.Disconnect() })
	return k, stub
}

func subscribeResponse(roomID, channel string) *types.KuzzleResponse {
	result, _ := json.Marshal(map[string]string{"roomId": roomID, "channel": channel})
	return &types.KuzzleResponse{Status: 200, RoomID: roomID, Result: result}
}

func TestQueryInjectsJwt(t *testing.T) {
	k, stub := newTestClient(t)
	k.SetJwt("client-token")

	req := types.NewRequest("server", "now")
	_, err := k.Query(context.Background(), req, types.NewQueryOptions())
	require.NoError(t, err)
	require.Equal(t, "client-token", stub.lastRequest().Jwt)
	require.Empty(t, req.Jwt, "original request must not be mutated")

	// A token set on the request itself wins.
	_, err = k.Query(context.Background(), types.NewRequest("server", "now").SetJwt("request-token"), types.NewQueryOptions())
	require.NoError(t, err)
	require.Equal(t, "request-token", stub.lastRequest().Jwt)
}

func TestQueryMergesVolatile(t *testing.T) {
	k, stub := newTestClient(t)
	k.SetVolatile(map[string]any{"sdk": "go", "tier": "client"})

	req := types.NewRequest("server", "now").SetVolatile(map[string]any{"tier": "request"})
	opts := types.NewQueryOptions().SetVolatile(map[string]any{"tier": "options", "trace": "abc"})

	_, err := k.Query(context.Background(), req, opts)
	require.NoError(t, err)

	sent := stub.lastRequest()
	require.Equal(t, "go", sent.Volatile["sdk"])
	require.Equal(t, "abc", sent.Volatile["trace"])
	require.Equal(t, "request", sent.Volatile["tier"], "request metadata wins over options and client")
}

func TestQueryReturnsBackendError(t *testing.T) {
	k, stub := newTestClient(t)
	stub.respond("index.create", &types.KuzzleResponse{
		Status: 412,
		Error:  types.NewKuzzleError(412, "index already exists"),
	})

	res, err := k.Query(context.Background(), types.NewRequest("index", "create").SetIndex("idx"), types.NewQueryOptions())
	require.Error(t, err)
	require.NotNil(t, res, "the envelope is returned alongside the error")

	var kerr *types.KuzzleError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, 412, kerr.Status)
	require.Equal(t, "PreconditionError", kerr.Name())
}

func TestQueryValidation(t *testing.T) {
	k, _ := newTestClient(t)

	_, err := k.Query(context.Background(), nil, types.NewQueryOptions())
	var sdkErr *types.SdkError
	require.ErrorAs(t, err, &sdkErr)
	require.Equal(t, "kuzzle.query", sdkErr.Cause)

	_, err = k.Query(context.Background(), types.NewRequest("", "now"), types.NewQueryOptions())
	require.ErrorAs(t, err, &sdkErr)
}

func TestUseMiddlewareOrder(t *testing.T) {
	k, _ := newTestClient(t)

	var order []string
	mark := func(name string) middleware.Middleware {
		return func(next middleware.HandlerFunc) middleware.HandlerFunc {
			return func(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
				order = append(order, name)
				return next(ctx, req, opts)
			}
		}
	}
	k.Use(mark("first"))
	k.Use(mark("second"))

	_, err := k.Query(context.Background(), types.NewRequest("server", "now"), types.NewQueryOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRateLimitPacesQueries(t *testing.T) {
	stub := newStubProtocol()
	k := New(stub, quietOptions().SetRateLimit(100, 1))
	t.Cleanup(func() { _ = k.Disconnect() })

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := k.Query(context.Background(), types.NewRequest("server", "now"), types.NewQueryOptions())
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond,
		"three queries at 100 rps must span at least two intervals")
}

func TestQueueDelegation(t *testing.T) {
	k, stub := newTestClient(t)

	k.StartQueuing()
	require.True(t, stub.queuing)
	k.StopQueuing()
	require.False(t, stub.queuing)
	k.PlayQueue()
	k.ClearQueue()
	require.Equal(t, 1, stub.played)
	require.Equal(t, 1, stub.cleared)
}

func TestSubscribeRoutesNotifications(t *testing.T) {
	k, stub := newTestClient(t)
	stub.respond("realtime.subscribe", subscribeResponse("room-1", "chan-1"))

	sub, err := k.Realtime().Subscribe(context.Background(), "idx", "coll", map[string]any{"exists": "licence"})
	require.NoError(t, err)
	require.Equal(t, "room-1", sub.RoomID())
	require.Equal(t, "chan-1", sub.Channel())
	require.True(t, stub.hasSub("chan-1"))

	pushed := stub.push("chan-1", &types.Notification{
		RoomID:  "room-1",
		Channel: "chan-1",
		Result:  json.RawMessage(`{"_source":{"licence":"B"}}`),
	})
	require.True(t, pushed)

	select {
	case n := <-sub.Notifications():
		require.Equal(t, "room-1", n.RoomID)
	case <-time.After(time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestSubscribeValidatesArguments(t *testing.T) {
	k, _ := newTestClient(t)

	var sdkErr *types.SdkError
	_, err := k.Realtime().Subscribe(context.Background(), "", "coll", nil)
	require.ErrorAs(t, err, &sdkErr)
	require.Equal(t, "realtime.subscribe", sdkErr.Cause)

	err = k.Realtime().Publish(context.Background(), "idx", "", nil)
	require.ErrorAs(t, err, &sdkErr)
	require.Equal(t, "realtime.publish", sdkErr.Cause)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	k, stub := newTestClient(t)
	stub.respond("realtime.subscribe", subscribeResponse("room-1", "chan-1"))

	sub, err := k.Realtime().Subscribe(context.Background(), "idx", "coll", nil)
	require.NoError(t, err)

	require.NoError(t, k.Realtime().Unsubscribe(context.Background(), sub))
	require.False(t, stub.hasSub("chan-1"))

	_, open := <-sub.Notifications()
	require.False(t, open, "notification channel must close on unsubscribe")

	sent := stub.lastRequest()
	require.Equal(t, "unsubscribe", sent.Action)
	require.Equal(t, "room-1", sent.Body["roomId"])

	// Unsubscribing again is a no-op.
	require.NoError(t, k.Realtime().Unsubscribe(context.Background(), sub))
}

func TestAutoResubscribeRestoresRooms(t *testing.T) {
	k, stub := newTestClient(t)
	stub.respond("realtime.subscribe", subscribeResponse("room-1", "chan-1"))
	stub.respond("realtime.subscribe", subscribeResponse("room-2", "chan-2"))

	sub, err := k.Realtime().Subscribe(context.Background(), "idx", "coll", nil)
	require.NoError(t, err)

	stub.events.Emit(event.Reconnected, event.Payload{})

	require.Eventually(t, func() bool {
		return stub.hasSub("chan-2") && !stub.hasSub("chan-1")
	}, 2*time.Second, 5*time.Millisecond, "routing must move to the new channel id")
	require.Equal(t, "room-2", sub.RoomID())

	// The caller keeps reading the same channel across the reconnection.
	stub.push("chan-2", &types.Notification{RoomID: "room-2", Channel: "chan-2"})
	select {
	case n := <-sub.Notifications():
		require.Equal(t, "room-2", n.RoomID)
	case <-time.After(time.Second):
		t.Fatal("notification never delivered after resubscription")
	}
}

func TestSubscribeBackendErrorPropagates(t *testing.T) {
	k, stub := newTestClient(t)
	stub.respond("realtime.subscribe", &types.KuzzleResponse{
		Status: 403,
		Error:  types.NewKuzzleError(403, "not allowed"),
	})

	_, err := k.Realtime().Subscribe(context.Background(), "idx", "coll", nil)
	var kerr *types.KuzzleError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, "ForbiddenError", kerr.Name())
	require.False(t, stub.hasSub("chan-1"))
}

func TestSendErrorPassesThrough(t *testing.T) {
	k, stub := newTestClient(t)
	stub.sendErr = types.ErrNotConnected

	_, err := k.Query(context.Background(), types.NewRequest("server", "now"), types.NewQueryOptions())
	require.True(t, errors.Is(err, types.ErrNotConnected))
}
