package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xbill82/kuzzle-sdk-go/event"
	"github.com/xbill82/kuzzle-sdk-go/kuzzletest"
	"github.com/xbill82/kuzzle-sdk-go/protocol"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

func connectedClient(t *testing.T, s *kuzzletest.Server) *WebSocket {
	t.Helper()
	w, err := New(s.ClientOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func waitEvent(t *testing.T, ch <-chan event.Payload) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestConnectAndQuery(t *testing.T) {
	s := kuzzletest.NewServer()
	defer s.Close()

	w := connectedClient(t, s)
	if w.State() != protocol.Connected {
		t.Fatalf("expected Connected, got %s", w.State())
	}

	res, err := w.Send(context.Background(), types.NewRequest("server", "now"), types.NewQueryOptions())
	if err != nil {
		t.Fatal(err)
	}
	var result struct {
		Now int64 `json:"now"`
	}
	if err := json.Unmarshal(res.Result, &result); err != nil || result.Now == 0 {
		t.Fatalf("unexpected result: %s", res.Result)
	}
}

func TestConcurrentQueries(t *testing.T) {
	s := kuzzletest.NewServer()
	defer s.Close()

	s.Handle("document", "get", func(req *types.KuzzleRequest) *types.KuzzleResponse {
		id := fmt.Sprint(req.QueryStrings["_id"])
		result, _ := json.Marshal(map[string]string{"_id": id})
		return &types.KuzzleResponse{Status: 200, Result: result}
	})

	w := connectedClient(t, s)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("doc-%d", i)
		g.Go(func() error {
			req := types.NewRequest("document", "get").
				SetIndex("nyc-open-data").
				SetCollection("yellow-taxi").
				AddToQueryStrings("_id", id)
			res, err := w.Send(context.Background(), req, types.NewQueryOptions())
			if err != nil {
				return err
			}
			var doc struct {
				ID string `json:"_id"`
			}
			if err := json.Unmarshal(res.Result, &doc); err != nil {
				return err
			}
			if doc.ID != id {
				return fmt.Errorf("response for %s answered %s", id, doc.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	s := kuzzletest.NewServer()
	defer s.Close()

	w := connectedClient(t, s)
	reconnected := w.On(event.Reconnected)

	s.DropConnections()
	waitEvent(t, reconnected)

	res, err := w.Send(context.Background(), types.NewRequest("server", "now"), types.NewQueryOptions())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != 200 {
		t.Fatalf("unexpected status after reconnect: %d", res.Status)
	}
}

func TestPendingRequestFailsOnDrop(t *testing.T) {
	s := kuzzletest.NewServer()
	defer s.Close()

	// A handler that never answers keeps the request pending.
	block := make(chan struct{})
	defer close(block)
	s.Handle("server", "info", func(req *types.KuzzleRequest) *types.KuzzleResponse {
		<-block
		return nil
	})

	w := connectedClient(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := w.Send(context.Background(), types.NewRequest("server", "info"), types.NewQueryOptions())
		done <- err
	}()
	// Let the request reach the server before killing the connection.
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Received()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never reached the server")
		}
		time.Sleep(2 * time.Millisecond)
	}

	s.DropConnections()
	select {
	case err := <-done:
		if !errors.Is(err, types.ErrConnectionLost) {
			t.Fatalf("expected connection-lost error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not failed by the drop")
	}
}

func TestNotificationDelivery(t *testing.T) {
	s := kuzzletest.NewServer()
	defer s.Close()

	w := connectedClient(t, s)

	res, err := w.Send(context.Background(), types.NewRequest("realtime", "subscribe").
		SetIndex("nyc-open-data").SetCollection("yellow-taxi"), types.NewQueryOptions())
	if err != nil {
		t.Fatal(err)
	}
	var sub struct {
		RoomID  string `json:"roomId"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(res.Result, &sub); err != nil || sub.Channel == "" {
		t.Fatalf("unexpected subscribe result: %s", res.Result)
	}

	notif := make(chan *types.Notification, 4)
	if err := w.RegisterSub(sub.Channel, notif); err != nil {
		t.Fatal(err)
	}

	if err := s.Push(sub.Channel, &types.KuzzleResponse{
		RoomID: sub.RoomID,
		Result: json.RawMessage(`{"_source":{"licence":"B"}}`),
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-notif:
		if n.RoomID != sub.RoomID || n.Channel != sub.Channel {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}
