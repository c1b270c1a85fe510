package kuzzle

import (
	"context"
	"sync"
	"time"

	"github.com/xbill82/kuzzle-sdk-go/event"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

const (
	// notifBuffer bounds a subscription's notification channel. A subscriber
	// that stops draining loses the overflow instead of stalling the
	// dispatcher.
	notifBuffer = 64

	resubscribeTimeout = 10 * time.Second
)

// Subscription is one live realtime subscription. Read notifications from
// Notifications; the channel closes on Unsubscribe.
type Subscription struct {
	index      string
	collection string
	filters    map[string]any

	mu      sync.Mutex
	roomID  string
	channel string
	closed  bool

	notif chan *types.Notification
}

// RoomID returns the backend room identifier. It changes when the
// subscription is restored after a reconnection.
func (s *Subscription) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Channel returns the notification channel identifier.
func (s *Subscription) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// Notifications returns the channel delivering this subscription's
// notifications. It stays valid across reconnections and closes on
// Unsubscribe.
func (s *Subscription) Notifications() <-chan *types.Notification {
	return s.notif
}

// Realtime groups the realtime controller actions. It is a singleton per
// client: it tracks the live subscriptions so they can be restored after a
// reconnection (AutoResubscribe).
type Realtime struct {
	k *Kuzzle

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	watchOnce sync.Once
}

func newRealtime(k *Kuzzle) *Realtime {
	return &Realtime{
		k:    k,
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers to the notifications matching the given Koncorde
// filters on index/collection. Nil filters match every document of the
// collection. Subscriptions are never queued offline: a room only exists on
// a live connection.
func (c *Realtime) Subscribe(ctx context.Context, index, collection string, filters map[string]any) (*Subscription, error) {
	if index == "" {
		return nil, types.NewSdkError("realtime.subscribe", "index argument must not be empty.")
	}
	if collection == "" {
		return nil, types.NewSdkError("realtime.subscribe", "collection argument must not be empty.")
	}

	roomID, channel, err := c.subscribe(ctx, index, collection, filters)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		index:      index,
		collection: collection,
		filters:    filters,
		roomID:     roomID,
		channel:    channel,
		notif:      make(chan *types.Notification, notifBuffer),
	}
	if err := c.k.proto.RegisterSub(channel, sub.notif); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	if c.k.opts.AutoResubscribe {
		c.watchOnce.Do(func() { go c.watchReconnects() })
	}
	return sub, nil
}

// subscribe performs the wire call and returns the assigned room and channel
// identifiers.
func (c *Realtime) subscribe(ctx context.Context, index, collection string, filters map[string]any) (roomID, channel string, err error) {
	req := types.NewRequest("realtime", "subscribe").
		SetIndex(index).
		SetCollection(collection).
		SetBody(filters)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions().SetQueuable(false))
	if err != nil {
		return "", "", err
	}
	var result struct {
		RoomID  string `json:"roomId"`
		Channel string `json:"channel"`
	}
	if err := decodeResult(res, &result); err != nil {
		return "", "", err
	}
	return result.RoomID, result.Channel, nil
}

// Unsubscribe leaves the room, stops notification routing and closes the
// subscription's channel. Local teardown happens first: a notification in
// flight while the backend processes the call is dropped by the dispatcher,
// not delivered after close. Unsubscribing twice is a no-op.
func (c *Realtime) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return types.NewSdkError("realtime.unsubscribe", "subscription argument must not be nil")
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return nil
	}
	sub.closed = true
	roomID := sub.roomID
	// UnregisterSub guarantees no delivery after it returns, making the
	// close below safe.
	c.k.proto.UnregisterSub(sub.channel)
	sub.mu.Unlock()

	close(sub.notif)

	c.mu.Lock()
	delete(c.subs, sub)
	c.mu.Unlock()

	req := types.NewRequest("realtime", "unsubscribe").AddToBody("roomId", roomID)
	_, err := c.k.Query(ctx, req, types.NewQueryOptions().SetQueuable(false))
	return err
}

// Publish broadcasts a volatile message to the room's current subscribers.
// The message is not persisted.
func (c *Realtime) Publish(ctx context.Context, index, collection string, message map[string]any) error {
	if index == "" {
		return types.NewSdkError("realtime.publish", "index argument must not be empty.")
	}
	if collection == "" {
		return types.NewSdkError("realtime.publish", "collection argument must not be empty.")
	}
	req := types.NewRequest("realtime", "publish").
		SetIndex(index).
		SetCollection(collection).
		SetBody(message)
	_, err := c.k.Query(ctx, req, types.NewQueryOptions())
	return err
}

// watchReconnects restores every tracked subscription when the connection
// comes back. The loop ends when the protocol closes (the emitter closes its
// listener channels).
func (c *Realtime) watchReconnects() {
	reconnected := c.k.On(event.Reconnected)
	for range reconnected {
		c.mu.Lock()
		subs := make([]*Subscription, 0, len(c.subs))
		for sub := range c.subs {
			subs = append(subs, sub)
		}
		c.mu.Unlock()

		for _, sub := range subs {
			if err := c.resubscribe(sub); err != nil {
				c.k.log.WithError(err).WithFields(map[string]any{
					"index":      sub.index,
					"collection": sub.collection,
				}).Warn("resubscription failed")
			}
		}
	}
}

// resubscribe re-issues one subscription and swaps the notification routing
// to the new channel id. The caller's Notifications channel is preserved.
func (c *Realtime) resubscribe(sub *Subscription) error {
	ctx, cancel := context.WithTimeout(context.Background(), resubscribeTimeout)
	defer cancel()

	roomID, channel, err := c.subscribe(ctx, sub.index, sub.collection, sub.filters)
	if err != nil {
		return err
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		// Unsubscribe won the race; the fresh room is abandoned.
		return nil
	}
	c.k.proto.UnregisterSub(sub.channel)
	sub.roomID, sub.channel = roomID, channel
	return c.k.proto.RegisterSub(channel, sub.notif)
}
