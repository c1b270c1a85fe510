package endpoints

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultDiscoveryPrefix is the etcd key prefix scanned for Kuzzle nodes
// when none is configured.
const DefaultDiscoveryPrefix = "/kuzzle/nodes/"

// EtcdSource discovers Kuzzle cluster nodes from etcd. Operators publish
// each node under <prefix><host:port> with a JSON-encoded Endpoint as the
// value, typically with a TTL lease so crashed nodes disappear on their own:
//
//	Key:   /kuzzle/nodes/10.0.0.12:7512
//	Value: {"host":"10.0.0.12","port":7512,"weight":10}
//
// The SDK only reads: it never registers anything, the backend deployment
// does. Discovery is optional — without it the client sticks to the static
// node list from its options.
type EtcdSource struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	prefix string
}

// NewEtcdSource connects to the given etcd endpoints. An empty prefix falls
// back to DefaultDiscoveryPrefix.
func NewEtcdSource(etcdEndpoints []string, prefix string) (*EtcdSource, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: etcdEndpoints,
	})
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	return &EtcdSource{client: c, prefix: prefix}, nil
}

// Endpoints returns all currently published nodes under the prefix.
// Malformed values are skipped rather than failing the whole lookup.
func (s *EtcdSource) Endpoints(ctx context.Context) ([]Endpoint, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	nodes := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var node Endpoint
		if err := json.Unmarshal(kv.Value, &node); err != nil {
			continue // Skip malformed entries
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Watch monitors the prefix and emits the updated node list whenever keys
// change (new nodes, removals, lease expirations). The channel closes when
// ctx is cancelled.
//
// Uses etcd's Watch API (server-push), which is cheaper than polling.
func (s *EtcdSource) Watch(ctx context.Context) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := s.client.Watch(ctx, s.prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full node list
			// (simpler than applying individual watch events).
			nodes, err := s.Endpoints(ctx)
			if err != nil {
				continue
			}
			select {
			case ch <- nodes:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close releases the underlying etcd client.
func (s *EtcdSource) Close() error {
	return s.client.Close()
}
