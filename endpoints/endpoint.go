// Package endpoints provides node selection for connecting to a Kuzzle
// cluster. A client holds a single connection, so the picker only runs when
// dialing: at the first connect and on every reconnect attempt.
//
// Three strategies are implemented:
//   - RoundRobin:      spread clients evenly across equal nodes
//   - WeightedRandom:  heterogeneous nodes (different capacity)
//   - Sticky:          hash-ring affinity — the same client reconnects to the
//     same node while the cluster topology is unchanged
package endpoints

import "fmt"

// Endpoint is one reachable Kuzzle node.
type Endpoint struct {
	Host   string `json:"host" yaml:"host"`
	Port   int    `json:"port" yaml:"port"`
	Weight int    `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Addr returns the node address in host:port form.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Picker is the interface for node selection strategies.
// The transport calls Pick() before each dial — must be goroutine-safe.
type Picker interface {
	// Pick selects one node from the available list.
	Pick(nodes []Endpoint) (*Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
