package endpoints

import (
	"fmt"
	"sync/atomic"
)

// RoundRobin cycles through all nodes in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
//
// Best when all nodes have similar capacity.
type RoundRobin struct {
	counter int64 // Atomic counter, incremented on each Pick()
}

// Pick selects the next node in round-robin order.
func (p *RoundRobin) Pick(nodes []Endpoint) (*Endpoint, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes available")
	}
	index := atomic.AddInt64(&p.counter, 1) % int64(len(nodes))
	return &nodes[index], nil
}

func (p *RoundRobin) Name() string {
	return "RoundRobin"
}
