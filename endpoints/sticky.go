package endpoints

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"
)

// Sticky maps a fixed client key to a node using a hash ring, so a client
// keeps reconnecting to the same node as long as the cluster topology does
// not change. Realtime subscriptions live on the node that created them;
// landing back on it after a reconnect makes resubscription cheap.
//
// Virtual nodes: each real node is mapped to N points on the ring. Without
// them, a small cluster tends to cluster together on the ring, skewing the
// distribution of client keys. 100 virtual nodes per real node is enough for
// statistical uniformity.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type Sticky struct {
	key      string // Client identity hashed onto the ring
	replicas int    // Virtual nodes per real node

	mu          sync.Mutex
	fingerprint string // Node set the ring was built from
	ring        []uint32
	byHash      map[uint32]Endpoint
}

// NewSticky creates a hash-ring picker for the given client key,
// with 100 virtual nodes per cluster node.
func NewSticky(key string) *Sticky {
	return &Sticky{
		key:      key,
		replicas: 100,
	}
}

// Pick finds the node responsible for the picker's client key.
// The ring is rebuilt only when the node set changed since the last call.
func (p *Sticky) Pick(nodes []Endpoint) (*Endpoint, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes available")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.rebuild(nodes)

	hash := crc32.ChecksumIEEE([]byte(p.key))

	// Binary search: first ring point with hash >= key's hash.
	idx := sort.Search(len(p.ring), func(i int) bool {
		return p.ring[i] >= hash
	})

	// Wrap around: if the key's hash is past every point, take the first one.
	if idx == len(p.ring) {
		idx = 0
	}

	node := p.byHash[p.ring[idx]]
	return &node, nil
}

func (p *Sticky) Name() string {
	return "Sticky"
}

// rebuild regenerates the ring when the node set differs from the one the
// current ring was built from. Each node contributes replicas points hashed
// from "{addr}#{i}".
func (p *Sticky) rebuild(nodes []Endpoint) {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.Addr()
	}
	sort.Strings(addrs)
	fp := strings.Join(addrs, ",")
	if fp == p.fingerprint {
		return
	}

	p.fingerprint = fp
	p.ring = p.ring[:0]
	p.byHash = make(map[uint32]Endpoint, len(nodes)*p.replicas)
	for _, n := range nodes {
		for i := 0; i < p.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", n.Addr(), i)))
			p.ring = append(p.ring, hash)
			p.byHash[hash] = n
		}
	}
	sort.Slice(p.ring, func(i, j int) bool {
		return p.ring[i] < p.ring[j]
	})
}
