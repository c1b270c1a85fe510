package endpoints

import (
	"fmt"
	"testing"
)

var testNodes = []Endpoint{
	{Host: "node1", Port: 7512, Weight: 10},
	{Host: "node2", Port: 7512, Weight: 5},
	{Host: "node3", Port: 7512, Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	p := &RoundRobin{}

	// Pick 3 times, should cycle through all nodes
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		node, err := p.Pick(testNodes)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = node.Addr()
	}

	// Pick again, should wrap around to the first
	node, _ := p.Pick(testNodes)
	if node.Addr() != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], node.Addr())
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	p := &RoundRobin{}
	_, err := p.Pick([]Endpoint{})
	if err == nil {
		t.Fatal("expect error for empty node list")
	}
}

func TestWeightedRandom(t *testing.T) {
	p := &WeightedRandom{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		node, err := p.Pick(testNodes)
		if err != nil {
			t.Fatal(err)
		}
		counts[node.Addr()]++
	}

	// Weight ratio is 10:5:10, so node1 and node3 should be ~2x of node2
	ratio := float64(counts["node1:7512"]) / float64(counts["node2:7512"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio node1/node2 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomUnweighted(t *testing.T) {
	p := &WeightedRandom{}
	unweighted := []Endpoint{
		{Host: "a", Port: 7512},
		{Host: "b", Port: 7512},
	}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		node, err := p.Pick(unweighted)
		if err != nil {
			t.Fatal(err)
		}
		seen[node.Addr()] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expect both unweighted nodes to be picked, got %d", len(seen))
	}
}

func TestSticky(t *testing.T) {
	p := NewSticky("client-123")

	// Same key, same node set → same node every time
	first, err := p.Pick(testNodes)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		node, _ := p.Pick(testNodes)
		if node.Addr() != first.Addr() {
			t.Fatalf("sticky pick changed: %s vs %s", first.Addr(), node.Addr())
		}
	}

	// Different client keys should spread over the cluster
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		sp := NewSticky(fmt.Sprintf("client-%d", i))
		node, _ := sp.Pick(testNodes)
		seen[node.Addr()] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different nodes across keys, got %d", len(seen))
	}
}

func TestStickyTopologyChange(t *testing.T) {
	p := NewSticky("client-123")

	node, err := p.Pick(testNodes)
	if err != nil {
		t.Fatal(err)
	}

	// Removing an unrelated node must not move the key (ring property:
	// only keys owned by the removed node migrate).
	var reduced []Endpoint
	for _, n := range testNodes {
		if n.Addr() != node.Addr() {
			reduced = append(reduced, n)
		}
	}
	moved, err := p.Pick(reduced)
	if err != nil {
		t.Fatal(err)
	}
	if moved.Addr() == node.Addr() {
		t.Fatalf("removed node still picked: %s", moved.Addr())
	}

	// Restoring the original set brings the key back to its node.
	back, _ := p.Pick(testNodes)
	if back.Addr() != node.Addr() {
		t.Fatalf("expect %s after restoring topology, got %s", node.Addr(), back.Addr())
	}
}
