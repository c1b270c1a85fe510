package endpoints

import (
	"fmt"
	"math/rand"
)

// WeightedRandom picks nodes at random, proportionally to their weight.
// Nodes with weight 0 are counted as weight 1 so an unweighted list
// degrades to plain random selection.
type WeightedRandom struct{}

func (p *WeightedRandom) Pick(nodes []Endpoint) (*Endpoint, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes available")
	}

	totalWeight := 0
	for _, n := range nodes {
		totalWeight += weightOf(n)
	}

	// Draw a random point in [0, totalWeight) and walk the list until the
	// cumulative weight passes it.
	r := rand.Intn(totalWeight)
	for i := range nodes {
		r -= weightOf(nodes[i])
		if r < 0 {
			return &nodes[i], nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (p *WeightedRandom) Name() string {
	return "WeightedRandom"
}

func weightOf(n Endpoint) int {
	if n.Weight <= 0 {
		return 1
	}
	return n.Weight
}
