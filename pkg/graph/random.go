package graph

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// randomGraphStream selects the PCG stream used for Erdos-Renyi sampling so it
// never coincides with the per-node coloring streams derived from the same seed.
const randomGraphStream = 0x9e3779b97f4a7c15

// NewRandom samples a G(n, p) graph: every unordered pair is an edge
// independently with probability prob. The same (nodeCount, prob, seed) always
// produces the same adjacency.
func NewRandom(nodeCount uint32, prob float32, seed uint64) (*Host, error) {
	if prob < 0 || prob > 1 || math.IsNaN(float64(prob)) {
		return nil, fmt.Errorf("edge probability must be in [0, 1], got %f", prob)
	}

	rng := rand.New(rand.NewPCG(seed, randomGraphStream))
	edges := sampleErdosRenyi(nodeCount, float64(prob), rng)

	h, err := NewFromEdges(nodeCount, edges)
	if err != nil {
		return nil, err
	}
	h.Prob = prob
	return h, nil
}

// sampleErdosRenyi walks the strictly lower triangle of the adjacency matrix
// with geometric skips (Batagelj & Brandes), which is O(n + m) instead of O(n^2).
func sampleErdosRenyi(n uint32, p float64, rng *rand.Rand) []Edge {
	if n < 2 || p <= 0 {
		return nil
	}

	if p >= 1 {
		edges := make([]Edge, 0, int(n)*int(n-1)/2)
		for v := uint32(1); v < n; v++ {
			for w := uint32(0); w < v; w++ {
				edges = append(edges, Edge{U: w, V: v})
			}
		}
		return edges
	}

	expected := p * float64(n) * float64(n-1) / 2
	edges := make([]Edge, 0, int(expected)+1)
	logQ := math.Log(1 - p)

	v, w := int64(1), int64(-1)
	for v < int64(n) {
		r := rng.Float64()
		skip := math.Floor(math.Log(1-r) / logQ)
		if skip > float64(n)*float64(n) {
			break
		}
		w += 1 + int64(skip)
		for w >= v && v < int64(n) {
			w -= v
			v++
		}
		if v < int64(n) {
			edges = append(edges, Edge{U: uint32(w), V: uint32(v)})
		}
	}
	return edges
}
