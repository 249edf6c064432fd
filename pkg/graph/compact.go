package graph

import (
	"errors"
	"fmt"
)

// ErrStructural marks a CompactGraph whose adjacency and degree arrays disagree.
var ErrStructural = errors.New("structural error")

// CompactGraph is a CSR adjacency structure: a cumulative degree index plus a
// flat neighbor array. Adjacency is stored symmetrically, so EdgeCount is twice
// the number of undirected edges.
type CompactGraph struct {
	NodeCount uint32 `json:"node_count"`
	EdgeCount uint32 `json:"edge_count"`

	CumulDegs []uint32 `json:"-"` // len NodeCount+1, CumulDegs[0] = 0
	Neighs    []uint32 `json:"-"` // len EdgeCount

	NodeWeights    []float32 `json:"-"` // optional, len NodeCount
	EdgeWeights    []float32 `json:"-"` // optional, len EdgeCount
	NodeThresholds []float32 `json:"-"` // optional, len NodeCount
}

// Degree returns the number of neighbor entries of node i.
func (g *CompactGraph) Degree(i uint32) uint32 {
	return g.CumulDegs[i+1] - g.CumulDegs[i]
}

// Neighbors returns the neighbor slice of node i. The slice aliases the graph
// storage and must not be modified.
func (g *CompactGraph) Neighbors(i uint32) []uint32 {
	return g.Neighs[g.CumulDegs[i]:g.CumulDegs[i+1]]
}

// AreNeighbors reports whether i appears in the neighbor slice of j.
func (g *CompactGraph) AreNeighbors(i, j uint32) bool {
	for _, n := range g.Neighbors(j) {
		if n == i {
			return true
		}
	}
	return false
}

// UndirectedEdgeCount returns the number of distinct undirected edges.
func (g *CompactGraph) UndirectedEdgeCount() int {
	count := 0
	for u := uint32(0); u < g.NodeCount; u++ {
		for _, v := range g.Neighbors(u) {
			if u < v {
				count++
			}
		}
	}
	return count
}

// Validate checks that every neighbor index is in range and that the degree
// index closes on EdgeCount.
func (g *CompactGraph) Validate() error {
	if len(g.CumulDegs) != int(g.NodeCount)+1 {
		return fmt.Errorf("%w: cumulative degrees has length %d, want %d",
			ErrStructural, len(g.CumulDegs), g.NodeCount+1)
	}
	if len(g.Neighs) != int(g.EdgeCount) {
		return fmt.Errorf("%w: neighbor array has length %d, want %d",
			ErrStructural, len(g.Neighs), g.EdgeCount)
	}

	for k, n := range g.Neighs {
		if n >= g.NodeCount {
			return fmt.Errorf("%w: neighbor entry %d refers to node %d, node count is %d",
				ErrStructural, k, n, g.NodeCount)
		}
	}

	if g.CumulDegs[g.NodeCount] != g.EdgeCount {
		return fmt.Errorf("%w: cumulative degree total %d does not match edge count %d",
			ErrStructural, g.CumulDegs[g.NodeCount], g.EdgeCount)
	}

	if g.NodeWeights != nil && len(g.NodeWeights) != int(g.NodeCount) {
		return fmt.Errorf("%w: %d node weights for %d nodes", ErrStructural, len(g.NodeWeights), g.NodeCount)
	}
	if g.EdgeWeights != nil && len(g.EdgeWeights) != int(g.EdgeCount) {
		return fmt.Errorf("%w: %d edge weights for %d edges", ErrStructural, len(g.EdgeWeights), g.EdgeCount)
	}
	if g.NodeThresholds != nil && len(g.NodeThresholds) != int(g.NodeCount) {
		return fmt.Errorf("%w: %d thresholds for %d nodes", ErrStructural, len(g.NodeThresholds), g.NodeCount)
	}

	return nil
}

// Clone returns a deep copy of the graph.
func (g *CompactGraph) Clone() *CompactGraph {
	clone := &CompactGraph{
		NodeCount: g.NodeCount,
		EdgeCount: g.EdgeCount,
		CumulDegs: append([]uint32(nil), g.CumulDegs...),
		Neighs:    append([]uint32(nil), g.Neighs...),
	}
	if g.NodeWeights != nil {
		clone.NodeWeights = append([]float32(nil), g.NodeWeights...)
	}
	if g.EdgeWeights != nil {
		clone.EdgeWeights = append([]float32(nil), g.EdgeWeights...)
	}
	if g.NodeThresholds != nil {
		clone.NodeThresholds = append([]float32(nil), g.NodeThresholds...)
	}
	return clone
}
