package graph

import (
	"fmt"
	"sort"
)

// Edge is an undirected edge between U and V.
type Edge struct {
	U      uint32  `json:"u"`
	V      uint32  `json:"v"`
	Weight float32 `json:"weight,omitempty"`
}

// EdgeList is the raw form a graph source hands to the builder.
type EdgeList struct {
	NodeCount      uint32
	Edges          []Edge
	Weighted       bool      // copy Edge.Weight into EdgeWeights
	NodeWeights    []float32 // optional
	NodeThresholds []float32 // optional
}

// Importer yields an edge list from some external source (file, request body).
type Importer interface {
	Import() (*EdgeList, error)
}

// Host owns the canonical host-resident copy of a CompactGraph together with
// its derived statistics.
type Host struct {
	graph *CompactGraph
	stats Stats

	// Prob is the edge probability for random graphs, zero otherwise.
	Prob float32
}

// NewHost wraps an existing CompactGraph after validating it. The host takes
// ownership of g.
func NewHost(g *CompactGraph) (*Host, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Host{graph: g, stats: ComputeStats(g)}, nil
}

// NewFromEdges builds a host graph from an undirected edge list. Self-loops and
// duplicate edges are dropped.
func NewFromEdges(nodeCount uint32, edges []Edge) (*Host, error) {
	return NewFromEdgeList(&EdgeList{NodeCount: nodeCount, Edges: edges})
}

// NewFromImporter builds a host graph from whatever the importer yields.
func NewFromImporter(imp Importer) (*Host, error) {
	list, err := imp.Import()
	if err != nil {
		return nil, fmt.Errorf("import failed: %w", err)
	}
	return NewFromEdgeList(list)
}

// NewFromEdgeList builds a host graph from a full edge list description.
func NewFromEdgeList(list *EdgeList) (*Host, error) {
	g, err := buildCompact(list)
	if err != nil {
		return nil, err
	}
	return NewHost(g)
}

// Graph returns the owned CompactGraph. Callers must treat it as read-only.
func (h *Host) Graph() *CompactGraph { return h.graph }

// Stats returns the statistics computed at construction.
func (h *Host) Stats() Stats { return h.stats }

func (h *Host) MaxDegree() uint32 { return h.stats.MaxDegree }
func (h *Host) MinDegree() uint32 { return h.stats.MinDegree }
func (h *Host) MeanDegree() float64 { return h.stats.MeanDegree }
func (h *Host) Density() float64 { return h.stats.Density }
func (h *Host) IsConnected() bool { return h.stats.Connected }
func (h *Host) NodeCount() uint32 { return h.graph.NodeCount }
func (h *Host) EdgeCount() uint32 { return h.graph.EdgeCount }
func (h *Host) Residency() Residency { return HostResident }

type pair struct {
	a, b uint32
	w    float32
}

func buildCompact(list *EdgeList) (*CompactGraph, error) {
	n := list.NodeCount

	if list.NodeWeights != nil && len(list.NodeWeights) != int(n) {
		return nil, fmt.Errorf("%w: %d node weights for %d nodes", ErrStructural, len(list.NodeWeights), n)
	}
	if list.NodeThresholds != nil && len(list.NodeThresholds) != int(n) {
		return nil, fmt.Errorf("%w: %d thresholds for %d nodes", ErrStructural, len(list.NodeThresholds), n)
	}

	pairs := make([]pair, 0, len(list.Edges))
	for _, e := range list.Edges {
		if e.U >= n || e.V >= n {
			return nil, fmt.Errorf("%w: edge %d-%d out of range for %d nodes", ErrStructural, e.U, e.V, n)
		}
		if e.U == e.V {
			continue
		}
		p := pair{a: e.U, b: e.V, w: e.Weight}
		if p.a > p.b {
			p.a, p.b = p.b, p.a
		}
		pairs = append(pairs, p)
	}

	// Sorted (a, b) order makes every neighbor slice come out ascending.
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})
	unique := pairs[:0]
	for i, p := range pairs {
		if i > 0 && p.a == pairs[i-1].a && p.b == pairs[i-1].b {
			continue
		}
		unique = append(unique, p)
	}
	pairs = unique

	cumulDegs := make([]uint32, n+1)
	for _, p := range pairs {
		cumulDegs[p.a+1]++
		cumulDegs[p.b+1]++
	}
	for i := uint32(0); i < n; i++ {
		cumulDegs[i+1] += cumulDegs[i]
	}

	edgeCount := cumulDegs[n]
	neighs := make([]uint32, edgeCount)
	var edgeWeights []float32
	if list.Weighted {
		edgeWeights = make([]float32, edgeCount)
	}

	fill := make([]uint32, n)
	copy(fill, cumulDegs[:n])
	for _, p := range pairs {
		neighs[fill[p.a]] = p.b
		neighs[fill[p.b]] = p.a
		if edgeWeights != nil {
			edgeWeights[fill[p.a]] = p.w
			edgeWeights[fill[p.b]] = p.w
		}
		fill[p.a]++
		fill[p.b]++
	}

	g := &CompactGraph{
		NodeCount:   n,
		EdgeCount:   edgeCount,
		CumulDegs:   cumulDegs,
		Neighs:      neighs,
		EdgeWeights: edgeWeights,
	}
	if list.NodeWeights != nil {
		g.NodeWeights = append([]float32(nil), list.NodeWeights...)
	}
	if list.NodeThresholds != nil {
		g.NodeThresholds = append([]float32(nil), list.NodeThresholds...)
	}
	return g, nil
}
