package graph

import (
	"fmt"
	"math"
)

// Unmapped marks a full-graph node that is not part of a reduced graph.
const Unmapped = math.MaxUint32

// Reduced is the subgraph induced by the still-unlabelled nodes of a larger
// graph, together with the maps between both index spaces.
type Reduced struct {
	*Host

	SubsetToFull []uint32 // reduced index -> full index
	FullToSubset []uint32 // full index -> reduced index, or Unmapped
}

// UnlabelledFromLabels lists the nodes whose label is negative, in ascending
// order.
func UnlabelledFromLabels(labels []int32) []uint32 {
	unlabelled := make([]uint32, 0)
	for i, l := range labels {
		if l < 0 {
			unlabelled = append(unlabelled, uint32(i))
		}
	}
	return unlabelled
}

// NewReduced builds the subgraph of full induced by unlabelled. Thresholds are
// indexed by full node id; when nil the full graph's own thresholds are
// inherited. Node weights are always carried over.
func NewReduced(full *CompactGraph, unlabelled []uint32, thresholds []float32) (*Reduced, error) {
	n := full.NodeCount
	if thresholds != nil && len(thresholds) != int(n) {
		return nil, fmt.Errorf("%d thresholds for %d nodes", len(thresholds), n)
	}
	if thresholds == nil {
		thresholds = full.NodeThresholds
	}

	fullToSubset := make([]uint32, n)
	for i := range fullToSubset {
		fullToSubset[i] = Unmapped
	}
	subsetToFull := make([]uint32, len(unlabelled))
	for s, f := range unlabelled {
		if f >= n {
			return nil, fmt.Errorf("unlabelled node %d out of range for %d nodes", f, n)
		}
		if fullToSubset[f] != Unmapped {
			return nil, fmt.Errorf("unlabelled node %d listed twice", f)
		}
		fullToSubset[f] = uint32(s)
		subsetToFull[s] = f
	}

	list := &EdgeList{
		NodeCount: uint32(len(unlabelled)),
		Weighted:  full.EdgeWeights != nil,
	}
	for s, f := range subsetToFull {
		start := full.CumulDegs[f]
		for k, nb := range full.Neighbors(f) {
			t := fullToSubset[nb]
			if t == Unmapped || uint32(s) >= t {
				continue
			}
			e := Edge{U: uint32(s), V: t}
			if list.Weighted {
				e.Weight = full.EdgeWeights[start+uint32(k)]
			}
			list.Edges = append(list.Edges, e)
		}
	}
	if thresholds != nil {
		list.NodeThresholds = make([]float32, len(unlabelled))
		for s, f := range subsetToFull {
			list.NodeThresholds[s] = thresholds[f]
		}
	}
	if full.NodeWeights != nil {
		list.NodeWeights = make([]float32, len(unlabelled))
		for s, f := range subsetToFull {
			list.NodeWeights[s] = full.NodeWeights[f]
		}
	}

	host, err := NewFromEdgeList(list)
	if err != nil {
		return nil, fmt.Errorf("reduced graph build failed: %w", err)
	}

	return &Reduced{
		Host:         host,
		SubsetToFull: subsetToFull,
		FullToSubset: fullToSubset,
	}, nil
}

// Scatter writes values indexed by reduced node into dst indexed by full node.
func (r *Reduced) Scatter(values []uint32, dst []uint32) error {
	if len(values) != len(r.SubsetToFull) {
		return fmt.Errorf("%d values for %d reduced nodes", len(values), len(r.SubsetToFull))
	}
	if len(dst) != len(r.FullToSubset) {
		return fmt.Errorf("destination has %d slots for %d full nodes", len(dst), len(r.FullToSubset))
	}
	for s, f := range r.SubsetToFull {
		dst[f] = values[s]
	}
	return nil
}
