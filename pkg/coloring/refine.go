package coloring

import (
	"context"
	"fmt"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
)

// RefineResult is the outcome of recoloring the conflicted part of a graph.
type RefineResult struct {
	Coloring  []uint32 `json:"coloring"`
	Conflicts uint64   `json:"conflicts"`
	NumColors uint32   `json:"num_colors"` // palette size of Coloring, including the offset
	Recolored int      `json:"recolored"`
	// Discarded is set when the merged coloring had more conflicts than the
	// input; Coloring is then the input unchanged.
	Discarded bool    `json:"discarded,omitempty"`
	Reduced   *Result `json:"reduced,omitempty"`
}

// ConflictedNodes returns, for every conflicting edge, its higher endpoint, in
// ascending order and without duplicates. Removing these nodes leaves a proper
// coloring on the rest.
func ConflictedNodes(g *graph.CompactGraph, coloring []uint32) []uint32 {
	out := make([]uint32, 0)
	for v := uint32(0); v < g.NodeCount; v++ {
		for _, u := range g.Neighbors(v) {
			if u < v && coloring[u] == coloring[v] {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// Refine keeps every node outside a conflicting edge's higher endpoint fixed and
// colors the subgraph induced by the remaining nodes with a fresh palette of
// params.NumColors colors, offset by base. The offset keeps refined nodes from
// clashing with fixed ones, so the merged coloring has exactly as many
// conflicts as the reduced run left behind. The returned coloring never has
// more conflicts than the input.
func Refine(ctx context.Context, host *graph.Host, coloring []uint32, base uint32, params Params, devOpts graph.DeviceOptions, opts ...Option) (*RefineResult, error) {
	g := host.Graph()
	if len(coloring) != int(g.NodeCount) {
		return nil, fmt.Errorf("%w: coloring has %d entries for %d nodes", ErrConfiguration, len(coloring), g.NodeCount)
	}

	merged := append([]uint32(nil), coloring...)
	unlabelled := ConflictedNodes(g, coloring)
	if len(unlabelled) == 0 {
		return &RefineResult{Coloring: merged, NumColors: base}, nil
	}

	reduced, err := graph.NewReduced(g, unlabelled, nil)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngine(reduced.ToDevice(devOpts), params, opts...)
	if err != nil {
		return nil, err
	}
	res, runErr := engine.Run(ctx)
	if res == nil {
		return nil, runErr
	}

	shifted := make([]uint32, len(res.Coloring))
	for i, c := range res.Coloring {
		shifted[i] = c + base
	}
	if err := reduced.Scatter(shifted, merged); err != nil {
		return nil, err
	}

	before := CountConflicts(g, coloring)
	after := CountConflicts(g, merged)
	if after > before {
		return &RefineResult{
			Coloring:  append([]uint32(nil), coloring...),
			Conflicts: before,
			NumColors: base,
			Discarded: true,
			Reduced:   res,
		}, runErr
	}

	return &RefineResult{
		Coloring:  merged,
		Conflicts: after,
		NumColors: base + params.NumColors,
		Recolored: len(unlabelled),
		Reduced:   res,
	}, runErr
}
