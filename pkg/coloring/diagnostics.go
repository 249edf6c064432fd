package coloring

import (
	"gonum.org/v1/gonum/stat"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
)

// FreeColorStats summarizes, over all nodes, how many palette colors are not
// held by any neighbor.
type FreeColorStats struct {
	Max uint32  `json:"max"`
	Min uint32  `json:"min"`
	Avg float64 `json:"avg"`
}

// Diagnostics is a point-in-time snapshot of a coloring. It plays no part in
// the control loop.
type Diagnostics struct {
	FreeColors FreeColorStats `json:"free_colors"`
	ColorsUsed int            `json:"colors_used"`
	Graph      graph.Stats    `json:"graph"`
}

// Diagnose collects every diagnostic of coloring on g.
func Diagnose(g *graph.CompactGraph, coloring []uint32, numColors uint32) Diagnostics {
	return Diagnostics{
		FreeColors: ComputeFreeColorStats(g, coloring, numColors),
		ColorsUsed: ColorsUsed(coloring),
		Graph:      graph.ComputeStats(g),
	}
}

// ComputeFreeColorStats counts, per node, the colors of the palette unused by
// its neighbors.
func ComputeFreeColorStats(g *graph.CompactGraph, coloring []uint32, numColors uint32) FreeColorStats {
	if g.NodeCount == 0 {
		return FreeColorStats{}
	}

	seen := make([]int, numColors)
	free := make([]float64, g.NodeCount)
	out := FreeColorStats{Min: numColors}
	for i := uint32(0); i < g.NodeCount; i++ {
		stamp := int(i) + 1
		occupied := uint32(0)
		for _, nb := range g.Neighbors(i) {
			c := coloring[nb]
			if c < numColors && seen[c] != stamp {
				seen[c] = stamp
				occupied++
			}
		}
		f := numColors - occupied
		free[i] = float64(f)
		if f > out.Max {
			out.Max = f
		}
		if f < out.Min {
			out.Min = f
		}
	}
	out.Avg = stat.Mean(free, nil)
	return out
}

// ColorsUsed returns the number of distinct colors in coloring.
func ColorsUsed(coloring []uint32) int {
	used := make(map[uint32]struct{})
	for _, c := range coloring {
		used[c] = struct{}{}
	}
	return len(used)
}
