package graph

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"
)

// Stats holds degree and connectivity statistics of a graph.
type Stats struct {
	MaxDegree    uint32  `json:"max_degree"`
	MinDegree    uint32  `json:"min_degree"`
	MeanDegree   float64 `json:"mean_degree"`
	DegreeStdDev float64 `json:"degree_std_dev"`
	Density      float64 `json:"density"`
	Connected    bool    `json:"connected"`
	Components   int     `json:"components"`
}

// ComputeStats derives degree statistics, density and connectivity.
func ComputeStats(g *CompactGraph) Stats {
	n := g.NodeCount
	if n == 0 {
		return Stats{Connected: true}
	}

	degrees := make([]float64, n)
	s := Stats{MinDegree: g.Degree(0)}
	for i := uint32(0); i < n; i++ {
		d := g.Degree(i)
		degrees[i] = float64(d)
		if d > s.MaxDegree {
			s.MaxDegree = d
		}
		if d < s.MinDegree {
			s.MinDegree = d
		}
	}
	s.MeanDegree, s.DegreeStdDev = stat.MeanStdDev(degrees, nil)
	if n == 1 {
		s.DegreeStdDev = 0
	}

	if n > 1 {
		// EdgeCount counts both directions, so it is already 2|E|.
		s.Density = float64(g.EdgeCount) / (float64(n) * float64(n-1))
	}

	s.Components = countComponents(g)
	s.Connected = s.Components == 1
	return s
}

func countComponents(g *CompactGraph) int {
	ug := simple.NewUndirectedGraph()
	for i := uint32(0); i < g.NodeCount; i++ {
		ug.AddNode(simple.Node(int64(i)))
	}
	for u := uint32(0); u < g.NodeCount; u++ {
		for _, v := range g.Neighbors(u) {
			if u < v {
				ug.SetEdge(simple.Edge{F: simple.Node(int64(u)), T: simple.Node(int64(v))})
			}
		}
	}
	return len(topo.ConnectedComponents(ug))
}
