package coloring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
)

func cycle(t *testing.T, n uint32) *graph.Host {
	t.Helper()
	edges := make([]graph.Edge, 0, n)
	for i := uint32(0); i < n; i++ {
		edges = append(edges, graph.Edge{U: i, V: (i + 1) % n})
	}
	h, err := graph.NewFromEdges(n, edges)
	require.NoError(t, err)
	return h
}

func complete(t *testing.T, n uint32) *graph.Host {
	t.Helper()
	var edges []graph.Edge
	for u := uint32(0); u < n; u++ {
		for v := u + 1; v < n; v++ {
			edges = append(edges, graph.Edge{U: u, V: v})
		}
	}
	h, err := graph.NewFromEdges(n, edges)
	require.NoError(t, err)
	return h
}

func random(t *testing.T, n uint32, p float32, seed uint64) *graph.Host {
	t.Helper()
	h, err := graph.NewRandom(n, p, seed)
	require.NoError(t, err)
	return h
}

func device(h *graph.Host) *graph.Device {
	return h.ToDevice(graph.DeviceOptions{Workers: 4, ChunkSize: 16})
}

// testParams are small, fast parameters with a visible epsilon.
func testParams(k uint32) Params {
	p := DefaultParams()
	p.NumColors = k
	p.Epsilon = 0.01
	p.MaxIterations = 200
	p.ProgressEvery = 0
	return p
}

func requireProper(t *testing.T, g *graph.CompactGraph, coloring []uint32) {
	t.Helper()
	for u := uint32(0); u < g.NodeCount; u++ {
		for _, v := range g.Neighbors(u) {
			require.NotEqual(t, coloring[u], coloring[v], "edge %d-%d", u, v)
		}
	}
}
