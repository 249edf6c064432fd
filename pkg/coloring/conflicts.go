package coloring

import (
	"context"
	"math"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/parallel"
)

// Evaluator counts conflicting edges of a coloring with a two-phase reduction:
// every block of edges is mapped to 0/1 and tree-reduced in place, then the
// per-block partial sums are tree-reduced once more.
type Evaluator struct {
	dev      *graph.Device
	flags    []uint64
	partials []uint64
}

// NewEvaluator allocates the reduction buffers for dev.
func NewEvaluator(dev *graph.Device) *Evaluator {
	edges := dev.ConflictEdges()
	return &Evaluator{
		dev:      dev,
		flags:    make([]uint64, edges),
		partials: make([]uint64, parallel.Blocks(edges, dev.ChunkSize)),
	}
}

// Count returns the number of edges whose endpoints share a color.
func (e *Evaluator) Count(ctx context.Context, coloring []uint32) (uint64, error) {
	src, dst := e.dev.EdgeSrc, e.dev.EdgeDst
	err := parallel.For(ctx, len(src), e.dev.ChunkSize, e.dev.Workers, func(block, start, end int) error {
		flags := e.flags[start:end]
		for k := range flags {
			if coloring[src[start+k]] == coloring[dst[start+k]] {
				flags[k] = 1
			} else {
				flags[k] = 0
			}
		}
		e.partials[block] = treeReduce(flags)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return treeReduce(e.partials), nil
}

// CountConflicts is the serial reference count over the symmetric adjacency,
// each undirected edge counted once.
func CountConflicts(g *graph.CompactGraph, coloring []uint32) uint64 {
	var count uint64
	for u := uint32(0); u < g.NodeCount; u++ {
		for _, v := range g.Neighbors(u) {
			if u < v && coloring[u] == coloring[v] {
				count++
			}
		}
	}
	return count
}

// treeReduce sums xs with a balanced binary tree, overwriting xs. Depth is
// ceil(log2(len(xs))).
func treeReduce[T uint64 | float64](xs []T) T {
	n := len(xs)
	if n == 0 {
		return 0
	}
	for stride := 1; stride < n; stride *= 2 {
		for i := 0; i+stride < n; i += 2 * stride {
			xs[i] += xs[i+stride]
		}
	}
	return xs[0]
}

// logSummer adds up the logs of per-node probabilities with the same
// two-phase reduction as the conflict count.
type logSummer struct {
	dev      *graph.Device
	terms    []float64
	partials []float64
}

func newLogSummer(dev *graph.Device) *logSummer {
	n := int(dev.NodeCount())
	return &logSummer{
		dev:      dev,
		terms:    make([]float64, n),
		partials: make([]float64, parallel.Blocks(n, dev.ChunkSize)),
	}
}

func (l *logSummer) Sum(ctx context.Context, probs []float64) (float64, error) {
	err := parallel.For(ctx, len(probs), l.dev.ChunkSize, l.dev.Workers, func(block, start, end int) error {
		terms := l.terms[start:end]
		for k := range terms {
			terms[k] = math.Log(probs[start+k])
		}
		l.partials[block] = treeReduce(terms)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return treeReduce(l.partials), nil
}
