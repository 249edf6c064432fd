package coloring

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
)

// Proposal strategy names.
const (
	StrategyStandard      = "standard"
	StrategyBalanceOnNode = "balance-on-node"
	StrategyDecreaseLine  = "decrease-line"
)

// Strategies lists every registered proposal strategy.
var Strategies = []string{StrategyStandard, StrategyBalanceOnNode, StrategyDecreaseLine}

// ProposalStrategy spreads the proposal mass of a conflicted node over the
// palette. counts[c] is the number of neighbors holding color c and occupied
// the number of colors with a non-zero count; occupied is always smaller than
// the palette size. Implementations must fill w with positive values summing
// to one.
type ProposalStrategy interface {
	Name() string
	Weights(counts []uint32, occupied int, dist *Distribution, epsilon float64, w []float64)
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string, partition float64) (ProposalStrategy, error) {
	switch name {
	case StrategyStandard:
		return standardStrategy{}, nil
	case StrategyDecreaseLine, "":
		return decreaseLineStrategy{}, nil
	case StrategyBalanceOnNode:
		if !(partition > 0 && partition <= 1) {
			return nil, fmt.Errorf("%w: balance partition must be in (0, 1], got %g", ErrConfiguration, partition)
		}
		return balanceOnNodeStrategy{partition: partition}, nil
	default:
		return nil, fmt.Errorf("%w: unknown proposal strategy %q", ErrConfiguration, name)
	}
}

// standardStrategy gives every occupied color epsilon and splits the rest
// evenly over the free colors.
type standardStrategy struct{}

func (standardStrategy) Name() string { return StrategyStandard }

func (standardStrategy) Weights(counts []uint32, occupied int, _ *Distribution, eps float64, w []float64) {
	share := (1 - eps*float64(occupied)) / float64(len(counts)-occupied)
	for c, n := range counts {
		if n > 0 {
			w[c] = eps
		} else {
			w[c] = share
		}
	}
}

// decreaseLineStrategy gives every occupied color epsilon and splits the rest
// over the free colors in proportion to the color distribution, so low
// indices are preferred more and more as lambda grows.
type decreaseLineStrategy struct{}

func (decreaseLineStrategy) Name() string { return StrategyDecreaseLine }

func (decreaseLineStrategy) Weights(counts []uint32, occupied int, dist *Distribution, eps float64, w []float64) {
	probs := dist.Probs()
	freeMass := 0.0
	for c, n := range counts {
		if n == 0 {
			freeMass += probs[c]
		}
	}
	scale := (1 - eps*float64(occupied)) / freeMass
	for c, n := range counts {
		if n > 0 {
			w[c] = eps
		} else {
			w[c] = probs[c] * scale
		}
	}
}

// balanceOnNodeStrategy scales the epsilon of an occupied color down by the
// number of neighbors holding it, and favors free colors below the partition
// index two to one.
type balanceOnNodeStrategy struct {
	partition float64
}

func (balanceOnNodeStrategy) Name() string { return StrategyBalanceOnNode }

func (s balanceOnNodeStrategy) Weights(counts []uint32, _ int, _ *Distribution, eps float64, w []float64) {
	cut := int(math.Ceil(s.partition * float64(len(counts))))
	occMass, freeUnits := 0.0, 0.0
	for c, n := range counts {
		switch {
		case n > 0:
			w[c] = eps / float64(n)
			occMass += w[c]
		case c < cut:
			w[c] = 2
			freeUnits += 2
		default:
			w[c] = 1
			freeUnits++
		}
	}
	scale := (1 - occMass) / freeUnits
	for c, n := range counts {
		if n == 0 {
			w[c] *= scale
		}
	}
}

// proposer evaluates the per-node proposal distribution. It is shared by the
// forward proposal and the reverse probability of the current color.
type proposer struct {
	g        *graph.CompactGraph
	dist     *Distribution
	strategy ProposalStrategy
	epsilon  float64
	k        int
}

// scratch is the per-block working memory of a proposal phase.
type scratch struct {
	counts []uint32
	w      []float64
}

func (p *proposer) newScratch() *scratch {
	return &scratch{counts: make([]uint32, p.k), w: make([]float64, p.k)}
}

// weights fills s.w with the probabilities node i would propose each color
// with, if the chain were in state coloring.
func (p *proposer) weights(i uint32, coloring []uint32, s *scratch) {
	for c := range s.counts {
		s.counts[c] = 0
	}
	occupied := 0
	for _, nb := range p.g.Neighbors(i) {
		c := coloring[nb]
		if s.counts[c] == 0 {
			occupied++
		}
		s.counts[c]++
	}

	own := coloring[i]
	if s.counts[own] == 0 {
		// Conflict-free: keep the color, every other color gets epsilon.
		for c := range s.w {
			s.w[c] = p.epsilon
		}
		s.w[own] = 1 - float64(p.k-1)*p.epsilon
		return
	}

	if occupied == p.k {
		copy(s.w, p.dist.Probs())
		return
	}
	p.strategy.Weights(s.counts, occupied, p.dist, p.epsilon, s.w)
}

// propose draws a candidate color for node i from state coloring.
func (p *proposer) propose(i uint32, coloring []uint32, rng *rand.Rand, s *scratch) (uint32, float64) {
	p.weights(i, coloring, s)
	return sampleWeights(s.w, rng)
}

// reverse returns the probability that node i, in state coloring, proposes
// color target.
func (p *proposer) reverse(i uint32, coloring []uint32, target uint32, s *scratch) float64 {
	p.weights(i, coloring, s)
	return s.w[target]
}

func sampleWeights(w []float64, rng *rand.Rand) (uint32, float64) {
	u := rng.Float64()
	acc := 0.0
	for c, x := range w {
		acc += x
		if u < acc {
			return uint32(c), x
		}
	}
	// Rounding left u above the running sum; take the last non-zero color.
	for c := len(w) - 1; c >= 0; c-- {
		if w[c] > 0 {
			return uint32(c), w[c]
		}
	}
	return 0, w[0]
}
