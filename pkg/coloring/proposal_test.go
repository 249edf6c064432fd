package coloring

import (
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
)

func TestNewStrategy(t *testing.T) {
	tests := []struct {
		name      string
		partition float64
		want      string
		wantErr   bool
	}{
		{name: StrategyStandard, partition: 0.5, want: StrategyStandard},
		{name: StrategyDecreaseLine, partition: 0.5, want: StrategyDecreaseLine},
		{name: StrategyBalanceOnNode, partition: 0.5, want: StrategyBalanceOnNode},
		{name: "", partition: 0.5, want: StrategyDecreaseLine},
		{name: StrategyBalanceOnNode, partition: 0, wantErr: true},
		{name: StrategyBalanceOnNode, partition: 1.5, wantErr: true},
		{name: "simulated-annealing", wantErr: true},
	}

	for _, tt := range tests {
		s, err := NewStrategy(tt.name, tt.partition)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrConfiguration, "strategy %q partition %g", tt.name, tt.partition)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Name())
	}
}

func TestStrategyWeightsSumToOne(t *testing.T) {
	const k = 8
	p := testParams(k)
	dist := NewDistribution(p, zerolog.Nop())
	rng := rand.New(rand.NewPCG(11, 11))

	for _, name := range Strategies {
		s, err := NewStrategy(name, 0.5)
		require.NoError(t, err)

		for trial := 0; trial < 200; trial++ {
			counts := make([]uint32, k)
			occupied := 0
			for c := range counts {
				if rng.IntN(3) == 0 && occupied < k-1 {
					counts[c] = 1 + rng.Uint32N(4)
					occupied++
				}
			}
			w := make([]float64, k)
			s.Weights(counts, occupied, dist, p.Epsilon, w)

			require.InDelta(t, 1.0, floats.Sum(w), 1e-9, "%s counts %v", name, counts)
			for c, x := range w {
				require.Positive(t, x, "%s color %d", name, c)
				if counts[c] > 0 {
					require.LessOrEqual(t, x, p.Epsilon+1e-15, "%s occupied color %d", name, c)
				}
			}
		}
	}
}

func TestStandardWeights(t *testing.T) {
	s, _ := NewStrategy(StrategyStandard, 0.5)
	w := make([]float64, 4)
	s.Weights([]uint32{3, 0, 1, 0}, 2, nil, 0.01, w)

	assert.InDelta(t, 0.01, w[0], 1e-12)
	assert.InDelta(t, 0.01, w[2], 1e-12)
	assert.InDelta(t, 0.49, w[1], 1e-12)
	assert.InDelta(t, 0.49, w[3], 1e-12)
}

func TestDecreaseLineWeights(t *testing.T) {
	p := testParams(4)
	dist := NewDistribution(p, zerolog.Nop())
	s, _ := NewStrategy(StrategyDecreaseLine, 0.5)
	w := make([]float64, 4)
	s.Weights([]uint32{1, 0, 0, 2}, 2, dist, p.Epsilon, w)

	probs := dist.Probs()
	free := (1 - 2*p.Epsilon) / (probs[1] + probs[2])
	assert.InDelta(t, probs[1]*free, w[1], 1e-12)
	assert.InDelta(t, probs[2]*free, w[2], 1e-12)
	assert.Greater(t, w[1], w[2], "lower free colors are preferred")
}

func TestBalanceOnNodeWeights(t *testing.T) {
	s, _ := NewStrategy(StrategyBalanceOnNode, 0.5)
	w := make([]float64, 4)
	const eps = 0.01
	s.Weights([]uint32{2, 0, 0, 1}, 2, nil, eps, w)

	// Partition 0.5 of 4 colors: color 1 is below the cut, color 2 is not.
	scale := (1 - eps/2 - eps) / 3
	assert.InDelta(t, eps/2, w[0], 1e-12)
	assert.InDelta(t, eps, w[3], 1e-12)
	assert.InDelta(t, 2*scale, w[1], 1e-12)
	assert.InDelta(t, scale, w[2], 1e-12)
}

func newTestProposer(t *testing.T, h *graph.Host, p Params) *proposer {
	t.Helper()
	s, err := NewStrategy(p.Strategy, p.BalancePartition)
	require.NoError(t, err)
	return &proposer{
		g:        h.Graph(),
		dist:     NewDistribution(p, zerolog.Nop()),
		strategy: s,
		epsilon:  p.Epsilon,
		k:        int(p.NumColors),
	}
}

func TestProposalConflictFreeNodeKeepsColor(t *testing.T) {
	p := testParams(4)
	prop := newTestProposer(t, cycle(t, 4), p)
	s := prop.newScratch()

	coloring := []uint32{0, 1, 0, 1}
	prop.weights(1, coloring, s)

	assert.InDelta(t, 1-3*p.Epsilon, s.w[1], 1e-12)
	for _, c := range []int{0, 2, 3} {
		assert.InDelta(t, p.Epsilon, s.w[c], 1e-12)
	}
}

func TestProposalAllColorsOccupiedUsesDistribution(t *testing.T) {
	p := testParams(3)
	prop := newTestProposer(t, complete(t, 4), p)
	s := prop.newScratch()

	// Node 0 sees colors 0, 1 and 2 and clashes with node 3.
	coloring := []uint32{2, 0, 1, 2}
	prop.weights(0, coloring, s)
	assert.Equal(t, prop.dist.Probs(), s.w)
}

func TestProposalReverseMatchesForward(t *testing.T) {
	p := testParams(5)
	h := random(t, 40, 0.2, 5)
	prop := newTestProposer(t, h, p)
	s := prop.newScratch()
	rng := rand.New(rand.NewPCG(1, 2))

	coloring := make([]uint32, 40)
	for i := range coloring {
		coloring[i] = rng.Uint32N(5)
	}
	for i := uint32(0); i < 40; i++ {
		c, prob := prop.propose(i, coloring, rng, s)
		require.Less(t, c, uint32(5))
		require.InDelta(t, prob, prop.reverse(i, coloring, c, s), 1e-15)
	}
}
