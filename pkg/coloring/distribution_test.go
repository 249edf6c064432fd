package coloring

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestLambdaSchedule(t *testing.T) {
	p := DefaultParams()
	d := NewDistribution(p, zerolog.Nop())

	assert.InDelta(t, 0.1, d.LambdaAt(0), 1e-12)
	assert.InDelta(t, 0.2, d.LambdaAt(100), 1e-12)
	assert.InDelta(t, 2.0, d.LambdaAt(1_000_000), 1e-12)

	p.LambdaMax = 0
	uncapped := NewDistribution(p, zerolog.Nop())
	assert.InDelta(t, 10.1, uncapped.LambdaAt(10_000), 1e-9)
}

func TestDistributionShape(t *testing.T) {
	p := DefaultParams()
	p.NumColors = 16
	d := NewDistribution(p, zerolog.Nop())

	prevHead := 0.0
	for _, it := range []int{0, 10, 100, 500, 5000} {
		d.Advance(it)
		probs := d.Probs()

		require.InDelta(t, 1.0, floats.Sum(probs), 1e-9, "iteration %d", it)
		for c := 1; c < len(probs); c++ {
			require.GreaterOrEqual(t, probs[c-1], probs[c], "iteration %d color %d", it, c)
		}
		for c, pc := range probs {
			require.Positive(t, pc)
			require.InDelta(t, math.Log(pc), d.LogProbability(uint32(c)), 1e-12)
		}
		// Color 0 only gains mass as lambda grows.
		require.GreaterOrEqual(t, probs[0], prevHead)
		prevHead = probs[0]
	}
	assert.Equal(t, 5000, d.Iteration())
	assert.InDelta(t, 2.0, d.Lambda(), 1e-12)
}

func TestDistributionFloor(t *testing.T) {
	p := DefaultParams()
	p.NumColors = 32
	p.Lambda = 5
	p.LambdaMax = 0
	p.Epsilon = 1e-3
	d := NewDistribution(p, zerolog.Nop())

	// exp(-5c) underflows the floor for every c >= 2; the tail stays flat.
	probs := d.Probs()
	for c := 3; c < len(probs); c++ {
		assert.InDelta(t, probs[2], probs[c], 1e-15)
	}
	assert.Greater(t, probs[2], 0.0)
	assert.InDelta(t, 1.0, floats.Sum(probs), 1e-9)
}

func TestDistributionDegenerate(t *testing.T) {
	p := DefaultParams()
	p.NumColors = 4
	p.Lambda = 0
	p.Epsilon = 0.25
	d := NewDistribution(p, zerolog.Nop())

	for c := uint32(0); c < 4; c++ {
		assert.InDelta(t, 0.25, d.Probability(c), 1e-12)
	}
}

func TestDistributionSample(t *testing.T) {
	p := DefaultParams()
	p.NumColors = 4
	p.Lambda = 1
	p.LambdaGrowth = 0
	d := NewDistribution(p, zerolog.Nop())
	rng := rand.New(rand.NewPCG(7, 7))

	const draws = 20000
	counts := make([]int, 4)
	for i := 0; i < draws; i++ {
		c, prob := d.Sample(rng, nil)
		require.Equal(t, d.Probability(c), prob)
		counts[c]++
	}
	for c := range counts {
		assert.InDelta(t, d.Probability(uint32(c)), float64(counts[c])/draws, 0.02, "color %d", c)
	}
}

func TestDistributionSampleExcluded(t *testing.T) {
	p := DefaultParams()
	p.NumColors = 4
	d := NewDistribution(p, zerolog.Nop())
	rng := rand.New(rand.NewPCG(3, 3))

	only3 := []bool{true, true, true, false}
	for i := 0; i < 100; i++ {
		c, prob := d.Sample(rng, only3)
		require.Equal(t, uint32(3), c)
		require.InDelta(t, 1.0, prob, 1e-12)
	}

	// Excluding 0 and 1 renormalizes over {2, 3}.
	c, prob := d.Sample(rng, []bool{true, true, false, false})
	require.Contains(t, []uint32{2, 3}, c)
	want := d.Probability(c) / (d.Probability(2) + d.Probability(3))
	assert.InDelta(t, want, prob, 1e-12)

	// Excluding everything falls back to the full distribution.
	c, prob = d.Sample(rng, []bool{true, true, true, true})
	assert.Less(t, c, uint32(4))
	assert.Equal(t, d.Probability(c), prob)
}
