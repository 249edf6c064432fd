package coloring

import (
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// Distribution is the decaying probability mass over the palette:
// weight(c, t) = exp(-lambda(t) * c), normalized, floored at epsilon.
// It is non-increasing in the color index for every t.
type Distribution struct {
	numColors int
	lambda0   float64
	growth    float64
	lambdaMax float64
	epsilon   float64

	iteration int
	lambda    float64
	probs     []float64
	logProbs  []float64
	cum       []float64

	logger zerolog.Logger
}

// NewDistribution builds the distribution for iteration 0.
func NewDistribution(p Params, logger zerolog.Logger) *Distribution {
	k := int(p.NumColors)
	d := &Distribution{
		numColors: k,
		lambda0:   p.Lambda,
		growth:    p.LambdaGrowth,
		lambdaMax: p.LambdaMax,
		epsilon:   p.Epsilon,
		probs:     make([]float64, k),
		logProbs:  make([]float64, k),
		cum:       make([]float64, k),
		logger:    logger,
	}
	d.Advance(0)
	return d
}

// LambdaAt returns the decay rate of iteration t.
func (d *Distribution) LambdaAt(t int) float64 {
	l := d.lambda0 * (1 + d.growth*float64(t))
	if d.lambdaMax > 0 && l > d.lambdaMax {
		l = d.lambdaMax
	}
	return l
}

// Advance recomputes the distribution for iteration t. Recomputing is skipped
// once lambda stops changing.
func (d *Distribution) Advance(t int) {
	lambda := d.LambdaAt(t)
	if t != 0 && lambda == d.lambda {
		d.iteration = t
		return
	}
	d.iteration = t
	d.lambda = lambda

	for c := range d.logProbs {
		d.logProbs[c] = -lambda * float64(c)
	}
	lse := floats.LogSumExp(d.logProbs)

	floored := 0
	for c := range d.probs {
		p := math.Exp(d.logProbs[c] - lse)
		if !(p > d.epsilon) {
			p = d.epsilon
			floored++
		}
		d.probs[c] = p
	}

	if floored == d.numColors {
		// Everything sits on the floor: renormalizing the floor is uniform.
		d.logger.Debug().
			Int("iteration", t).
			Float64("lambda", lambda).
			Float64("epsilon", d.epsilon).
			Msg("Color distribution degenerate, falling back to uniform")
		for c := range d.probs {
			d.probs[c] = 1 / float64(d.numColors)
		}
	} else {
		floats.Scale(1/floats.Sum(d.probs), d.probs)
	}

	for c, p := range d.probs {
		d.logProbs[c] = math.Log(p)
	}
	floats.CumSum(d.cum, d.probs)
}

// Iteration returns the iteration the distribution was last advanced to.
func (d *Distribution) Iteration() int { return d.iteration }

// Lambda returns the current decay rate.
func (d *Distribution) Lambda() float64 { return d.lambda }

// NumColors returns the palette size.
func (d *Distribution) NumColors() int { return d.numColors }

// Probability returns the probability of color c.
func (d *Distribution) Probability(c uint32) float64 { return d.probs[c] }

// LogProbability returns the natural log of the probability of color c.
func (d *Distribution) LogProbability(c uint32) float64 { return d.logProbs[c] }

// Probs exposes the normalized probabilities. The slice must not be modified.
func (d *Distribution) Probs() []float64 { return d.probs }

// Sample draws a color from the distribution restricted to colors whose
// excluded entry is false, renormalized. If excluded is nil or excludes every
// color the full distribution is used. The returned probability is the one
// the draw was made with.
func (d *Distribution) Sample(rng *rand.Rand, excluded []bool) (uint32, float64) {
	if excluded != nil {
		total := 0.0
		last := -1
		for c, p := range d.probs {
			if !excluded[c] {
				total += p
				last = c
			}
		}
		if last >= 0 {
			u := rng.Float64() * total
			acc := 0.0
			for c, p := range d.probs {
				if excluded[c] {
					continue
				}
				acc += p
				if u < acc {
					return uint32(c), p / total
				}
			}
			return uint32(last), d.probs[last] / total
		}
	}

	u := rng.Float64() * d.cum[d.numColors-1]
	for c, acc := range d.cum {
		if u < acc {
			return uint32(c), d.probs[c]
		}
	}
	return uint32(d.numColors - 1), d.probs[d.numColors-1]
}
