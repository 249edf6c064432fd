package coloring

import "math/rand/v2"

// Streams is the pool of independent random streams of a run: one per node,
// owned exclusively by that node, plus one for the acceptance decision.
type Streams struct {
	seed   uint64
	nodes  []*rand.Rand
	decide *rand.Rand
}

// NewStreams seeds n node streams and the decision stream from seed.
func NewStreams(seed uint64, n uint32) *Streams {
	s := &Streams{seed: seed, nodes: make([]*rand.Rand, n)}
	s.Reset()
	return s
}

// Reset reseeds every stream, so a run restarted with the same seed replays
// the same draws.
func (s *Streams) Reset() {
	for i := range s.nodes {
		s.nodes[i] = rand.New(rand.NewPCG(s.seed, uint64(i)+1))
	}
	s.decide = rand.New(rand.NewPCG(s.seed, 0))
}

// Node returns the stream owned by node i.
func (s *Streams) Node(i uint32) *rand.Rand { return s.nodes[i] }

// Decide returns the stream used by the acceptance step.
func (s *Streams) Decide() *rand.Rand { return s.decide }
