package coloring

import (
	"math"
	"math/rand/v2"
)

// LogAcceptance returns log(alpha) of the Metropolis step:
//
//	alpha = exp(logPCandidate - logPCurrent) * exp(-beta * (candidateConflicts - currentConflicts))
//
// The penalty factor is strictly decreasing in the candidate's conflict count.
func LogAcceptance(logPCandidate, logPCurrent float64, candidateConflicts, currentConflicts uint64, beta float64) float64 {
	delta := float64(candidateConflicts) - float64(currentConflicts)
	return (logPCandidate - logPCurrent) - beta*delta
}

// AcceptanceProbability returns min(1, alpha).
func AcceptanceProbability(logPCandidate, logPCurrent float64, candidateConflicts, currentConflicts uint64, beta float64) float64 {
	la := LogAcceptance(logPCandidate, logPCurrent, candidateConflicts, currentConflicts, beta)
	if la >= 0 {
		return 1
	}
	return math.Exp(la)
}

// decide accepts with probability min(1, exp(logAlpha)). Comparing in the log
// domain keeps very negative ratios from underflowing.
func decide(logAlpha float64, rng *rand.Rand) bool {
	if logAlpha >= 0 {
		return true
	}
	if math.IsNaN(logAlpha) {
		return false
	}
	return math.Log(rng.Float64()) < logAlpha
}
