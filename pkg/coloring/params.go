package coloring

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfiguration marks invalid engine parameters. It is returned before any
// state is initialized.
var ErrConfiguration = errors.New("configuration error")

// InitMode selects how the initial coloring is drawn.
type InitMode string

const (
	// InitUniform draws every node's color uniformly from the palette.
	InitUniform InitMode = "uniform"
	// InitDistribution draws every node's color from the iteration-0 ColorDistribution.
	InitDistribution InitMode = "distribution"
)

// Params configures one engine run. It is immutable once the engine is built.
type Params struct {
	NumColors uint32 `json:"num_colors"`

	// lambda(t) = min(Lambda * (1 + LambdaGrowth*t), LambdaMax); LambdaMax <= 0 disables the cap.
	Lambda       float64 `json:"lambda"`
	LambdaGrowth float64 `json:"lambda_growth"`
	LambdaMax    float64 `json:"lambda_max"`

	// Epsilon is the probability floor of every color.
	Epsilon float64 `json:"epsilon"`

	// ConflictPenalty is beta in penaltyRatio = exp(-beta * (candidate - current conflicts)).
	ConflictPenalty float64 `json:"conflict_penalty"`

	MaxIterations int `json:"max_iterations"`
	// Patience stops the run after this many iterations without a new best; 0 disables.
	Patience int `json:"patience"`

	Strategy         string   `json:"strategy"`
	InitMode         InitMode `json:"init_mode"`
	BalancePartition float64  `json:"balance_partition"`

	Seed uint64 `json:"seed"`

	// ProgressEvery logs a progress line every N iterations; 0 disables.
	ProgressEvery int `json:"progress_every"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		NumColors:        32,
		Lambda:           0.1,
		LambdaGrowth:     0.01,
		LambdaMax:        2.0,
		Epsilon:          1e-3,
		ConflictPenalty:  2.0,
		MaxIterations:    1000,
		Patience:         0,
		Strategy:         StrategyDecreaseLine,
		InitMode:         InitDistribution,
		BalancePartition: 0.5,
		Seed:             1,
		ProgressEvery:    100,
	}
}

// Validate reports the first invalid field, wrapped in ErrConfiguration.
func (p Params) Validate() error {
	if p.NumColors == 0 {
		return fmt.Errorf("%w: number of colors must be positive", ErrConfiguration)
	}
	if p.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations must be positive, got %d", ErrConfiguration, p.MaxIterations)
	}
	if !(p.Epsilon > 0) || math.IsInf(p.Epsilon, 0) {
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrConfiguration, p.Epsilon)
	}
	if float64(p.NumColors-1)*p.Epsilon >= 1 {
		return fmt.Errorf("%w: epsilon %g too large for %d colors", ErrConfiguration, p.Epsilon, p.NumColors)
	}
	if p.Lambda < 0 || p.LambdaGrowth < 0 || math.IsNaN(p.Lambda) || math.IsNaN(p.LambdaGrowth) {
		return fmt.Errorf("%w: lambda schedule must be non-negative", ErrConfiguration)
	}
	// beta == 0 would make acceptance blind to conflicts.
	if !(p.ConflictPenalty > 0) || math.IsInf(p.ConflictPenalty, 0) {
		return fmt.Errorf("%w: conflict penalty must be positive, got %g", ErrConfiguration, p.ConflictPenalty)
	}
	if p.Patience < 0 {
		return fmt.Errorf("%w: patience must be non-negative, got %d", ErrConfiguration, p.Patience)
	}
	if _, err := NewStrategy(p.Strategy, p.BalancePartition); err != nil {
		return err
	}
	switch p.InitMode {
	case InitUniform, InitDistribution:
	default:
		return fmt.Errorf("%w: unknown init mode %q", ErrConfiguration, p.InitMode)
	}
	return nil
}
