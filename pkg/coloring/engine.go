package coloring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/parallel"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/utils"
)

// State is the position of the engine in its state machine.
type State string

const (
	StateNew       State = "new"
	StateInit      State = "init"
	StatePropose   State = "propose"
	StateEvaluate  State = "evaluate"
	StateDecide    State = "decide"
	StateConverged State = "converged"
	StateExhausted State = "exhausted"
)

// Reason is why a run stopped.
type Reason string

const (
	ReasonConverged  Reason = "converged"
	ReasonExhausted  Reason = "exhausted"
	ReasonEmptyGraph Reason = "empty-graph"
	ReasonStalled    Reason = "stalled"
	ReasonCancelled  Reason = "cancelled"
)

// Result is what a run reports on exit.
type Result struct {
	Coloring    []uint32      `json:"coloring"`
	Conflicts   uint64        `json:"conflicts"`
	Iterations  int           `json:"iterations"`
	Reason      Reason        `json:"reason"`
	NumColors   uint32        `json:"num_colors"`
	Statistics  RunStatistics `json:"statistics"`
	Diagnostics *Diagnostics  `json:"diagnostics,omitempty"`
}

// RunStatistics contains per-run counters.
type RunStatistics struct {
	InitialConflicts uint64 `json:"initial_conflicts"`
	FinalConflicts   uint64 `json:"final_conflicts"` // of the current buffer, which may be worse than the best
	Accepted         int    `json:"accepted"`
	Rejected         int    `json:"rejected"`
	BestIteration    int    `json:"best_iteration"`
	RuntimeMS        int64  `json:"runtime_ms"`
}

// StepOutcome describes one PROPOSE/EVALUATE/DECIDE round.
type StepOutcome struct {
	Iteration          int
	CandidateConflicts uint64
	Conflicts          uint64 // after the decision
	LogPCandidate      float64
	LogPCurrent        float64
	Accepted           bool
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics makes the engine report to m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracker makes the engine append every iteration to t.
func WithTracker(t *utils.IterationTracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// ProgressFunc receives the iteration count and the current and best conflict
// counts at every progress tick.
type ProgressFunc func(iteration int, conflicts, best uint64)

// WithProgress calls fn every Params.ProgressEvery iterations.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithDiagnostics attaches free-color and color-usage statistics to the result.
func WithDiagnostics() Option {
	return func(e *Engine) { e.diagnostics = true }
}

// Engine runs the MCMC coloring chain on a device-resident graph. The graph is
// never modified. An Engine is not safe for concurrent use; every phase it
// runs is internally parallel.
type Engine struct {
	dev    *graph.Device
	g      *graph.CompactGraph
	params Params

	dist    *Distribution
	prop    *proposer
	streams *Streams
	eval    *Evaluator
	logSum  *logSummer
	n       uint32

	// buffers[active] is the current coloring, buffers[1-active] the candidate.
	buffers [2][]uint32
	active  int

	currentProb   []float64 // reverse probability of each node's current color
	candidateProb []float64 // forward probability of each node's candidate color

	conflicts uint64
	state     State
	iteration int

	logger      zerolog.Logger
	metrics     *Metrics
	tracker     *utils.IterationTracker
	progress    ProgressFunc
	diagnostics bool
}

// NewEngine validates params and the graph and allocates all run state.
func NewEngine(dev *graph.Device, params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := dev.Graph().Validate(); err != nil {
		return nil, fmt.Errorf("engine refuses graph: %w", err)
	}

	e := &Engine{
		dev:    dev,
		g:      dev.Graph(),
		params: params,
		n:      dev.NodeCount(),
		state:  StateNew,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	strategy, err := NewStrategy(params.Strategy, params.BalancePartition)
	if err != nil {
		return nil, err
	}

	e.dist = NewDistribution(params, e.logger)
	e.prop = &proposer{
		g:        e.g,
		dist:     e.dist,
		strategy: strategy,
		epsilon:  params.Epsilon,
		k:        int(params.NumColors),
	}
	e.streams = NewStreams(params.Seed, e.n)
	e.eval = NewEvaluator(dev)
	e.logSum = newLogSummer(dev)
	e.buffers[0] = make([]uint32, e.n)
	e.buffers[1] = make([]uint32, e.n)
	e.currentProb = make([]float64, e.n)
	e.candidateProb = make([]float64, e.n)
	return e, nil
}

// Current returns the active coloring buffer. It is valid until the next Step.
func (e *Engine) Current() []uint32 { return e.buffers[e.active] }

// Conflicts returns the conflict count of the current coloring.
func (e *Engine) Conflicts() uint64 { return e.conflicts }

// State returns the engine state.
func (e *Engine) State() State { return e.state }

// Iteration returns the number of completed iterations.
func (e *Engine) Iteration() int { return e.iteration }

// Init draws the initial coloring from the node streams and counts its
// conflicts. Calling it again reseeds the streams, so the same seed always
// yields the same initial coloring.
func (e *Engine) Init(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	e.streams.Reset()
	e.dist.Advance(0)
	e.active = 0
	e.iteration = 0

	cur := e.buffers[e.active]
	k := e.params.NumColors
	err := parallel.For(ctx, int(e.n), e.dev.ChunkSize, e.dev.Workers, func(_, start, end int) error {
		for i := start; i < end; i++ {
			rng := e.streams.Node(uint32(i))
			if e.params.InitMode == InitUniform {
				cur[i] = rng.Uint32N(k)
			} else {
				cur[i], _ = e.dist.Sample(rng, nil)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.conflicts, err = e.eval.Count(ctx, cur)
	if err != nil {
		return err
	}
	e.state = StateInit
	return nil
}

// Step runs one PROPOSE/EVALUATE/DECIDE round. Phases run to completion even
// if ctx is cancelled meanwhile; Run checks for cancellation between rounds.
func (e *Engine) Step(ctx context.Context) (StepOutcome, error) {
	if e.state == StateNew {
		return StepOutcome{}, fmt.Errorf("step before init")
	}
	ctx = context.WithoutCancel(ctx)
	e.dist.Advance(e.iteration)

	cur := e.buffers[e.active]
	cand := e.buffers[1-e.active]

	// PROPOSE: each node writes only its own candidate slot.
	e.state = StatePropose
	err := parallel.For(ctx, int(e.n), e.dev.ChunkSize, e.dev.Workers, func(_, start, end int) error {
		s := e.prop.newScratch()
		for i := start; i < end; i++ {
			node := uint32(i)
			cand[i], e.candidateProb[i] = e.prop.propose(node, cur, e.streams.Node(node), s)
		}
		return nil
	})
	if err != nil {
		return StepOutcome{}, err
	}

	// EVALUATE: candidate conflicts and the reverse probabilities.
	e.state = StateEvaluate
	candConflicts, err := e.eval.Count(ctx, cand)
	if err != nil {
		return StepOutcome{}, err
	}
	err = parallel.For(ctx, int(e.n), e.dev.ChunkSize, e.dev.Workers, func(_, start, end int) error {
		s := e.prop.newScratch()
		for i := start; i < end; i++ {
			e.currentProb[i] = e.prop.reverse(uint32(i), cand, cur[i], s)
		}
		return nil
	})
	if err != nil {
		return StepOutcome{}, err
	}
	logPCand, err := e.logSum.Sum(ctx, e.candidateProb)
	if err != nil {
		return StepOutcome{}, err
	}
	logPCur, err := e.logSum.Sum(ctx, e.currentProb)
	if err != nil {
		return StepOutcome{}, err
	}

	// DECIDE
	e.state = StateDecide
	logAlpha := LogAcceptance(logPCand, logPCur, candConflicts, e.conflicts, e.params.ConflictPenalty)
	accepted := decide(logAlpha, e.streams.Decide())
	if accepted {
		e.active = 1 - e.active
		e.conflicts = candConflicts
	}
	e.iteration++

	out := StepOutcome{
		Iteration:          e.iteration,
		CandidateConflicts: candConflicts,
		Conflicts:          e.conflicts,
		LogPCandidate:      logPCand,
		LogPCurrent:        logPCur,
		Accepted:           accepted,
	}
	e.metrics.observeIteration(accepted, e.conflicts)
	if err := e.tracker.Log(utils.IterationEvent{
		Iteration:          out.Iteration,
		Conflicts:          out.Conflicts,
		CandidateConflicts: out.CandidateConflicts,
		LogPCandidate:      out.LogPCandidate,
		LogPCurrent:        out.LogPCurrent,
		Accepted:           out.Accepted,
		Lambda:             e.dist.Lambda(),
	}); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to write iteration trace")
	}
	return out, nil
}

// Run initializes the chain and iterates until the coloring is proper, the
// iteration budget is spent, patience runs out or ctx is cancelled. On
// cancellation the partial result is returned together with ctx.Err(). The
// returned coloring is the best one seen, never worse than the initial one.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	if e.n == 0 {
		e.state = StateConverged
		res := &Result{
			Coloring:  []uint32{},
			Reason:    ReasonEmptyGraph,
			NumColors: e.params.NumColors,
		}
		e.metrics.observeRun(res.Reason, time.Since(start))
		e.logger.Info().Str("reason", string(res.Reason)).Msg("Empty graph, nothing to color")
		return res, nil
	}

	e.logger.Info().
		Uint32("nodes", e.n).
		Int("edges", e.dev.ConflictEdges()).
		Uint32("colors", e.params.NumColors).
		Str("strategy", e.prop.strategy.Name()).
		Int("max_iterations", e.params.MaxIterations).
		Msg("Starting MCMC coloring")

	if err := e.Init(ctx); err != nil {
		return nil, fmt.Errorf("init failed: %w", err)
	}

	initial := e.conflicts
	best := append([]uint32(nil), e.Current()...)
	bestConflicts := e.conflicts
	bestIteration := 0
	stats := RunStatistics{InitialConflicts: initial}

	var reason Reason
	var runErr error
	for {
		if e.conflicts == 0 {
			reason = ReasonConverged
			break
		}
		if e.iteration >= e.params.MaxIterations {
			reason = ReasonExhausted
			break
		}
		if e.params.Patience > 0 && e.iteration-bestIteration >= e.params.Patience {
			reason = ReasonStalled
			break
		}
		if err := ctx.Err(); err != nil {
			reason = ReasonCancelled
			runErr = err
			break
		}

		out, err := e.Step(ctx)
		if err != nil {
			return nil, fmt.Errorf("iteration %d failed: %w", e.iteration, err)
		}
		if out.Accepted {
			stats.Accepted++
		} else {
			stats.Rejected++
		}

		if e.conflicts < bestConflicts {
			bestConflicts = e.conflicts
			bestIteration = e.iteration
			copy(best, e.Current())
		}

		if e.params.ProgressEvery > 0 && e.iteration%e.params.ProgressEvery == 0 {
			e.logger.Info().
				Int("iteration", e.iteration).
				Uint64("conflicts", e.conflicts).
				Uint64("best_conflicts", bestConflicts).
				Float64("lambda", e.dist.Lambda()).
				Int("accepted", stats.Accepted).
				Msg("Coloring progress")
			if e.progress != nil {
				e.progress(e.iteration, e.conflicts, bestConflicts)
			}
		}
	}

	if reason == ReasonConverged {
		e.state = StateConverged
	} else {
		e.state = StateExhausted
	}

	stats.FinalConflicts = e.conflicts
	stats.BestIteration = bestIteration
	stats.RuntimeMS = time.Since(start).Milliseconds()

	res := &Result{
		Coloring:   best,
		Conflicts:  bestConflicts,
		Iterations: e.iteration,
		Reason:     reason,
		NumColors:  e.params.NumColors,
		Statistics: stats,
	}
	if e.diagnostics {
		d := Diagnose(e.g, best, e.params.NumColors)
		res.Diagnostics = &d
	}
	e.metrics.observeRun(reason, time.Since(start))

	e.logger.Info().
		Str("reason", string(reason)).
		Int("iterations", e.iteration).
		Uint64("initial_conflicts", initial).
		Uint64("conflicts", bestConflicts).
		Int("accepted", stats.Accepted).
		Int("rejected", stats.Rejected).
		Int64("runtime_ms", stats.RuntimeMS).
		Msg("MCMC coloring completed")

	return res, runErr
}

// FreeColorStats reports free-color statistics of the current coloring.
func (e *Engine) FreeColorStats() FreeColorStats {
	return ComputeFreeColorStats(e.g, e.Current(), e.params.NumColors)
}

// ColorsUsed reports the number of distinct colors in the current coloring.
func (e *Engine) ColorsUsed() int {
	return ColorsUsed(e.Current())
}
