package coloring

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/utils"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"ZeroColors", func(p *Params) { p.NumColors = 0 }},
		{"ZeroIterations", func(p *Params) { p.MaxIterations = 0 }},
		{"ZeroEpsilon", func(p *Params) { p.Epsilon = 0 }},
		{"EpsilonTooLarge", func(p *Params) { p.NumColors = 11; p.Epsilon = 0.1 }},
		{"NegativeLambda", func(p *Params) { p.Lambda = -1 }},
		{"NegativePenalty", func(p *Params) { p.ConflictPenalty = -0.5 }},
		{"ZeroPenalty", func(p *Params) { p.ConflictPenalty = 0 }},
		{"NaNPenalty", func(p *Params) { p.ConflictPenalty = math.NaN() }},
		{"NegativePatience", func(p *Params) { p.Patience = -1 }},
		{"UnknownStrategy", func(p *Params) { p.Strategy = "greedy" }},
		{"UnknownInitMode", func(p *Params) { p.InitMode = "zeros" }},
	}

	require.NoError(t, DefaultParams().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			require.ErrorIs(t, p.Validate(), ErrConfiguration)

			_, err := NewEngine(device(cycle(t, 4)), p)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestEngineRefusesBrokenGraph(t *testing.T) {
	dev := device(cycle(t, 4))
	dev.Graph().Neighs[0] = 99

	_, err := NewEngine(dev, testParams(2))
	require.ErrorIs(t, err, graph.ErrStructural)
}

func TestStepBeforeInit(t *testing.T) {
	e, err := NewEngine(device(cycle(t, 4)), testParams(2))
	require.NoError(t, err)
	assert.Equal(t, StateNew, e.State())

	_, err = e.Step(context.Background())
	require.Error(t, err)
}

func TestInitIdempotent(t *testing.T) {
	for _, mode := range []InitMode{InitUniform, InitDistribution} {
		p := testParams(6)
		p.InitMode = mode
		h := random(t, 400, 0.02, 3)

		e, err := NewEngine(device(h), p)
		require.NoError(t, err)
		ctx := context.Background()

		require.NoError(t, e.Init(ctx))
		first := append([]uint32(nil), e.Current()...)
		firstConflicts := e.Conflicts()
		assert.Equal(t, StateInit, e.State())
		for _, c := range first {
			require.Less(t, c, uint32(6))
		}
		assert.Equal(t, CountConflicts(h.Graph(), first), firstConflicts)

		// Advance the chain, then re-initialize.
		for i := 0; i < 3; i++ {
			_, err := e.Step(ctx)
			require.NoError(t, err)
		}
		require.NoError(t, e.Init(ctx))
		assert.Equal(t, first, e.Current(), "mode %s", mode)
		assert.Equal(t, firstConflicts, e.Conflicts())
		assert.Zero(t, e.Iteration())
	}
}

func TestStepKeepsConflictCountConsistent(t *testing.T) {
	h := random(t, 150, 0.05, 17)
	e, err := NewEngine(device(h), testParams(6))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, e.Init(ctx))

	for i := 1; i <= 20; i++ {
		prev := e.Conflicts()
		out, err := e.Step(ctx)
		require.NoError(t, err)
		require.Equal(t, i, out.Iteration)
		require.Equal(t, CountConflicts(h.Graph(), e.Current()), e.Conflicts())
		if out.Accepted {
			require.Equal(t, out.CandidateConflicts, e.Conflicts())
		} else {
			require.Equal(t, prev, e.Conflicts())
		}
		for _, c := range e.Current() {
			require.Less(t, c, uint32(6))
		}
	}
}

// C4 with two colors always reaches one of its two proper colorings.
func TestScenarioCycleConverges(t *testing.T) {
	h := cycle(t, 4)
	converged := 0
	for seed := uint64(1); seed <= 20; seed++ {
		p := testParams(2)
		p.Epsilon = 0.05
		p.ConflictPenalty = 2
		p.Seed = seed

		e, err := NewEngine(device(h), p)
		require.NoError(t, err)
		res, err := e.Run(context.Background())
		require.NoError(t, err)

		if res.Reason == ReasonConverged {
			converged++
			assert.Zero(t, res.Conflicts)
			assert.LessOrEqual(t, res.Iterations, 200)
			assert.Equal(t, StateConverged, e.State())
			requireProper(t, h.Graph(), res.Coloring)
		}
	}
	assert.GreaterOrEqual(t, converged, 16)
}

// K5 cannot be colored with four colors.
func TestScenarioCompleteGraphExhausts(t *testing.T) {
	p := testParams(4)
	p.MaxIterations = 50
	e, err := NewEngine(device(complete(t, 5)), p)
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonExhausted, res.Reason)
	assert.Equal(t, StateExhausted, e.State())
	assert.Equal(t, 50, res.Iterations)
	assert.GreaterOrEqual(t, res.Conflicts, uint64(1))
	assert.Equal(t, 50, res.Statistics.Accepted+res.Statistics.Rejected)
	assert.LessOrEqual(t, res.Conflicts, res.Statistics.InitialConflicts)
	assert.Equal(t, CountConflicts(complete(t, 5).Graph(), res.Coloring), res.Conflicts)
}

func TestScenarioEmptyGraph(t *testing.T) {
	h, err := graph.NewFromEdges(0, nil)
	require.NoError(t, err)
	e, err := NewEngine(device(h), testParams(3))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonEmptyGraph, res.Reason)
	assert.NotNil(t, res.Coloring)
	assert.Empty(t, res.Coloring)
	assert.Zero(t, res.Iterations)
}

func TestEdgelessGraphConvergesImmediately(t *testing.T) {
	h, err := graph.NewFromEdges(10, nil)
	require.NoError(t, err)
	e, err := NewEngine(device(h), testParams(3))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonConverged, res.Reason)
	assert.Zero(t, res.Iterations)
	assert.Len(t, res.Coloring, 10)
}

// Averaged over seeds, a few rounds lower the conflict count.
func TestConflictsDecreaseOnAverage(t *testing.T) {
	h := random(t, 200, 0.03, 77)
	var initial, after float64
	const seeds = 5
	for seed := uint64(1); seed <= seeds; seed++ {
		p := testParams(8)
		p.Seed = seed
		e, err := NewEngine(device(h), p)
		require.NoError(t, err)
		ctx := context.Background()
		require.NoError(t, e.Init(ctx))
		initial += float64(e.Conflicts())

		for i := 0; i < 25 && e.Conflicts() > 0; i++ {
			_, err := e.Step(ctx)
			require.NoError(t, err)
		}
		after += float64(e.Conflicts())
	}
	require.Positive(t, initial)
	assert.Less(t, after/seeds, initial/seeds)
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	h := random(t, 120, 0.06, 5)
	p := testParams(5)
	p.MaxIterations = 60
	p.Seed = 99

	run := func(workers int) *Result {
		dev := h.ToDevice(graph.DeviceOptions{Workers: workers, ChunkSize: 8})
		e, err := NewEngine(dev, p)
		require.NoError(t, err)
		res, err := e.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	a, b := run(1), run(6)
	assert.Equal(t, a.Coloring, b.Coloring)
	assert.Equal(t, a.Iterations, b.Iterations)
	assert.Equal(t, a.Conflicts, b.Conflicts)
	assert.Equal(t, a.Statistics.Accepted, b.Statistics.Accepted)
}

func TestRunCancelled(t *testing.T) {
	e, err := NewEngine(device(complete(t, 5)), testParams(4))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Zero(t, res.Iterations)
	assert.Len(t, res.Coloring, 5)
}

func TestRunStalls(t *testing.T) {
	p := testParams(4)
	p.MaxIterations = 10000
	p.Patience = 5
	e, err := NewEngine(device(complete(t, 5)), p)
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonStalled, res.Reason)
	assert.Less(t, res.Iterations, 10000)
	assert.Equal(t, 5, res.Iterations-res.Statistics.BestIteration)
}

func TestRunWithDiagnostics(t *testing.T) {
	h := random(t, 100, 0.05, 8)
	p := testParams(10)
	e, err := NewEngine(device(h), p, WithDiagnostics())
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Diagnostics)
	assert.LessOrEqual(t, res.Diagnostics.ColorsUsed, 10)
	assert.Equal(t, ColorsUsed(res.Coloring), res.Diagnostics.ColorsUsed)
	assert.LessOrEqual(t, res.Diagnostics.FreeColors.Min, res.Diagnostics.FreeColors.Max)
	assert.Equal(t, h.Stats(), res.Diagnostics.Graph)
}

func TestRunReportsMetricsAndProgress(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	p := testParams(4)
	p.MaxIterations = 30
	p.ProgressEvery = 10
	var ticks []int
	e, err := NewEngine(device(complete(t, 5)), p,
		WithMetrics(m),
		WithProgress(func(iteration int, conflicts, best uint64) {
			assert.LessOrEqual(t, best, conflicts)
			ticks = append(ticks, iteration)
		}),
	)
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{10, 20, 30}, ticks)
	assert.Equal(t, float64(30), testutil.ToFloat64(m.iterations))
	assert.Equal(t, float64(res.Statistics.Accepted), testutil.ToFloat64(m.proposals.WithLabelValues("accepted")))
	assert.Equal(t, float64(res.Statistics.Rejected), testutil.ToFloat64(m.proposals.WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(string(ReasonExhausted))))
	assert.Equal(t, float64(e.Conflicts()), testutil.ToFloat64(m.conflicts))
}

func TestRunWritesIterationTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	tracker, err := utils.NewIterationTracker(path, "run-1")
	require.NoError(t, err)

	p := testParams(4)
	p.MaxIterations = 12
	e, err := NewEngine(device(complete(t, 5)), p, WithTracker(tracker))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, tracker.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var events []utils.IterationEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var ev utils.IterationEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 12)
	for i, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, i+1, ev.Iteration)
		assert.Positive(t, ev.Lambda)
	}
}
