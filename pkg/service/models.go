package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/coloring"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/parser"
)

// Job represents a coloring job
type Job struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	Progress    JobProgress     `json:"progress"`
	Graph       GraphInfo       `json:"graph"`
	Parameters  coloring.Params `json:"parameters"`
	Refine      bool            `json:"refine"`
	Result      *JobResult      `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job will not change status anymore.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type JobProgress struct {
	Percentage    int    `json:"percentage"`
	Message       string `json:"message"`
	Iteration     int    `json:"iteration"`
	Conflicts     uint64 `json:"conflicts"`
	BestConflicts uint64 `json:"bestConflicts"`
}

// JobResult is the job-level summary. The coloring itself is fetched
// separately.
type JobResult struct {
	coloring.Summary
	RefinedConflicts *uint64 `json:"refinedConflicts,omitempty"`
	RefinedColors    uint32  `json:"refinedColors,omitempty"`
	RefineDiscarded  bool    `json:"refineDiscarded,omitempty"`
}

// GraphInfo describes the graph a job runs on.
type GraphInfo struct {
	Nodes     uint32  `json:"nodes"`
	Edges     int     `json:"edges"`
	MaxDegree uint32  `json:"maxDegree"`
	Density   float64 `json:"density"`
	Connected bool    `json:"connected"`
}

// RandomGraphSpec asks for an Erdos-Renyi graph.
type RandomGraphSpec struct {
	Nodes uint32  `json:"nodes"`
	Prob  float32 `json:"prob"`
	Seed  uint64  `json:"seed"`
}

// GraphSpec is exactly one of a random graph, an explicit edge array or an
// edge list text.
type GraphSpec struct {
	Random    *RandomGraphSpec `json:"random,omitempty"`
	NodeCount uint32           `json:"nodeCount,omitempty"`
	Edges     []graph.Edge     `json:"edges,omitempty"`
	EdgeList  string           `json:"edgeList,omitempty"`
}

// Build materializes the graph on the host. Graphs with more than maxNodes
// nodes are rejected before anything is allocated for them.
func (gs GraphSpec) Build(maxNodes uint32) (*graph.Host, error) {
	set := 0
	if gs.Random != nil {
		set++
	}
	if gs.Edges != nil {
		set++
	}
	if gs.EdgeList != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of random, edges or edgeList is required", ErrInvalidRequest)
	}

	host, err := gs.build(maxNodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return host, nil
}

func (gs GraphSpec) build(maxNodes uint32) (*graph.Host, error) {
	if gs.NodeCount > maxNodes {
		return nil, tooLarge(uint64(gs.NodeCount), maxNodes)
	}

	switch {
	case gs.Random != nil:
		if gs.Random.Nodes > maxNodes {
			return nil, tooLarge(uint64(gs.Random.Nodes), maxNodes)
		}
		return graph.NewRandom(gs.Random.Nodes, gs.Random.Prob, gs.Random.Seed)
	case gs.Edges != nil:
		n := uint64(gs.NodeCount)
		for _, e := range gs.Edges {
			if uint64(e.U) >= n {
				n = uint64(e.U) + 1
			}
			if uint64(e.V) >= n {
				n = uint64(e.V) + 1
			}
		}
		if n > uint64(maxNodes) {
			return nil, tooLarge(n, maxNodes)
		}
		return graph.NewFromEdges(uint32(n), gs.Edges)
	default:
		var opts []parser.Option
		if gs.NodeCount > 0 {
			opts = append(opts, parser.WithNodeCount(gs.NodeCount))
		}
		list, err := parser.NewEdgeListReader(strings.NewReader(gs.EdgeList), opts...).Import()
		if err != nil {
			return nil, err
		}
		if list.NodeCount > maxNodes {
			return nil, tooLarge(uint64(list.NodeCount), maxNodes)
		}
		return graph.NewFromEdgeList(list)
	}
}

func tooLarge(nodes uint64, maxNodes uint32) error {
	return fmt.Errorf("graph has %d nodes, limit is %d", nodes, maxNodes)
}

// JobParameters overrides the configured defaults field by field.
type JobParameters struct {
	NumColors        *uint32  `json:"numColors,omitempty"`
	Lambda           *float64 `json:"lambda,omitempty"`
	LambdaGrowth     *float64 `json:"lambdaGrowth,omitempty"`
	LambdaMax        *float64 `json:"lambdaMax,omitempty"`
	Epsilon          *float64 `json:"epsilon,omitempty"`
	ConflictPenalty  *float64 `json:"conflictPenalty,omitempty"`
	MaxIterations    *int     `json:"maxIterations,omitempty"`
	Patience         *int     `json:"patience,omitempty"`
	Strategy         *string  `json:"strategy,omitempty"`
	InitMode         *string  `json:"initMode,omitempty"`
	BalancePartition *float64 `json:"balancePartition,omitempty"`
	Seed             *uint64  `json:"seed,omitempty"`
}

// Apply returns base with every set field replaced.
func (jp JobParameters) Apply(base coloring.Params) coloring.Params {
	p := base
	if jp.NumColors != nil {
		p.NumColors = *jp.NumColors
	}
	if jp.Lambda != nil {
		p.Lambda = *jp.Lambda
	}
	if jp.LambdaGrowth != nil {
		p.LambdaGrowth = *jp.LambdaGrowth
	}
	if jp.LambdaMax != nil {
		p.LambdaMax = *jp.LambdaMax
	}
	if jp.Epsilon != nil {
		p.Epsilon = *jp.Epsilon
	}
	if jp.ConflictPenalty != nil {
		p.ConflictPenalty = *jp.ConflictPenalty
	}
	if jp.MaxIterations != nil {
		p.MaxIterations = *jp.MaxIterations
	}
	if jp.Patience != nil {
		p.Patience = *jp.Patience
	}
	if jp.Strategy != nil {
		p.Strategy = *jp.Strategy
	}
	if jp.InitMode != nil {
		p.InitMode = coloring.InitMode(*jp.InitMode)
	}
	if jp.BalancePartition != nil {
		p.BalancePartition = *jp.BalancePartition
	}
	if jp.Seed != nil {
		p.Seed = *jp.Seed
	}
	return p
}

// ColoringRequest is the body of a job submission.
type ColoringRequest struct {
	Graph      GraphSpec     `json:"graph"`
	Parameters JobParameters `json:"parameters"`
	// Refine recolors the conflicted nodes once more on a fresh palette when
	// the main run ends with conflicts.
	Refine bool `json:"refine"`
}
