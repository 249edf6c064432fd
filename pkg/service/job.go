package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/coloring"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrResultNotReady = errors.New("result not ready")
	ErrInvalidRequest = errors.New("invalid request")
)

// DefaultMaxNodes caps the graph size of a job when Options.MaxNodes is unset.
const DefaultMaxNodes = 10_000_000

// Options configure a JobService.
type Options struct {
	MaxWorkers      int
	MaxNodes        uint32 // largest graph a job may carry
	JobTimeout      time.Duration
	JobTTL          time.Duration
	CleanupInterval time.Duration
	Defaults        coloring.Params
	Device          graph.DeviceOptions
	Metrics         *coloring.Metrics
}

// OptionsFromConfig reads the jobs section and the engine defaults.
func OptionsFromConfig(cfg *coloring.Config, metrics *coloring.Metrics) Options {
	return Options{
		MaxWorkers:      cfg.JobMaxWorkers(),
		MaxNodes:        cfg.JobMaxNodes(),
		JobTimeout:      cfg.JobTimeout(),
		JobTTL:          cfg.JobResultTTL(),
		CleanupInterval: cfg.JobCleanupInterval(),
		Defaults:        cfg.Params(),
		Device:          cfg.DeviceOptions(),
		Metrics:         metrics,
	}
}

type jobEntry struct {
	job    *Job
	host   *graph.Host
	result *coloring.Result
	cancel context.CancelFunc
}

// JobService runs coloring jobs in the background, at most MaxWorkers at a
// time.
type JobService struct {
	opts    Options
	jobs    map[string]*jobEntry
	workers chan struct{}
	mutex   sync.RWMutex
	wg      sync.WaitGroup
	stop    chan struct{}
	once    sync.Once
}

// NewJobService creates a new job service and starts its cleanup loop.
func NewJobService(opts Options) *JobService {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.MaxNodes == 0 {
		opts.MaxNodes = DefaultMaxNodes
	}
	if opts.JobTTL <= 0 {
		opts.JobTTL = time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}

	s := &JobService{
		opts:    opts,
		jobs:    make(map[string]*jobEntry),
		workers: make(chan struct{}, opts.MaxWorkers),
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Submit validates the request, builds the graph and queues the job. Bad
// parameters and bad graphs are reported here, never as failed jobs.
func (s *JobService) Submit(req ColoringRequest) (*Job, error) {
	params := req.Parameters.Apply(s.opts.Defaults)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	host, err := req.Graph.Build(s.opts.MaxNodes)
	if err != nil {
		return nil, err
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if s.opts.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.opts.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	now := time.Now()
	stats := host.Stats()
	job := &Job{
		ID:     uuid.New().String(),
		Status: JobStatusQueued,
		Progress: JobProgress{
			Message: "Queued",
		},
		Graph: GraphInfo{
			Nodes:     host.NodeCount(),
			Edges:     host.Graph().UndirectedEdgeCount(),
			MaxDegree: stats.MaxDegree,
			Density:   stats.Density,
			Connected: stats.Connected,
		},
		Parameters: params,
		Refine:     req.Refine,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mutex.Lock()
	s.jobs[job.ID] = &jobEntry{job: job, host: host, cancel: cancel}
	s.mutex.Unlock()

	log.Info().
		Str("job_id", job.ID).
		Uint32("nodes", job.Graph.Nodes).
		Int("edges", job.Graph.Edges).
		Uint32("colors", params.NumColors).
		Msg("Job submitted")

	s.wg.Add(1)
	go s.processJob(ctx, job.ID)

	snapshot := *job
	return &snapshot, nil
}

// Get returns a snapshot of the job.
func (s *JobService) Get(jobID string) (*Job, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	snapshot := *entry.job
	return &snapshot, nil
}

// GetResult returns the full result of a finished job, coloring included.
func (s *JobService) GetResult(jobID string) (*coloring.Result, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if entry.result == nil {
		return nil, fmt.Errorf("%w: job %s is %s", ErrResultNotReady, jobID, entry.job.Status)
	}
	return entry.result, nil
}

// List returns snapshots of all jobs, oldest first.
func (s *JobService) List() []*Job {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, entry := range s.jobs {
		snapshot := *entry.job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Cancel raises the stop signal of a job. A queued job is cancelled right
// away; a running one stops at its next iteration boundary and keeps the
// best coloring found so far.
func (s *JobService) Cancel(jobID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if entry.job.Status.Terminal() {
		return nil
	}

	entry.cancel()
	if entry.job.Status == JobStatusQueued {
		s.finish(entry.job, JobStatusCancelled, "Cancelled", "")
	}

	log.Info().
		Str("job_id", jobID).
		Msg("Job cancellation requested")
	return nil
}

// Close cancels every unfinished job and waits for the workers to exit.
func (s *JobService) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.mutex.Lock()
		for _, entry := range s.jobs {
			entry.cancel()
		}
		s.mutex.Unlock()
		s.wg.Wait()
	})
}

// processJob processes a job in the background
func (s *JobService) processJob(ctx context.Context, jobID string) {
	defer s.wg.Done()

	// Acquire worker slot
	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		s.abort(jobID, ctx.Err())
		return
	}
	defer func() { <-s.workers }()

	s.mutex.Lock()
	entry, exists := s.jobs[jobID]
	if !exists || entry.job.Status.Terminal() {
		s.mutex.Unlock()
		return
	}
	startTime := time.Now()
	entry.job.Status = JobStatusRunning
	entry.job.StartedAt = &startTime
	entry.job.UpdatedAt = startTime
	entry.job.Progress.Message = "Running"
	params := entry.job.Parameters
	host := entry.host
	refine := entry.job.Refine
	s.mutex.Unlock()

	logger := log.With().Str("job_id", jobID).Logger()
	logger.Info().Msg("Job processing started")

	result, err := s.runColoring(ctx, jobID, host, params, logger)
	if result == nil {
		s.failJob(jobID, fmt.Errorf("coloring failed: %w", err))
		return
	}

	jobResult := &JobResult{Summary: coloring.NewSummary(jobID, result)}
	if refine && err == nil && result.Conflicts > 0 {
		refined, rerr := coloring.Refine(ctx, host, result.Coloring, params.NumColors, params, s.opts.Device,
			coloring.WithLogger(logger), coloring.WithMetrics(s.opts.Metrics))
		if refined != nil {
			conflicts := refined.Conflicts
			jobResult.RefinedConflicts = &conflicts
			jobResult.RefinedColors = refined.NumColors
			jobResult.RefineDiscarded = refined.Discarded
			if !refined.Discarded {
				result.Coloring = refined.Coloring
				result.Conflicts = refined.Conflicts
				result.NumColors = refined.NumColors
			}
		}
		err = rerr
	}

	switch {
	case errors.Is(err, context.Canceled):
		s.completeJob(jobID, result, jobResult, JobStatusCancelled, "Cancelled", "")
	case errors.Is(err, context.DeadlineExceeded):
		s.completeJob(jobID, result, jobResult, JobStatusFailed, "Timed out", err.Error())
	case err != nil:
		s.completeJob(jobID, result, jobResult, JobStatusFailed, "Failed", err.Error())
	default:
		s.completeJob(jobID, result, jobResult, JobStatusCompleted, "Complete", "")
	}
}

func (s *JobService) runColoring(ctx context.Context, jobID string, host *graph.Host, params coloring.Params, logger zerolog.Logger) (*coloring.Result, error) {
	if params.ProgressEvery <= 0 {
		params.ProgressEvery = 100
	}
	progress := func(iteration int, conflicts, best uint64) {
		s.updateProgress(jobID, iteration, conflicts, best)
	}

	engine, err := coloring.NewEngine(host.ToDevice(s.opts.Device), params,
		coloring.WithLogger(logger),
		coloring.WithMetrics(s.opts.Metrics),
		coloring.WithProgress(progress),
		coloring.WithDiagnostics(),
	)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx)
}

func (s *JobService) updateProgress(jobID string, iteration int, conflicts, best uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.jobs[jobID]
	if !exists {
		return
	}
	job := entry.job
	job.Progress.Iteration = iteration
	job.Progress.Conflicts = conflicts
	job.Progress.BestConflicts = best
	if job.Parameters.MaxIterations > 0 {
		job.Progress.Percentage = iteration * 100 / job.Parameters.MaxIterations
	}
	job.Progress.Message = fmt.Sprintf("Iteration %d, %d conflicts", iteration, conflicts)
	job.UpdatedAt = time.Now()
}

// completeJob stores the result and closes the job with the given status.
func (s *JobService) completeJob(jobID string, result *coloring.Result, jobResult *JobResult, status JobStatus, message, errMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.jobs[jobID]
	if !exists {
		return
	}
	entry.result = result
	entry.job.Result = jobResult
	entry.job.Progress.Iteration = result.Iterations
	entry.job.Progress.BestConflicts = result.Conflicts
	if status == JobStatusCompleted {
		entry.job.Progress.Percentage = 100
	}
	s.finish(entry.job, status, message, errMsg)
	entry.cancel()

	log.Info().
		Str("job_id", jobID).
		Str("status", string(status)).
		Str("reason", string(result.Reason)).
		Uint64("conflicts", result.Conflicts).
		Int("iterations", result.Iterations).
		Int64("runtime_ms", result.Statistics.RuntimeMS).
		Msg("Job finished")
}

// failJob marks a job as failed
func (s *JobService) failJob(jobID string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.jobs[jobID]
	if !exists {
		return
	}
	s.finish(entry.job, JobStatusFailed, "Failed", err.Error())
	entry.cancel()

	log.Error().
		Str("job_id", jobID).
		Err(err).
		Msg("Job failed")
}

// abort closes a job that was stopped before it got a worker.
func (s *JobService) abort(jobID string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.jobs[jobID]
	if !exists || entry.job.Status.Terminal() {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.finish(entry.job, JobStatusFailed, "Timed out", err.Error())
		return
	}
	s.finish(entry.job, JobStatusCancelled, "Cancelled", "")
}

// finish must be called with the mutex held.
func (s *JobService) finish(job *Job, status JobStatus, message, errMsg string) {
	now := time.Now()
	job.Status = status
	job.Progress.Message = message
	job.Error = errMsg
	job.CompletedAt = &now
	job.UpdatedAt = now
}

// cleanupLoop periodically cleans up old jobs and results
func (s *JobService) cleanupLoop() {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stop:
			return
		}
	}
}

// cleanup removes finished jobs last updated before now - JobTTL.
func (s *JobService) cleanup(now time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := now.Add(-s.opts.JobTTL)
	cleaned := 0
	for jobID, entry := range s.jobs {
		if entry.job.Status.Terminal() && entry.job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, jobID)
			cleaned++
		}
	}

	if cleaned > 0 {
		log.Info().
			Int("cleaned_jobs", cleaned).
			Msg("Job cleanup completed")
	}
	return cleaned
}
