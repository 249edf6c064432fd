package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/api"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/coloring"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/parser"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/service"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/utils"
)

var (
	cfg        = coloring.NewConfig()
	configFile string

	// graph source flags of the run command
	edgesFile  string
	randomN    uint32
	randomProb float32
	graphSeed  uint64
	refine     bool

	rootCmd = &cobra.Command{
		Use:   "mcmccolor",
		Short: "Color graphs with a parallel Markov chain Monte Carlo sampler",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				if err := cfg.LoadFromFile(configFile); err != nil {
					return fmt.Errorf("failed to load config %s: %w", configFile, err)
				}
			}
			if level, err := zerolog.ParseLevel(cfg.LogLevel()); err == nil {
				zerolog.SetGlobalLevel(level)
			}
			return nil
		},
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Color one graph and write the coloring and a summary",
		Example: `  mcmccolor run --random-nodes 1000 --random-prob 0.01 --colors 12
  mcmccolor run --edges graph.txt --colors 8 --strategy balance-on-node`,
		RunE: runColoring,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve coloring jobs over HTTP",
		RunE:  serve,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")

	flags := runCmd.Flags()
	flags.StringVar(&edgesFile, "edges", "", "edge list file (u v [w] per line)")
	flags.Uint32Var(&randomN, "random-nodes", 0, "number of nodes of a random G(n, p) graph")
	flags.Float32Var(&randomProb, "random-prob", 0.01, "edge probability of the random graph")
	flags.Uint64Var(&graphSeed, "graph-seed", 1, "seed of the random graph")
	flags.BoolVar(&refine, "refine", false, "recolor conflicted nodes on a fresh palette if the run ends with conflicts")
	flags.Uint32("colors", 32, "palette size")
	flags.Int("max-iterations", 1000, "iteration budget")
	flags.Int("patience", 0, "stop after this many iterations without improvement (0 disables)")
	flags.String("strategy", coloring.StrategyDecreaseLine, "proposal strategy")
	flags.Float64("epsilon", 1e-3, "proposal probability floor")
	flags.Float64("lambda", 0.1, "initial color distribution rate")
	flags.Float64("beta", 2, "conflict penalty of the acceptance rule")
	flags.Uint64("seed", 0, "coloring seed (0 keeps the configured one)")
	flags.Int("workers", 0, "worker goroutines (0 keeps the configured count)")
	flags.String("output-dir", "./results", "output directory")
	flags.String("output-prefix", "coloring", "output file prefix")
	flags.Bool("track", false, "write a JSON line per iteration")

	serveCmd.Flags().String("address", ":8080", "listen address")
	serveCmd.Flags().Int("max-workers", 2, "jobs running at the same time")
	serveCmd.Flags().Uint32("max-nodes", 10_000_000, "largest graph a job may submit")

	bindFlags(rootCmd, map[string]string{
		"log-level": "logging.level",
	})
	bindFlags(runCmd, map[string]string{
		"colors":         "algorithm.num_colors",
		"max-iterations": "algorithm.max_iterations",
		"patience":       "algorithm.patience",
		"strategy":       "algorithm.strategy",
		"epsilon":        "algorithm.epsilon",
		"lambda":         "algorithm.lambda",
		"beta":           "algorithm.conflict_penalty",
		"output-dir":     "output.dir",
		"output-prefix":  "output.prefix",
		"track":          "analysis.track_iterations",
	})
	bindFlags(serveCmd, map[string]string{
		"address":     "server.address",
		"max-workers": "jobs.max_workers",
		"max-nodes":   "jobs.max_nodes",
	})

	rootCmd.AddCommand(runCmd, serveCmd)
}

// bindFlags makes viper read each flag when it was set, and fall back to the
// config file, environment or default otherwise.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	v := cfg.Viper()
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}

func loadGraph() (*graph.Host, error) {
	switch {
	case edgesFile != "" && randomN > 0:
		return nil, errors.New("--edges and --random-nodes are mutually exclusive")
	case edgesFile != "":
		return parser.ReadGraphFromFile(edgesFile)
	case randomN > 0:
		return graph.NewRandom(randomN, randomProb, graphSeed)
	default:
		return nil, errors.New("one of --edges or --random-nodes is required")
	}
}

func runColoring(cmd *cobra.Command, args []string) error {
	if seed, _ := cmd.Flags().GetUint64("seed"); seed != 0 {
		cfg.Set("algorithm.random_seed", seed)
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Set("performance.num_workers", workers)
	}

	runID := uuid.New().String()
	logger := cfg.CreateLogger().With().Str("run_id", runID).Logger()

	host, err := loadGraph()
	if err != nil {
		return err
	}
	stats := host.Stats()
	logger.Info().
		Uint32("nodes", host.NodeCount()).
		Int("edges", host.Graph().UndirectedEdgeCount()).
		Uint32("max_degree", stats.MaxDegree).
		Float64("mean_degree", stats.MeanDegree).
		Bool("connected", stats.Connected).
		Msg("Graph loaded")

	params := cfg.Params()
	opts := []coloring.Option{coloring.WithLogger(logger), coloring.WithDiagnostics()}

	if cfg.TrackIterations() {
		tracker, err := utils.NewIterationTracker(cfg.TrackingOutputFile(), runID)
		if err != nil {
			return fmt.Errorf("failed to open iteration trace: %w", err)
		}
		defer tracker.Close()
		opts = append(opts, coloring.WithTracker(tracker))
	}

	engine, err := coloring.NewEngine(host.ToDevice(cfg.DeviceOptions()), params, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := engine.Run(ctx)
	if result == nil {
		return runErr
	}

	if refine && runErr == nil && result.Conflicts > 0 {
		refined, err := coloring.Refine(ctx, host, result.Coloring, params.NumColors, params, cfg.DeviceOptions(),
			coloring.WithLogger(logger))
		switch {
		case refined == nil:
		case refined.Discarded:
			logger.Warn().
				Uint64("conflicts", result.Conflicts).
				Msg("Refinement made the coloring worse, keeping the original")
		default:
			logger.Info().
				Int("recolored", refined.Recolored).
				Uint64("conflicts", refined.Conflicts).
				Uint32("colors", refined.NumColors).
				Msg("Refinement completed")
			result.Coloring = refined.Coloring
			result.Conflicts = refined.Conflicts
			result.NumColors = refined.NumColors
		}
		runErr = err
	}

	writer := coloring.NewFileWriter()
	if err := writer.WriteAll(result, cfg.OutputDir(), cfg.OutputPrefix()); err != nil {
		return err
	}
	logger.Info().
		Str("dir", cfg.OutputDir()).
		Str("prefix", cfg.OutputPrefix()).
		Msg("Results written")

	return runErr
}

func serve(cmd *cobra.Command, args []string) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := coloring.NewMetrics(registry)

	jobService := service.NewJobService(service.OptionsFromConfig(cfg, metrics))
	defer jobService.Close()

	handler := api.NewRouter(api.NewHandlers(jobService), registry)

	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      handler,
		ReadTimeout:  cfg.ServerReadTimeout(),
		WriteTimeout: cfg.ServerWriteTimeout(),
	}

	log.Info().
		Str("address", cfg.ServerAddress()).
		Int("max_workers", cfg.JobMaxWorkers()).
		Dur("job_timeout", cfg.JobTimeout()).
		Msg("Configuration loaded")

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.ServerAddress()).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server shutdown complete")
	return nil
}
