package coloring

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
)

// Config manages engine, service and logging configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults. Every key can be
// overridden from the environment as MCMCCOLOR_<SECTION>_<KEY>.
func NewConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix("mcmccolor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultParams()

	// Algorithm parameters
	v.SetDefault("algorithm.num_colors", d.NumColors)
	v.SetDefault("algorithm.lambda", d.Lambda)
	v.SetDefault("algorithm.lambda_growth", d.LambdaGrowth)
	v.SetDefault("algorithm.lambda_max", d.LambdaMax)
	v.SetDefault("algorithm.epsilon", d.Epsilon)
	v.SetDefault("algorithm.conflict_penalty", d.ConflictPenalty)
	v.SetDefault("algorithm.max_iterations", d.MaxIterations)
	v.SetDefault("algorithm.patience", d.Patience)
	v.SetDefault("algorithm.strategy", d.Strategy)
	v.SetDefault("algorithm.init_mode", string(d.InitMode))
	v.SetDefault("algorithm.balance_partition", d.BalancePartition)
	v.SetDefault("algorithm.random_seed", time.Now().UnixNano())

	// Performance parameters
	v.SetDefault("performance.chunk_size", 1024)
	v.SetDefault("performance.num_workers", runtime.NumCPU())

	// Logging parameters
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.enable_progress", true)
	v.SetDefault("logging.progress_every", d.ProgressEvery)

	v.SetDefault("analysis.track_iterations", false)
	v.SetDefault("analysis.output_file", "iterations.jsonl")

	v.SetDefault("output.dir", "./results")
	v.SetDefault("output.prefix", "coloring")

	// Service parameters
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("jobs.max_workers", 2)
	v.SetDefault("jobs.max_nodes", 10_000_000)
	v.SetDefault("jobs.timeout", 10*time.Minute)
	v.SetDefault("jobs.result_ttl", time.Hour)
	v.SetDefault("jobs.cleanup_interval", 5*time.Minute)

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Viper exposes the underlying instance so command-line flags can be bound to it.
func (c *Config) Viper() *viper.Viper { return c.v }

// Getters for algorithm parameters
func (c *Config) NumColors() uint32 { return c.v.GetUint32("algorithm.num_colors") }
func (c *Config) Lambda() float64 { return c.v.GetFloat64("algorithm.lambda") }
func (c *Config) LambdaGrowth() float64 { return c.v.GetFloat64("algorithm.lambda_growth") }
func (c *Config) LambdaMax() float64 { return c.v.GetFloat64("algorithm.lambda_max") }
func (c *Config) Epsilon() float64 { return c.v.GetFloat64("algorithm.epsilon") }
func (c *Config) ConflictPenalty() float64 { return c.v.GetFloat64("algorithm.conflict_penalty") }
func (c *Config) MaxIterations() int { return c.v.GetInt("algorithm.max_iterations") }
func (c *Config) Patience() int { return c.v.GetInt("algorithm.patience") }
func (c *Config) Strategy() string { return c.v.GetString("algorithm.strategy") }
func (c *Config) InitMode() InitMode { return InitMode(c.v.GetString("algorithm.init_mode")) }
func (c *Config) BalancePartition() float64 { return c.v.GetFloat64("algorithm.balance_partition") }
func (c *Config) RandomSeed() uint64 { return uint64(c.v.GetInt64("algorithm.random_seed")) }

func (c *Config) ChunkSize() int { return c.v.GetInt("performance.chunk_size") }
func (c *Config) NumWorkers() int { return c.v.GetInt("performance.num_workers") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }
func (c *Config) EnableProgress() bool { return c.v.GetBool("logging.enable_progress") }
func (c *Config) ProgressEvery() int { return c.v.GetInt("logging.progress_every") }

func (c *Config) TrackIterations() bool { return c.v.GetBool("analysis.track_iterations") }
func (c *Config) TrackingOutputFile() string { return c.v.GetString("analysis.output_file") }

func (c *Config) OutputDir() string { return c.v.GetString("output.dir") }
func (c *Config) OutputPrefix() string { return c.v.GetString("output.prefix") }

func (c *Config) ServerAddress() string { return c.v.GetString("server.address") }
func (c *Config) ServerReadTimeout() time.Duration { return c.v.GetDuration("server.read_timeout") }
func (c *Config) ServerWriteTimeout() time.Duration { return c.v.GetDuration("server.write_timeout") }
func (c *Config) JobMaxWorkers() int { return c.v.GetInt("jobs.max_workers") }
func (c *Config) JobMaxNodes() uint32 { return c.v.GetUint32("jobs.max_nodes") }
func (c *Config) JobTimeout() time.Duration { return c.v.GetDuration("jobs.timeout") }
func (c *Config) JobResultTTL() time.Duration { return c.v.GetDuration("jobs.result_ttl") }
func (c *Config) JobCleanupInterval() time.Duration { return c.v.GetDuration("jobs.cleanup_interval") }

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Params converts the algorithm section into engine parameters.
func (c *Config) Params() Params {
	p := Params{
		NumColors:        c.NumColors(),
		Lambda:           c.Lambda(),
		LambdaGrowth:     c.LambdaGrowth(),
		LambdaMax:        c.LambdaMax(),
		Epsilon:          c.Epsilon(),
		ConflictPenalty:  c.ConflictPenalty(),
		MaxIterations:    c.MaxIterations(),
		Patience:         c.Patience(),
		Strategy:         c.Strategy(),
		InitMode:         c.InitMode(),
		BalancePartition: c.BalancePartition(),
		Seed:             c.RandomSeed(),
	}
	if c.EnableProgress() {
		p.ProgressEvery = c.ProgressEvery()
	}
	return p
}

// DeviceOptions converts the performance section into device partitioning.
func (c *Config) DeviceOptions() graph.DeviceOptions {
	return graph.DeviceOptions{Workers: c.NumWorkers(), ChunkSize: c.ChunkSize()}
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "mcmc-coloring").Logger()
}
