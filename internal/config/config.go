package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"autoindex/internal/backtest"
	"autoindex/internal/domain"
	"autoindex/internal/engine"
	"autoindex/internal/strategy"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the autoindex engine, server and
// CLI.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Server    Server          `yaml:"server"`
	Logging   Logging         `yaml:"logging"`
	Engine    EngineConfig    `yaml:"engine"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	// StrategiesFile names an optional YAML file of additional strategy
	// definitions.
	StrategiesFile string                  `yaml:"strategies_file"`
	Strategies     []domain.StrategyConfig `yaml:"strategies"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
	// RateLimit is the sustained requests per second accepted by the HTTP
	// API; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig sets the calculator conventions.
type EngineConfig struct {
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	PeriodsPerYear float64 `yaml:"periods_per_year"`
	MinPeriods     int     `yaml:"min_periods"`
	Strict         bool    `yaml:"strict"`
	Workers        int     `yaml:"workers"`
}

// BacktestConfig sets trading frictions.
type BacktestConfig struct {
	InitialCapital  float64 `yaml:"initial_capital"`
	TransactionCost float64 `yaml:"transaction_cost"`
	Slippage        float64 `yaml:"slippage"`
	MinTradeValue   float64 `yaml:"min_trade_value"`
}

// OptimizerConfig is the default parameter grid and ranking.
type OptimizerConfig struct {
	Workers         int      `yaml:"workers"`
	TopN            int      `yaml:"top_n"`
	Score           string   `yaml:"score"`
	LookbackPeriods []int    `yaml:"lookback_periods"`
	Frequencies     []string `yaml:"frequencies"`
}

// Defaults returns a configuration usable without any file.
func Defaults() *Config {
	bt := backtest.DefaultOptions()
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/autoindex.db",
		},
		Server: Server{
			Host:      "0.0.0.0",
			Port:      8080,
			GRPCPort:  9090,
			RateLimit: 50,
			Burst:     100,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Engine: EngineConfig{
			RiskFreeRate:   0.02,
			PeriodsPerYear: 252,
			MinPeriods:     20,
			Workers:        4,
		},
		Backtest: BacktestConfig{
			InitialCapital:  100000,
			TransactionCost: bt.TransactionCost,
			Slippage:        bt.Slippage,
			MinTradeValue:   bt.MinTradeValue,
		},
		Optimizer: OptimizerConfig{
			Workers:         4,
			TopN:            10,
			Score:           string(backtest.ScoreSharpe),
			LookbackPeriods: []int{20, 60, 120},
			Frequencies:     []string{"weekly", "monthly", "quarterly"},
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file named by AUTOINDEX_CONFIG, or "".
func Path() string {
	return os.Getenv("AUTOINDEX_CONFIG")
}

// Load starts from Defaults, overlays the YAML file at path when path is
// not empty, loads a .env file from the working directory if one exists and
// finally applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("AUTOINDEX_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("AUTOINDEX_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AUTOINDEX_RISK_FREE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AUTOINDEX_RISK_FREE_RATE=%q: %w", v, err)
		}
		cfg.Engine.RiskFreeRate = f
	}
	if v := os.Getenv("AUTOINDEX_HTTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTOINDEX_HTTP_PORT=%q: %w", v, err)
		}
		cfg.Server.Port = p
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		problems = append(problems, fmt.Sprintf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.Server.RateLimit < 0 {
		problems = append(problems, "server.rate_limit must not be negative")
	}
	if c.Engine.PeriodsPerYear < 0 {
		problems = append(problems, "engine.periods_per_year must not be negative")
	}
	if c.Backtest.TransactionCost < 0 || c.Backtest.Slippage < 0 {
		problems = append(problems, "backtest frictions must not be negative")
	}
	if _, err := backtest.ParseScore(c.Optimizer.Score); err != nil {
		problems = append(problems, err.Error())
	}
	for _, f := range c.Optimizer.Frequencies {
		if _, err := domain.ParseRebalanceFrequency(f); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s: %w", strings.Join(problems, "; "), domain.ErrInvalidInput)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// EngineOptions converts the engine and backtest sections.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.RiskFreeRate = c.Engine.RiskFreeRate
	if c.Engine.PeriodsPerYear > 0 {
		opts.PeriodsPerYear = c.Engine.PeriodsPerYear
	}
	if c.Engine.MinPeriods > 0 {
		opts.MinPeriods = c.Engine.MinPeriods
	}
	if c.Engine.Workers > 0 {
		opts.Workers = c.Engine.Workers
	}
	opts.Strict = c.Engine.Strict
	opts.Backtest.TransactionCost = c.Backtest.TransactionCost
	opts.Backtest.Slippage = c.Backtest.Slippage
	opts.Backtest.MinTradeValue = c.Backtest.MinTradeValue
	return opts
}

// Grid returns the optimizer's default grid. Unparseable frequencies were
// rejected by Validate.
func (c *Config) Grid() backtest.Grid {
	g := backtest.Grid{LookbackPeriods: append([]int(nil), c.Optimizer.LookbackPeriods...)}
	for _, f := range c.Optimizer.Frequencies {
		if freq, err := domain.ParseRebalanceFrequency(f); err == nil {
			g.Frequencies = append(g.Frequencies, freq)
		}
	}
	return g
}

// OptimizeOptions converts the optimizer section. The score was checked by
// Validate.
func (c *Config) OptimizeOptions() backtest.OptimizeOptions {
	score, _ := backtest.ParseScore(c.Optimizer.Score)
	return backtest.OptimizeOptions{
		Workers: c.Optimizer.Workers,
		TopN:    c.Optimizer.TopN,
		Score:   score,
	}
}

// Registry builds the strategy registry: built-in presets, then the
// strategies file, then inline definitions.
func (c *Config) Registry() (*strategy.Registry, error) {
	r := strategy.NewDefaultRegistry()
	if c.StrategiesFile != "" {
		cfgs, err := strategy.LoadFile(c.StrategiesFile)
		if err != nil {
			return nil, err
		}
		if err := r.RegisterAll(cfgs); err != nil {
			return nil, err
		}
	}
	if err := r.RegisterAll(c.Strategies); err != nil {
		return nil, err
	}
	return r, nil
}
