// Package engine is the entry point to the analytics calculators. An Engine
// holds only configuration; every call takes its inputs explicitly and
// returns fresh results.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autoindex/internal/backtest"
	"autoindex/internal/domain"
	"autoindex/internal/metrics"
	"autoindex/internal/returns"
	"autoindex/internal/risk"
	"autoindex/internal/strategy"
	"autoindex/internal/weights"
)

// Options configures an Engine.
type Options struct {
	RiskFreeRate   float64
	PeriodsPerYear float64
	MinPeriods     int
	// Strict turns estimates over fewer than MinPeriods observations into
	// ErrInsufficientData instead of low-confidence values.
	Strict bool
	// Workers bounds per-asset and grid-search parallelism.
	Workers  int
	Backtest backtest.Options
	Logger   *slog.Logger
}

// DefaultOptions returns daily-data defaults.
func DefaultOptions() Options {
	return Options{
		RiskFreeRate:   0.02,
		PeriodsPerYear: risk.TradingDaysPerYear,
		MinPeriods:     risk.DefaultMinPeriods,
		Workers:        4,
		Backtest:       backtest.DefaultOptions(),
	}
}

// Engine wires the return, risk and weight calculators and the backtester
// behind one facade.
type Engine struct {
	opts Options
	calc *risk.Calculator
	log  *slog.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.PeriodsPerYear <= 0 {
		opts.PeriodsPerYear = risk.TradingDaysPerYear
	}
	if opts.MinPeriods <= 0 {
		opts.MinPeriods = risk.DefaultMinPeriods
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "engine")
	opts.Backtest.RiskFreeRate = opts.RiskFreeRate
	opts.Backtest.PeriodsPerYear = opts.PeriodsPerYear
	if opts.Backtest.Logger == nil {
		opts.Backtest.Logger = log
	}
	return &Engine{
		opts: opts,
		calc: risk.New(
			risk.WithPeriodsPerYear(opts.PeriodsPerYear),
			risk.WithMinPeriods(opts.MinPeriods),
			risk.WithStrict(opts.Strict),
		),
		log: log,
	}
}

// Options returns the effective configuration.
func (e *Engine) Options() Options { return e.opts }

// ---------------------------------------------------------------------------
// Returns and risk
// ---------------------------------------------------------------------------

// Returns computes simple period returns of a value sequence.
func (e *Engine) Returns(values []float64) ([]float64, error) {
	return returns.Returns(values)
}

// TotalReturn computes end/start - 1.
func (e *Engine) TotalReturn(start, end float64) (float64, error) {
	return returns.TotalReturn(start, end)
}

// AnnualizedReturn scales a total return over periodDays to one year.
func (e *Engine) AnnualizedReturn(total, periodDays float64) (float64, error) {
	return returns.AnnualizedReturn(total, periodDays)
}

// Volatility annualizes the sample standard deviation of returns.
func (e *Engine) Volatility(rs []float64) (risk.Estimate, error) {
	return e.calc.Volatility(rs)
}

// SharpeRatio computes (annualized - riskFree) / volatility, 0 when
// volatility is 0.
func (e *Engine) SharpeRatio(annualized, volatility, riskFree float64) float64 {
	return risk.SharpeRatio(annualized, volatility, riskFree)
}

// MaxDrawdown reports the worst and the current drawdown of values.
func (e *Engine) MaxDrawdown(values []float64) (risk.Drawdown, error) {
	return risk.MaxDrawdown(values)
}

// PortfolioMetrics summarises a value sequence spanning periodDays calendar
// days.
type PortfolioMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	Observations     int     `json:"observations"`
	LowConfidence    bool    `json:"low_confidence"`
}

// PortfolioMetrics computes the headline metrics of values. The Sharpe
// ratio uses the engine's risk-free rate.
func (e *Engine) PortfolioMetrics(values []float64, periodDays float64) (PortfolioMetrics, error) {
	var m PortfolioMetrics
	if len(values) < 3 {
		return m, fmt.Errorf("portfolio metrics need at least 3 values, got %d: %w",
			len(values), domain.ErrInsufficientData)
	}
	rs, err := returns.Returns(values)
	if err != nil {
		return m, err
	}
	if m.TotalReturn, err = returns.TotalReturn(values[0], values[len(values)-1]); err != nil {
		return m, err
	}
	if m.AnnualizedReturn, err = returns.AnnualizedReturn(m.TotalReturn, periodDays); err != nil {
		return m, err
	}
	vol, err := e.calc.Volatility(rs)
	if err != nil {
		return m, err
	}
	m.Volatility = vol.Value
	m.Observations = vol.Observations
	m.LowConfidence = vol.LowConfidence
	m.SharpeRatio = risk.SharpeRatio(m.AnnualizedReturn, m.Volatility, e.opts.RiskFreeRate)

	dd, err := risk.MaxDrawdown(values)
	if err != nil {
		return m, err
	}
	m.MaxDrawdown = dd.Max
	m.CurrentDrawdown = dd.Current
	return m, nil
}

// ---------------------------------------------------------------------------
// Weights and backtests
// ---------------------------------------------------------------------------

// ComputeWeights blends the signal weights by cfg's shares and applies its
// weight bounds.
func (e *Engine) ComputeWeights(s weights.Signals, cfg domain.StrategyConfig) (domain.WeightVector, error) {
	if err := strategy.ValidateWeights(cfg.Blend); err != nil {
		return nil, err
	}
	maxWeight := cfg.MaxWeight
	if maxWeight == 0 {
		maxWeight = 1
	}
	raw, skipped, err := weights.FromSignals(s, cfg.Blend, weights.Options{MaxWeight: maxWeight})
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		e.log.Debug("signals skipped", "strategy", cfg.Name, "signals", skipped)
	}
	return weights.ApplyConstraints(raw, cfg.MinWeight, maxWeight)
}

// Signals computes the weighting signals at the last date of in over a
// trailing window of lookback periods.
func (e *Engine) Signals(in backtest.Input, lookback int) (weights.Signals, error) {
	return backtest.LatestSignals(in, lookback, e.opts.PeriodsPerYear)
}

// RunBacktest replays cfg over in. See backtest.Backtester.Run for the
// failure semantics.
func (e *Engine) RunBacktest(ctx context.Context, in backtest.Input, cfg domain.StrategyConfig, capital float64) (*domain.BacktestResult, error) {
	start := time.Now()
	res, err := backtest.New(e.opts.Backtest).Run(ctx, in, cfg, capital)
	metrics.BacktestDuration.Observe(time.Since(start).Seconds())
	switch {
	case res != nil:
		metrics.BacktestRuns.WithLabelValues(string(res.Status)).Inc()
	case err != nil:
		metrics.BacktestRuns.WithLabelValues("rejected").Inc()
	}
	return res, err
}

// Optimize runs a grid search around base. Zero worker count and score
// fall back to the engine's defaults.
func (e *Engine) Optimize(ctx context.Context, in backtest.Input, base domain.StrategyConfig, capital float64, grid backtest.Grid, opts backtest.OptimizeOptions) (*backtest.OptimizeResult, error) {
	if opts.Workers <= 0 {
		opts.Workers = e.opts.Workers
	}
	opts.Backtest = e.opts.Backtest
	metrics.OptimizerRuns.Inc()
	start := time.Now()
	res, err := backtest.Optimize(ctx, in, base, capital, grid, opts)
	if err != nil {
		return nil, err
	}
	e.log.Info("optimization finished",
		"strategy", base.Name,
		"runs", res.Runs,
		"failed", res.Failed,
		"elapsed", time.Since(start),
	)
	return res, nil
}
