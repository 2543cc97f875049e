// Package domain defines the core value types shared by the analytics
// engine: price and return series, weight vectors, strategy configuration
// and backtest results.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// WeightTolerance is the allowed deviation of a weight vector's sum from 1.0.
const WeightTolerance = 1e-3

// ---------------------------------------------------------------------------
// Price and return series
// ---------------------------------------------------------------------------

// PricePoint is a single dated price observation.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceSeries is an ordered, validated price history for one asset.
// Construct it with NewPriceSeries; treat it as read-only afterward.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// NewPriceSeries copies points and validates that dates are strictly
// increasing and every price is finite and positive.
func NewPriceSeries(symbol string, points []PricePoint) (PriceSeries, error) {
	cp := make([]PricePoint, len(points))
	copy(cp, points)
	for i, p := range cp {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
			return PriceSeries{}, fmt.Errorf("%s: price %v at %s: %w",
				symbol, p.Price, p.Date.Format("2006-01-02"), ErrInvalidInput)
		}
		if i > 0 && !p.Date.After(cp[i-1].Date) {
			return PriceSeries{}, fmt.Errorf("%s: date %s not after %s: %w",
				symbol, p.Date.Format("2006-01-02"), cp[i-1].Date.Format("2006-01-02"), ErrInvalidInput)
		}
	}
	return PriceSeries{Symbol: symbol, Points: cp}, nil
}

// Len returns the number of observations.
func (s PriceSeries) Len() int { return len(s.Points) }

// At returns the i-th observation.
func (s PriceSeries) At(i int) PricePoint { return s.Points[i] }

// Prices returns the price column.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Dates returns the date column.
func (s PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Date
	}
	return out
}

// ReturnPoint is the fractional return over the transition ending at Date.
type ReturnPoint struct {
	Date   time.Time `json:"date"`
	Return float64   `json:"return"`
}

// ReturnSeries holds len(prices)-1 returns derived from a PriceSeries.
type ReturnSeries struct {
	Symbol string        `json:"symbol"`
	Points []ReturnPoint `json:"points"`
}

// Len returns the number of return events.
func (s ReturnSeries) Len() int { return len(s.Points) }

// Values returns the return column.
func (s ReturnSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Return
	}
	return out
}

// ---------------------------------------------------------------------------
// Weights
// ---------------------------------------------------------------------------

// WeightVector maps an asset identifier to its fractional weight.
type WeightVector map[string]float64

// Sum returns the total of all weights, added in asset order so the result
// does not depend on map iteration.
func (w WeightVector) Sum() float64 {
	var s float64
	for _, a := range w.Assets() {
		s += w[a]
	}
	return s
}

// Assets returns the asset identifiers in sorted order.
func (w WeightVector) Assets() []string {
	out := make([]string, 0, len(w))
	for a := range w {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (w WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// SignalBlend holds the share each signal source contributes to the final
// weights. The three shares are each in [0,1] and sum to 1.
type SignalBlend struct {
	Momentum   float64 `yaml:"momentum_weight" json:"momentum_weight"`
	MarketCap  float64 `yaml:"market_cap_weight" json:"market_cap_weight"`
	RiskParity float64 `yaml:"risk_parity_weight" json:"risk_parity_weight"`
}

// Sum returns the total of the three shares.
func (b SignalBlend) Sum() float64 { return b.Momentum + b.MarketCap + b.RiskParity }

// Key returns a stable textual key, used to order optimizer results.
func (b SignalBlend) Key() string {
	return fmt.Sprintf("m%.3f/c%.3f/r%.3f", b.Momentum, b.MarketCap, b.RiskParity)
}

// ---------------------------------------------------------------------------
// Strategy configuration
// ---------------------------------------------------------------------------

// RebalanceFrequency controls how often the backtester rebalances.
type RebalanceFrequency string

const (
	RebalanceDaily     RebalanceFrequency = "daily"
	RebalanceWeekly    RebalanceFrequency = "weekly"
	RebalanceMonthly   RebalanceFrequency = "monthly"
	RebalanceQuarterly RebalanceFrequency = "quarterly"
)

// Valid reports whether f is one of the known frequencies.
func (f RebalanceFrequency) Valid() bool {
	switch f {
	case RebalanceDaily, RebalanceWeekly, RebalanceMonthly, RebalanceQuarterly:
		return true
	}
	return false
}

// ParseRebalanceFrequency parses a case-insensitive frequency name.
func ParseRebalanceFrequency(s string) (RebalanceFrequency, error) {
	f := RebalanceFrequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("rebalance frequency %q: %w", s, ErrInvalidInput)
	}
	return f, nil
}

// StrategyConfig is the immutable description of one strategy. It is passed
// explicitly into every computation; there is no process-wide active
// strategy.
type StrategyConfig struct {
	Name               string             `yaml:"name" json:"name"`
	Blend              SignalBlend        `yaml:",inline" json:"blend"`
	Rebalance          RebalanceFrequency `yaml:"rebalance_frequency" json:"rebalance_frequency"`
	LookbackPeriod     int                `yaml:"lookback_period" json:"lookback_period"`
	MinPriceThreshold  float64            `yaml:"min_price_threshold" json:"min_price_threshold"`
	DailyDropThreshold float64            `yaml:"daily_drop_threshold" json:"daily_drop_threshold"`
	MinDailyReturn     float64            `yaml:"min_daily_return" json:"min_daily_return"`
	MaxDailyReturn     float64            `yaml:"max_daily_return" json:"max_daily_return"`
	MinWeight          float64            `yaml:"min_weight" json:"min_weight"`
	MaxWeight          float64            `yaml:"max_weight" json:"max_weight"`
	UpdatedAt          time.Time          `yaml:"updated_at" json:"updated_at"`
}

// ---------------------------------------------------------------------------
// Backtest results
// ---------------------------------------------------------------------------

// TradeAction is the direction of a trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// Trade is one entry of a backtest trade log.
type Trade struct {
	Asset    string      `json:"asset"`
	Date     time.Time   `json:"date"`
	Action   TradeAction `json:"action"`
	Quantity float64     `json:"quantity"`
	Price    float64     `json:"price"`
	Cost     float64     `json:"cost"`
}

// EquityPoint is a portfolio valuation at a date.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Exclusion records an asset left out of a rebalance by a guard rail.
type Exclusion struct {
	Asset  string    `json:"asset"`
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// PerformanceReport summarises an equity curve.
type PerformanceReport struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	WinRate          float64 `json:"win_rate"`
	TotalTrades      int     `json:"total_trades"`
	TotalCosts       float64 `json:"total_costs"`
}

// BacktestStatus is the state of a backtest run.
type BacktestStatus string

const (
	StatusInitialized BacktestStatus = "initialized"
	StatusRunning     BacktestStatus = "running"
	StatusCompleted   BacktestStatus = "completed"
	StatusFailed      BacktestStatus = "failed"
)

// BacktestResult is produced once per run and is read-only afterward. A
// failed run still carries the partial equity curve and trade log.
type BacktestResult struct {
	ID             string            `json:"id"`
	Strategy       StrategyConfig    `json:"strategy"`
	Status         BacktestStatus    `json:"status"`
	Incomplete     bool              `json:"incomplete"`
	Error          string            `json:"error,omitempty"`
	InitialCapital float64           `json:"initial_capital"`
	EquityCurve    []EquityPoint     `json:"equity_curve"`
	Trades         []Trade           `json:"trades"`
	Excluded       []Exclusion       `json:"excluded,omitempty"`
	Report         PerformanceReport `json:"report"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// FinalValue returns the last equity value, or the initial capital when the
// curve is empty.
func (r *BacktestResult) FinalValue() float64 {
	if len(r.EquityCurve) == 0 {
		return r.InitialCapital
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Value
}
