package api

import (
	"time"

	"autoindex/internal/backtest"
	"autoindex/internal/domain"
	"autoindex/internal/weights"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// SeriesRequest carries a value sequence. PeriodDays is the calendar span
// of the sequence and is only read by portfolio metrics.
type SeriesRequest struct {
	Values     []float64 `json:"values"`
	PeriodDays float64   `json:"period_days,omitempty"`
}

// TotalReturnRequest is the input of /total-return.
type TotalReturnRequest struct {
	StartValue float64 `json:"start_value"`
	EndValue   float64 `json:"end_value"`
}

// AnnualizedReturnRequest is the input of /annualized-return.
type AnnualizedReturnRequest struct {
	TotalReturn float64 `json:"total_return"`
	PeriodDays  float64 `json:"period_days"`
}

// VolatilityRequest is the input of /volatility.
type VolatilityRequest struct {
	Returns []float64 `json:"returns"`
}

// SharpeRequest is the input of /sharpe-ratio. A nil RiskFreeRate uses the
// server's configured rate.
type SharpeRequest struct {
	AnnualizedReturn float64  `json:"annualized_return"`
	Volatility       float64  `json:"volatility"`
	RiskFreeRate     *float64 `json:"risk_free_rate,omitempty"`
}

// StrategyRef names a registered strategy or carries an inline one. Config
// wins when both are set.
type StrategyRef struct {
	Strategy string                 `json:"strategy,omitempty"`
	Config   *domain.StrategyConfig `json:"config,omitempty"`
}

// WeightsRequest is the input of /weights and ComputeWeights.
type WeightsRequest struct {
	StrategyRef
	Signals weights.Signals `json:"signals"`
}

// PriceInput supplies price histories inline, or names symbols to load from
// the price store between Start and End.
type PriceInput struct {
	Prices     map[string][]domain.PricePoint `json:"prices,omitempty"`
	MarketCaps map[string]float64             `json:"market_caps,omitempty"`
	Symbols    []string                       `json:"symbols,omitempty"`
	Start      time.Time                      `json:"start,omitempty"`
	End        time.Time                      `json:"end,omitempty"`
}

// BacktestRequest is the input of /backtest and RunBacktest.
type BacktestRequest struct {
	StrategyRef
	PriceInput
	Capital float64 `json:"capital"`
}

// OptimizeRequest is the input of /optimize.
type OptimizeRequest struct {
	BacktestRequest
	Grid  backtest.Grid `json:"grid"`
	Score string        `json:"score,omitempty"`
	TopN  int           `json:"top_n,omitempty"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// ValueResponse wraps a scalar result.
type ValueResponse struct {
	Value float64 `json:"value"`
}

// ReturnsResponse wraps a return series.
type ReturnsResponse struct {
	Returns []float64 `json:"returns"`
}

// WeightsResponse is the output of /weights and ComputeWeights.
type WeightsResponse struct {
	Strategy string              `json:"strategy"`
	Weights  domain.WeightVector `json:"weights"`
}

// StrategySaved acknowledges a stored strategy. Version is 0 when no
// strategy store is configured.
type StrategySaved struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
