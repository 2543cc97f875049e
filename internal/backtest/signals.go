package backtest

import (
	"fmt"

	"autoindex/internal/domain"
	"autoindex/internal/risk"
	"autoindex/internal/weights"
)

// LatestSignals computes the weighting signals a rebalance on the last
// aligned date of in would see: momentum and volatility over the trailing
// lookback window, and the input market caps. Assets without a price at the
// start of the window are left out.
func LatestSignals(in Input, lookback int, periodsPerYear float64) (weights.Signals, error) {
	if lookback <= 0 {
		return weights.Signals{}, fmt.Errorf("lookback period %d must be positive: %w", lookback, domain.ErrInvalidInput)
	}
	if periodsPerYear <= 0 {
		periodsPerYear = risk.TradingDaysPerYear
	}
	r := &run{
		cfg:   domain.StrategyConfig{LookbackPeriod: lookback},
		in:    in,
		frame: align(in.Prices),
		calc:  risk.New(risk.WithPeriodsPerYear(periodsPerYear)),
	}
	n := len(r.frame.dates)
	if n <= lookback {
		return weights.Signals{}, fmt.Errorf("history of %d periods is shorter than lookback %d + 1: %w",
			n, lookback, domain.ErrInsufficientData)
	}
	s := r.signals(n-1, nil)
	if len(s.Assets) == 0 {
		return s, fmt.Errorf("no asset covers the lookback window: %w", domain.ErrInsufficientData)
	}
	return s, nil
}
