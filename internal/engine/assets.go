package engine

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"autoindex/internal/domain"
	"autoindex/internal/returns"
	"autoindex/internal/risk"
	"autoindex/internal/util"
)

// AssetMetrics is the per-asset risk/return summary. Error is set instead
// of the metrics when the asset's history is unusable, so one bad series
// does not fail the whole batch.
type AssetMetrics struct {
	Symbol           string  `json:"symbol"`
	Observations     int     `json:"observations"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	ValueAtRisk95    float64 `json:"value_at_risk_95"`
	LowConfidence    bool    `json:"low_confidence"`
	Error            string  `json:"error,omitempty"`
}

// AssetMetrics computes metrics for every series in parallel and returns
// them sorted by symbol.
func (e *Engine) AssetMetrics(ctx context.Context, prices map[string]domain.PriceSeries) ([]AssetMetrics, error) {
	symbols := make([]string, 0, len(prices))
	for s := range prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	results := make([]AssetMetrics, len(symbols))
	sem := make(chan struct{}, e.opts.Workers)
	g, gctx := errgroup.WithContext(ctx)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := e.assetMetrics(prices[sym])
			m.Symbol = sym
			if err != nil {
				m.Error = err.Error()
				e.log.Debug("asset metrics unavailable", "symbol", sym, "error", err)
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) assetMetrics(s domain.PriceSeries) (AssetMetrics, error) {
	m := AssetMetrics{Observations: s.Len()}
	values := s.Prices()
	rs, err := returns.Returns(values)
	if err != nil {
		return m, err
	}
	if m.TotalReturn, err = returns.TotalReturn(values[0], values[len(values)-1]); err != nil {
		return m, err
	}
	days := util.DaysBetween(s.At(0).Date, s.At(s.Len()-1).Date)
	if m.AnnualizedReturn, err = returns.AnnualizedReturn(m.TotalReturn, days); err != nil {
		return m, err
	}
	vol, err := e.calc.Volatility(rs)
	if err != nil {
		return m, err
	}
	m.Volatility = vol.Value
	m.LowConfidence = vol.LowConfidence
	m.SharpeRatio = risk.SharpeRatio(m.AnnualizedReturn, vol.Value, e.opts.RiskFreeRate)
	if sortino, err := e.calc.SortinoRatio(m.AnnualizedReturn, rs, e.opts.RiskFreeRate); err == nil {
		m.SortinoRatio = sortino.Value
	}
	if dd, err := risk.MaxDrawdown(values); err == nil {
		m.MaxDrawdown = dd.Max
	}
	if v, err := e.calc.ValueAtRisk(rs, 0.95); err == nil {
		m.ValueAtRisk95 = v.Value
	}
	return m, nil
}
