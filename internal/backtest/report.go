package backtest

import (
	"autoindex/internal/domain"
	"autoindex/internal/returns"
	"autoindex/internal/risk"
	"autoindex/internal/util"
)

// buildReport scores the equity curve. Metrics that need more points than
// the curve has stay at zero, so partial results of failed runs still get a
// best-effort report.
func buildReport(res *domain.BacktestResult, book *ledger, opts Options) domain.PerformanceReport {
	rep := domain.PerformanceReport{
		TotalTrades: len(book.trades),
		TotalCosts:  book.fees.InexactFloat64(),
	}
	curve := res.EquityCurve
	if len(curve) == 0 {
		return rep
	}
	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.Value
	}

	if total, err := returns.TotalReturn(res.InitialCapital, values[len(values)-1]); err == nil {
		rep.TotalReturn = total
		days := util.DaysBetween(curve[0].Date, curve[len(curve)-1].Date)
		if ann, err := returns.AnnualizedReturn(total, days); err == nil {
			rep.AnnualizedReturn = ann
		}
	}

	if dd, err := risk.MaxDrawdown(values); err == nil {
		rep.MaxDrawdown = dd.Max
		rep.CurrentDrawdown = dd.Current
	}

	rets, err := returns.Returns(values)
	if err != nil || len(rets) == 0 {
		return rep
	}
	var wins int
	for _, r := range rets {
		if r > 0 {
			wins++
		}
	}
	rep.WinRate = float64(wins) / float64(len(rets))

	calc := risk.New(risk.WithPeriodsPerYear(opts.PeriodsPerYear))
	if vol, err := calc.Volatility(rets); err == nil {
		rep.Volatility = vol.Value
		rep.SharpeRatio = risk.SharpeRatio(rep.AnnualizedReturn, vol.Value, opts.RiskFreeRate)
	}
	if sortino, err := calc.SortinoRatio(rep.AnnualizedReturn, rets, opts.RiskFreeRate); err == nil {
		rep.SortinoRatio = sortino.Value
	}
	return rep
}
