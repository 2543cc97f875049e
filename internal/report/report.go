// Package report renders backtest results, optimizer rankings and metric
// tables as Markdown, then as terminal text, HTML or a PNG equity chart.
package report

import (
	"fmt"
	"strings"

	"autoindex/internal/backtest"
	"autoindex/internal/domain"
	"autoindex/internal/engine"
)

// MaxTrades bounds the trade table; the report always states the total.
const MaxTrades = 20

const dateLayout = "2006-01-02"

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

// Markdown renders a backtest result.
func Markdown(res *domain.BacktestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Backtest: %s\n\n", res.Strategy.Name)

	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Run | %s |\n", res.ID)
	fmt.Fprintf(&b, "| Status | %s |\n", res.Status)
	if n := len(res.EquityCurve); n > 0 {
		fmt.Fprintf(&b, "| Period | %s to %s |\n",
			res.EquityCurve[0].Date.Format(dateLayout), res.EquityCurve[n-1].Date.Format(dateLayout))
	}
	fmt.Fprintf(&b, "| Initial capital | %s |\n", usd(res.InitialCapital))
	fmt.Fprintf(&b, "| Final value | %s |\n", usd(res.FinalValue()))
	if res.Error != "" {
		fmt.Fprintf(&b, "| Error | %s |\n", escape(res.Error))
	}
	b.WriteString("\n")

	if res.Incomplete {
		b.WriteString("> Incomplete run: figures cover the simulated prefix only.\n\n")
	}

	r := res.Report
	b.WriteString("## Performance\n\n| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total return | %s |\n", pct(r.TotalReturn))
	fmt.Fprintf(&b, "| Annualized return | %s |\n", pct(r.AnnualizedReturn))
	fmt.Fprintf(&b, "| Volatility | %s |\n", pct(r.Volatility))
	fmt.Fprintf(&b, "| Sharpe ratio | %.3f |\n", r.SharpeRatio)
	fmt.Fprintf(&b, "| Sortino ratio | %.3f |\n", r.SortinoRatio)
	fmt.Fprintf(&b, "| Max drawdown | %s |\n", pct(r.MaxDrawdown))
	fmt.Fprintf(&b, "| Current drawdown | %s |\n", pct(r.CurrentDrawdown))
	fmt.Fprintf(&b, "| Win rate | %s |\n", pct(r.WinRate))
	fmt.Fprintf(&b, "| Trades | %d |\n", r.TotalTrades)
	fmt.Fprintf(&b, "| Costs | %s |\n\n", usd(r.TotalCosts))

	s := res.Strategy
	b.WriteString("## Strategy\n\n")
	fmt.Fprintf(&b, "- Blend: momentum %.2f, market cap %.2f, risk parity %.2f\n",
		s.Blend.Momentum, s.Blend.MarketCap, s.Blend.RiskParity)
	fmt.Fprintf(&b, "- Rebalance: %s, lookback %d periods\n", s.Rebalance, s.LookbackPeriod)
	fmt.Fprintf(&b, "- Weight bounds: [%.2f, %.2f]\n\n", s.MinWeight, s.MaxWeight)

	if len(res.Excluded) > 0 {
		fmt.Fprintf(&b, "## Exclusions (%d)\n\n| Date | Asset | Reason |\n|---|---|---|\n", len(res.Excluded))
		for _, e := range res.Excluded {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", e.Date.Format(dateLayout), e.Asset, escape(e.Reason))
		}
		b.WriteString("\n")
	}

	if n := len(res.Trades); n > 0 {
		trades := res.Trades
		if n > MaxTrades {
			trades = trades[n-MaxTrades:]
			fmt.Fprintf(&b, "## Trades (last %d of %d)\n\n", MaxTrades, n)
		} else {
			fmt.Fprintf(&b, "## Trades (%d)\n\n", n)
		}
		b.WriteString("| Date | Asset | Action | Quantity | Price | Cost |\n|---|---|---|---:|---:|---:|\n")
		for _, t := range trades {
			fmt.Fprintf(&b, "| %s | %s | %s | %.4f | %s | %s |\n",
				t.Date.Format(dateLayout), t.Asset, t.Action, t.Quantity, usd(t.Price), usd(t.Cost))
		}
	}
	return b.String()
}

// Ranking renders an optimizer result as a table, best first.
func Ranking(res *backtest.OptimizeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Optimization by %s\n\n", res.Score)
	fmt.Fprintf(&b, "%d runs, %d failed.\n\n", res.Runs, res.Failed)
	if len(res.Top) == 0 {
		b.WriteString("No completed runs.\n")
		return b.String()
	}
	b.WriteString("| # | Rebalance | Lookback | Momentum | Market cap | Risk parity | Score | Total return | Max drawdown |\n")
	b.WriteString("|---:|---|---:|---:|---:|---:|---:|---:|---:|\n")
	for i, r := range res.Top {
		var total, dd float64
		if r.Result != nil {
			total, dd = r.Result.Report.TotalReturn, r.Result.Report.MaxDrawdown
		}
		fmt.Fprintf(&b, "| %d | %s | %d | %.2f | %.2f | %.2f | %.3f | %s | %s |\n",
			i+1, r.Params.Rebalance, r.Params.LookbackPeriod,
			r.Params.Blend.Momentum, r.Params.Blend.MarketCap, r.Params.Blend.RiskParity,
			r.Score, pct(total), pct(dd))
	}
	return b.String()
}

// Assets renders per-asset metrics.
func Assets(ms []engine.AssetMetrics) string {
	var b strings.Builder
	b.WriteString("| Symbol | Obs | Total | Annualized | Volatility | Sharpe | Sortino | Max DD | VaR 95 |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, m := range ms {
		if m.Error != "" {
			fmt.Fprintf(&b, "| %s | %d | %s | | | | | | |\n", m.Symbol, m.Observations, escape(m.Error))
			continue
		}
		flag := ""
		if m.LowConfidence {
			flag = "*"
		}
		fmt.Fprintf(&b, "| %s | %d%s | %s | %s | %s | %.3f | %.3f | %s | %s |\n",
			m.Symbol, m.Observations, flag, pct(m.TotalReturn), pct(m.AnnualizedReturn),
			pct(m.Volatility), m.SharpeRatio, m.SortinoRatio, pct(m.MaxDrawdown), pct(m.ValueAtRisk95))
	}
	return b.String()
}

// Portfolio renders a single portfolio's metrics.
func Portfolio(m engine.PortfolioMetrics) string {
	var b strings.Builder
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total return | %s |\n", pct(m.TotalReturn))
	fmt.Fprintf(&b, "| Annualized return | %s |\n", pct(m.AnnualizedReturn))
	fmt.Fprintf(&b, "| Volatility | %s |\n", pct(m.Volatility))
	fmt.Fprintf(&b, "| Sharpe ratio | %.3f |\n", m.SharpeRatio)
	fmt.Fprintf(&b, "| Max drawdown | %s |\n", pct(m.MaxDrawdown))
	fmt.Fprintf(&b, "| Current drawdown | %s |\n", pct(m.CurrentDrawdown))
	fmt.Fprintf(&b, "| Observations | %d |\n", m.Observations)
	if m.LowConfidence {
		b.WriteString("\n> Fewer observations than required; estimates are low confidence.\n")
	}
	return b.String()
}

// Weights renders a weight vector in asset order.
func Weights(w domain.WeightVector) string {
	var b strings.Builder
	b.WriteString("| Asset | Weight |\n|---|---:|\n")
	for _, a := range w.Assets() {
		fmt.Fprintf(&b, "| %s | %s |\n", a, pct(w[a]))
	}
	return b.String()
}

// escape keeps free text from breaking a table row.
func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
