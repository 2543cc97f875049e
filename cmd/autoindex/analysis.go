package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"

	"autoindex/internal/api"
	"autoindex/internal/backtest"
	"autoindex/internal/domain"
	"autoindex/internal/report"
	"autoindex/pkg/autoindex"
)

// runFlags are shared by backtest and optimize.
type runFlags struct {
	strategy   string
	symbols    string
	start, end string
	capital    float64
}

func (r *runFlags) set(f *flag.FlagSet) {
	f.StringVar(&r.strategy, "strategy", "balanced", "Registered strategy name")
	f.StringVar(&r.symbols, "symbols", "", "Comma separated symbols from the server's price store")
	f.StringVar(&r.start, "start", "", "First date (YYYY-MM-DD, inclusive)")
	f.StringVar(&r.end, "end", "", "Last date (YYYY-MM-DD, inclusive)")
	f.Float64Var(&r.capital, "capital", 100000, "Initial capital")
}

func (r *runFlags) request() (autoindex.BacktestRequest, error) {
	var req autoindex.BacktestRequest
	syms := splitList(r.symbols)
	if len(syms) == 0 {
		return req, fmt.Errorf("-symbols is required")
	}
	start, err := parseDate(r.start)
	if err != nil {
		return req, fmt.Errorf("-start: %w", err)
	}
	end, err := parseDate(r.end)
	if err != nil {
		return req, fmt.Errorf("-end: %w", err)
	}
	req.StrategyRef = api.StrategyRef{Strategy: r.strategy}
	req.PriceInput = api.PriceInput{Symbols: syms, Start: start, End: end}
	req.Capital = r.capital
	return req, nil
}

// ---------------------------------------------------------------------------
// backtest
// ---------------------------------------------------------------------------

type backtestCmd struct {
	run       runFlags
	htmlPath  string
	chartPath string
}

func (*backtestCmd) Name() string     { return "backtest" }
func (*backtestCmd) Synopsis() string { return "run a backtest on the server and print its report" }
func (*backtestCmd) Usage() string {
	return `autoindex backtest -symbols A,B [-strategy name] [-start d] [-end d] [-capital n] [-html out.html] [-chart out.png]

  Runs the strategy over stored prices. The server records the run, which
  is then listed by "autoindex runs".
`
}

func (c *backtestCmd) SetFlags(f *flag.FlagSet) {
	c.run.set(f)
	f.StringVar(&c.htmlPath, "html", "", "Also write the report as an HTML page")
	f.StringVar(&c.chartPath, "chart", "", "Also write the equity curve as a PNG")
}

func (c *backtestCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	req, err := c.run.request()
	if err != nil {
		return usageError("%v", err)
	}
	res, err := newClient().RunBacktest(ctx, req)
	if err != nil {
		return fail(err)
	}

	md := report.Markdown(res)
	printMarkdown(md)

	if c.htmlPath != "" {
		body, err := report.HTML(md)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(c.htmlPath, []byte(report.Page("Backtest "+res.ID, body))); err != nil {
			return fail(err)
		}
	}
	if c.chartPath != "" {
		png, err := report.EquityChart(res)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(c.chartPath, png); err != nil {
			return fail(err)
		}
	}
	if res.Status == domain.StatusFailed {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// optimize
// ---------------------------------------------------------------------------

type optimizeCmd struct {
	run       runFlags
	lookbacks string
	freqs     string
	score     string
	top       int
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "grid-search strategy parameters on the server" }
func (*optimizeCmd) Usage() string {
	return `autoindex optimize -symbols A,B [-strategy name] [-lookbacks 20,60] [-freqs weekly,monthly] [-score sharpe] [-top n]

  Backtests every combination of lookback period and rebalance frequency
  and prints the best runs by score.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	c.run.set(f)
	f.StringVar(&c.lookbacks, "lookbacks", "20,60,120", "Comma separated lookback periods")
	f.StringVar(&c.freqs, "freqs", "weekly,monthly,quarterly", "Comma separated rebalance frequencies")
	f.StringVar(&c.score, "score", "sharpe", "Ranking score (sharpe, sortino, total_return, calmar)")
	f.IntVar(&c.top, "top", 10, "Number of runs to print")
}

func (c *optimizeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	req, err := c.run.request()
	if err != nil {
		return usageError("%v", err)
	}
	grid, err := parseGrid(c.lookbacks, c.freqs)
	if err != nil {
		return usageError("%v", err)
	}
	if _, err := backtest.ParseScore(c.score); err != nil {
		return usageError("%v", err)
	}

	res, err := newClient().Optimize(ctx, autoindex.OptimizeRequest{
		BacktestRequest: req,
		Grid:            grid,
		Score:           c.score,
		TopN:            c.top,
	})
	if err != nil {
		return fail(err)
	}
	printMarkdown(report.Ranking(res))
	return subcommands.ExitSuccess
}

// parseGrid builds a search grid from comma separated flag values.
func parseGrid(lookbacks, freqs string) (backtest.Grid, error) {
	var g backtest.Grid
	for _, s := range splitList(lookbacks) {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return g, fmt.Errorf("lookback %q must be a positive integer", s)
		}
		g.LookbackPeriods = append(g.LookbackPeriods, n)
	}
	for _, s := range splitList(freqs) {
		f, err := domain.ParseRebalanceFrequency(s)
		if err != nil {
			return g, err
		}
		g.Frequencies = append(g.Frequencies, f)
	}
	return g, nil
}
