package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"

	"autoindex/internal/backtest"
	"autoindex/internal/domain"
	"autoindex/internal/engine"
	"autoindex/internal/report"
	"autoindex/internal/store"
)

// ---------------------------------------------------------------------------
// import
// ---------------------------------------------------------------------------

type importCmd struct {
	symbol    string
	marketCap float64
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a daily price CSV into the local price store" }
func (*importCmd) Usage() string {
	return `autoindex import -symbol <SYM> [-cap <market cap>] <file.csv>

  Merges the CSV (date, close and optional market_cap columns) into the
  Parquet price store under the configured data directory.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Ticker symbol of the series")
	f.Float64Var(&c.marketCap, "cap", 0, "Market capitalization, overrides the CSV column")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.symbol == "" || f.NArg() != 1 {
		return usageError("import needs -symbol and one CSV file")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fail(err)
	}

	file, err := os.Open(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	defer file.Close()

	series, mcap, err := store.ReadPriceCSV(file, strings.ToUpper(c.symbol))
	if err != nil {
		return fail(err)
	}
	if c.marketCap > 0 {
		mcap = c.marketCap
	}

	ps := store.NewParquetStore(cfg.Storage.DataDir)
	if err := ps.WriteSeries(ctx, series, mcap); err != nil {
		return fail(err)
	}
	fmt.Printf("imported %d prices for %s (%s to %s)\n", series.Len(), series.Symbol,
		series.At(0).Date.Format("2006-01-02"), series.At(series.Len()-1).Date.Format("2006-01-02"))
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// symbols
// ---------------------------------------------------------------------------

type symbolsCmd struct {
	local bool
}

func (*symbolsCmd) Name() string     { return "symbols" }
func (*symbolsCmd) Synopsis() string { return "list symbols with stored prices" }
func (*symbolsCmd) Usage() string {
	return "autoindex symbols [-local]\n"
}

func (c *symbolsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.local, "local", false, "Read the local price store instead of the server")
}

func (c *symbolsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var (
		syms []string
		err  error
	)
	if c.local {
		cfg, lerr := loadConfig()
		if lerr != nil {
			return fail(lerr)
		}
		syms, err = store.NewParquetStore(cfg.Storage.DataDir).ListSymbols(ctx)
	} else {
		syms, err = newClient().Symbols(ctx)
	}
	if err != nil {
		return fail(err)
	}
	for _, s := range syms {
		fmt.Println(s)
	}
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// metrics
// ---------------------------------------------------------------------------

type metricsCmd struct {
	periodDays float64
	symbols    string
	start, end string
}

func (*metricsCmd) Name() string     { return "metrics" }
func (*metricsCmd) Synopsis() string { return "compute portfolio or per-asset metrics locally" }
func (*metricsCmd) Usage() string {
	return `autoindex metrics -days <period> <value> <value> ...
autoindex metrics -symbols A,B [-start YYYY-MM-DD] [-end YYYY-MM-DD]

  With values, prints the headline metrics of the value sequence. With
  -symbols, prints per-asset metrics from the local price store.
`
}

func (c *metricsCmd) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&c.periodDays, "days", 365, "Calendar days spanned by the values")
	f.StringVar(&c.symbols, "symbols", "", "Comma separated symbols to analyse")
	f.StringVar(&c.start, "start", "", "First date (inclusive)")
	f.StringVar(&c.end, "end", "", "Last date (inclusive)")
}

func (c *metricsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	eng := engine.New(cfg.EngineOptions())

	if c.symbols == "" {
		values, err := parseValues(f.Args())
		if err != nil {
			return usageError("%v", err)
		}
		m, err := eng.PortfolioMetrics(values, c.periodDays)
		if err != nil {
			return fail(err)
		}
		printMarkdown(report.Portfolio(m))
		return subcommands.ExitSuccess
	}

	start, err := parseDate(c.start)
	if err != nil {
		return usageError("-start: %v", err)
	}
	end, err := parseDate(c.end)
	if err != nil {
		return usageError("-end: %v", err)
	}
	ps := store.NewParquetStore(cfg.Storage.DataDir)
	prices, err := readPrices(ctx, ps, splitList(c.symbols), start, end)
	if err != nil {
		return fail(err)
	}
	ms, err := eng.AssetMetrics(ctx, prices)
	if err != nil {
		return fail(err)
	}
	printMarkdown(report.Assets(ms))
	return subcommands.ExitSuccess
}

func parseValues(args []string) ([]float64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no values given")
	}
	values := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", a, err)
		}
		values[i] = v
	}
	return values, nil
}

// readPrices loads each symbol's history between start and end.
func readPrices(ctx context.Context, ps store.PriceStore, symbols []string, start, end time.Time) (map[string]domain.PriceSeries, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols given: %w", domain.ErrInvalidInput)
	}
	prices := make(map[string]domain.PriceSeries, len(symbols))
	for _, sym := range symbols {
		s, err := ps.ReadSeries(ctx, sym, start, end)
		if err != nil {
			return nil, err
		}
		prices[s.Symbol] = s
	}
	return prices, nil
}

// ---------------------------------------------------------------------------
// weights
// ---------------------------------------------------------------------------

type weightsCmd struct {
	strategy string
	symbols  string
	asOf     string
	lookback int
}

func (*weightsCmd) Name() string     { return "weights" }
func (*weightsCmd) Synopsis() string { return "compute target weights from the local price store" }
func (*weightsCmd) Usage() string {
	return `autoindex weights -symbols A,B [-strategy name] [-as-of YYYY-MM-DD] [-lookback n]

  Computes the signals a rebalance on the as-of date would see and prints
  the strategy's constrained target weights.
`
}

func (c *weightsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.strategy, "strategy", "balanced", "Strategy name from the configured registry")
	f.StringVar(&c.symbols, "symbols", "", "Comma separated symbols")
	f.StringVar(&c.asOf, "as-of", "", "Last date of the signal window (defaults to the latest price)")
	f.IntVar(&c.lookback, "lookback", 0, "Override the strategy's lookback period")
}

func (c *weightsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf, err := parseDate(c.asOf)
	if err != nil {
		return usageError("-as-of: %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	registry, err := cfg.Registry()
	if err != nil {
		return fail(err)
	}
	strat, ok := registry.Get(c.strategy)
	if !ok {
		return usageError("unknown strategy %q (have %s)", c.strategy, strings.Join(registry.List(), ", "))
	}
	if c.lookback > 0 {
		strat.LookbackPeriod = c.lookback
	}

	ps := store.NewParquetStore(cfg.Storage.DataDir)
	prices, err := readPrices(ctx, ps, splitList(c.symbols), time.Time{}, asOf)
	if err != nil {
		return fail(err)
	}
	symbols := make([]string, 0, len(prices))
	for sym := range prices {
		symbols = append(symbols, sym)
	}
	caps, err := ps.ReadMarketCaps(ctx, symbols)
	if err != nil {
		return fail(err)
	}

	eng := engine.New(cfg.EngineOptions())
	sig, err := eng.Signals(backtest.Input{Prices: prices, MarketCaps: caps}, strat.LookbackPeriod)
	if err != nil {
		return fail(err)
	}
	w, err := eng.ComputeWeights(sig, strat)
	if err != nil {
		return fail(err)
	}
	printMarkdown(fmt.Sprintf("# %s weights\n\n", strat.Name) + report.Weights(w))
	return subcommands.ExitSuccess
}
