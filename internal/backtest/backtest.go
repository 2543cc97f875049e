// Package backtest replays a strategy over historical prices. A run walks
// the aligned price history one period at a time, rebalancing to blended,
// constrained target weights at each rebalance boundary and marking the
// book to market in between. Guard rails exclude suspect observations from
// a rebalance instead of aborting the run.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoindex/internal/domain"
	"autoindex/internal/risk"
	"autoindex/internal/strategy"
	"autoindex/internal/util"
	"autoindex/internal/weights"
)

// Options tunes execution costs and reporting.
type Options struct {
	// TransactionCost is the fee charged on each trade's notional.
	TransactionCost float64
	// Slippage moves the execution price against the trade.
	Slippage float64
	// MinTradeValue skips trades whose notional is below it.
	MinTradeValue float64
	// RiskFreeRate is the annual rate used for Sharpe and Sortino.
	RiskFreeRate float64
	// PeriodsPerYear annualizes volatility.
	PeriodsPerYear float64
	Logger         *slog.Logger
}

// DefaultOptions returns the standard execution model.
func DefaultOptions() Options {
	return Options{
		TransactionCost: 0.001,
		Slippage:        0.0005,
		MinTradeValue:   1.0,
		RiskFreeRate:    0.02,
		PeriodsPerYear:  risk.TradingDaysPerYear,
	}
}

// Input is the historical data a run consumes.
type Input struct {
	Prices map[string]domain.PriceSeries
	// MarketCaps holds one capitalization per asset, used as a static
	// market-cap signal.
	MarketCaps map[string]float64
}

// Backtester runs one strategy simulation at a time and exposes the state
// of its current or most recent run.
type Backtester struct {
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	state domain.BacktestStatus
}

// New creates a Backtester. Zero-valued PeriodsPerYear falls back to the
// trading-day default.
func New(opts Options) *Backtester {
	if opts.PeriodsPerYear <= 0 {
		opts.PeriodsPerYear = risk.TradingDaysPerYear
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{opts: opts, log: log, state: domain.StatusInitialized}
}

// State returns the state of the current or most recent run.
func (b *Backtester) State() domain.BacktestStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Backtester) setState(s domain.BacktestStatus) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// frame is the price history aligned on the union of all dates. px holds
// NaN before an asset's first observation and carries the last price
// forward afterwards.
type frame struct {
	dates  []time.Time
	assets []string
	px     map[string][]float64
}

func align(prices map[string]domain.PriceSeries) frame {
	seen := make(map[int64]time.Time)
	assets := make([]string, 0, len(prices))
	for a, s := range prices {
		assets = append(assets, a)
		for _, p := range s.Points {
			seen[p.Date.UnixNano()] = p.Date
		}
	}
	sort.Strings(assets)
	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	px := make(map[string][]float64, len(assets))
	for _, a := range assets {
		col := make([]float64, len(dates))
		pts := prices[a].Points
		j := 0
		last := math.NaN()
		for i, d := range dates {
			for j < len(pts) && !pts[j].Date.After(d) {
				last = pts[j].Price
				j++
			}
			col[i] = last
		}
		px[a] = col
	}
	return frame{dates: dates, assets: assets, px: px}
}

func granularity(f domain.RebalanceFrequency) util.Granularity {
	switch f {
	case domain.RebalanceWeekly:
		return util.Weekly
	case domain.RebalanceMonthly:
		return util.Monthly
	case domain.RebalanceQuarterly:
		return util.Quarterly
	default:
		return util.Daily
	}
}

// Run simulates cfg over in starting from capital. Insufficient history, a
// rebalance with no eligible asset and unsatisfiable weight bounds end the
// run in the Failed state: the returned result is then Incomplete and keeps
// the partial equity curve and trade log, and the error is nil. A non-nil
// error means the inputs were invalid or ctx was cancelled.
func (b *Backtester) Run(ctx context.Context, in Input, cfg domain.StrategyConfig, capital float64) (*domain.BacktestResult, error) {
	if err := strategy.Validate(cfg); err != nil {
		return nil, err
	}
	if capital <= 0 || math.IsNaN(capital) || math.IsInf(capital, 0) {
		return nil, fmt.Errorf("initial capital %v: %w", capital, domain.ErrInvalidInput)
	}
	if len(in.Prices) == 0 {
		return nil, fmt.Errorf("backtest without prices: %w", domain.ErrInsufficientData)
	}

	b.setState(domain.StatusRunning)
	res := &domain.BacktestResult{
		ID:             uuid.NewString(),
		Strategy:       cfg,
		Status:         domain.StatusRunning,
		InitialCapital: capital,
		StartedAt:      time.Now().UTC(),
	}
	log := b.log.With("run", res.ID, "strategy", cfg.Name)
	log.Info("backtest started", "assets", len(in.Prices), "capital", capital)

	r := &run{
		opts:   b.opts,
		cfg:    cfg,
		in:     in,
		frame:  align(in.Prices),
		book:   newLedger(capital),
		calc:   risk.New(risk.WithPeriodsPerYear(b.opts.PeriodsPerYear)),
		log:    log,
		result: res,
	}
	runErr := r.simulate(ctx)

	res.Trades = r.book.trades
	res.Report = buildReport(res, r.book, b.opts)
	res.FinishedAt = time.Now().UTC()

	var fail *failure
	switch {
	case runErr == nil:
		res.Status = domain.StatusCompleted
		b.setState(domain.StatusCompleted)
		log.Info("backtest completed",
			"periods", len(res.EquityCurve),
			"trades", len(res.Trades),
			"final_value", res.FinalValue(),
		)
		return res, nil
	case errors.As(runErr, &fail):
		res.Status = domain.StatusFailed
		res.Incomplete = true
		res.Error = fail.Error()
		b.setState(domain.StatusFailed)
		log.Warn("backtest failed", "error", fail.Error(), "periods", len(res.EquityCurve))
		return res, nil
	default:
		res.Status = domain.StatusFailed
		res.Incomplete = true
		res.Error = runErr.Error()
		b.setState(domain.StatusFailed)
		return res, runErr
	}
}

// failure ends a run in the Failed state without being a caller error.
type failure struct {
	date time.Time
	err  error
}

func (f *failure) Error() string {
	if f.date.IsZero() {
		return f.err.Error()
	}
	return fmt.Sprintf("%s: %v", f.date.Format("2006-01-02"), f.err)
}

func (f *failure) Unwrap() error { return f.err }

// run is the mutable state of one simulation.
type run struct {
	opts   Options
	cfg    domain.StrategyConfig
	in     Input
	frame  frame
	book   *ledger
	calc   *risk.Calculator
	log    *slog.Logger
	result *domain.BacktestResult
}

func (r *run) simulate(ctx context.Context) error {
	dates := r.frame.dates
	lb := r.cfg.LookbackPeriod
	if len(dates) <= lb {
		return &failure{err: fmt.Errorf("history of %d periods is shorter than lookback %d + 1: %w",
			len(dates), lb, domain.ErrInsufficientData)}
	}
	gran := granularity(r.cfg.Rebalance)

	for t := lb; t < len(dates); t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		date := dates[t]
		prices := r.pricesAt(t)

		suspects := r.guard(t)
		if t == lb || !util.SamePeriod(dates[t-1], date, gran) {
			if err := r.rebalance(t, prices, suspects); err != nil {
				return &failure{date: date, err: err}
			}
		}
		r.result.EquityCurve = append(r.result.EquityCurve, domain.EquityPoint{
			Date:  date,
			Value: r.book.value(prices),
		})
	}
	return nil
}

// pricesAt returns the carried-forward price of every asset that has one.
func (r *run) pricesAt(t int) map[string]float64 {
	out := make(map[string]float64, len(r.frame.assets))
	for _, a := range r.frame.assets {
		if p := r.frame.px[a][t]; !math.IsNaN(p) {
			out[a] = p
		}
	}
	return out
}

// guard flags assets whose observation at t trips a guard rail and records
// an exclusion for each.
func (r *run) guard(t int) map[string]bool {
	out := make(map[string]bool)
	for _, a := range r.frame.assets {
		cur := r.frame.px[a][t]
		if math.IsNaN(cur) {
			continue
		}
		prev := math.NaN()
		if t > 0 {
			prev = r.frame.px[a][t-1]
		}
		if reason := suspect(r.cfg, prev, cur); reason != "" {
			out[a] = true
			r.result.Excluded = append(r.result.Excluded, domain.Exclusion{
				Asset:  a,
				Date:   r.frame.dates[t],
				Reason: reason,
			})
			r.log.Debug("asset excluded", "asset", a, "date", r.frame.dates[t].Format("2006-01-02"), "reason", reason)
		}
	}
	return out
}

// signals computes momentum and volatility over the trailing lookback
// window for every eligible asset.
func (r *run) signals(t int, suspects map[string]bool) weights.Signals {
	lb := r.cfg.LookbackPeriod
	s := weights.Signals{
		Momentum:     make(map[string]float64),
		MarketCaps:   make(map[string]float64),
		Volatilities: make(map[string]float64),
	}
	for _, a := range r.frame.assets {
		col := r.frame.px[a]
		if suspects[a] || math.IsNaN(col[t-lb]) {
			continue
		}
		s.Assets = append(s.Assets, a)
		s.Momentum[a] = col[t]/col[t-lb] - 1

		window := make([]float64, 0, lb)
		for k := t - lb + 1; k <= t; k++ {
			window = append(window, col[k]/col[k-1]-1)
		}
		if vol, err := r.calc.Volatility(window); err == nil && vol.Value > 0 {
			s.Volatilities[a] = vol.Value
		}
		if c, ok := r.in.MarketCaps[a]; ok && c > 0 {
			s.MarketCaps[a] = c
		}
	}
	return s
}

// boundsEps absorbs rounding in checks such as 5*0.2 vs 1.
const boundsEps = 1e-9

// targets bounds raw weights as shares of the whole portfolio with suspect
// holdings pinned at their current value, and returns them as shares of the
// investable value. When exclusions leave too few eligible assets to reach
// 100% within the bounds, eligible assets are held at the cap and the
// remainder stays in cash. Only bounds that fail for the full universe are
// an error.
func (r *run) targets(raw domain.WeightVector, total, investable float64) (domain.WeightVector, error) {
	minW, maxW := r.cfg.MinWeight, r.cfg.MaxWeight
	if investable > 0 && total > investable {
		share := investable / total
		minW, maxW = minW/share, math.Min(1, maxW/share)
	}
	target, err := weights.ApplyConstraints(raw, math.Min(minW, maxW), maxW)
	if !errors.Is(err, domain.ErrConstraintViolation) {
		return target, err
	}
	n := float64(len(r.frame.assets))
	if n*r.cfg.MaxWeight < 1-boundsEps || n*r.cfg.MinWeight > 1+boundsEps {
		return nil, err
	}

	k := float64(len(raw))
	fill := 1 / k
	if k*maxW < 1 {
		fill = maxW
	}
	out := make(domain.WeightVector, len(raw))
	for a := range raw {
		out[a] = fill
	}
	r.log.Warn("weight bounds relaxed for excluded assets",
		"eligible", len(raw), "weight", fill, "cash_share", 1-k*fill)
	return out, nil
}

// rebalance trades the book toward the strategy's target weights. Suspect
// assets keep their current position and are left out of the targets.
func (r *run) rebalance(t int, prices map[string]float64, suspects map[string]bool) error {
	date := r.frame.dates[t]
	sig := r.signals(t, suspects)
	if len(sig.Assets) == 0 {
		return fmt.Errorf("no eligible asset: %w", domain.ErrInsufficientData)
	}

	raw, skipped, err := weights.FromSignals(sig, r.cfg.Blend, weights.Options{})
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		r.log.Debug("signals skipped", "date", date.Format("2006-01-02"), "signals", skipped)
	}

	// Value held in suspect assets is frozen for this rebalance.
	total := r.book.value(prices)
	var frozen float64
	for _, a := range r.frame.assets {
		if suspects[a] {
			frozen += r.book.positions[a] * prices[a]
		}
	}
	investable := total - frozen

	target, err := r.targets(raw, total, investable)
	if err != nil {
		return err
	}

	type order struct {
		asset    string
		notional float64
	}
	var sells, buys []order
	for _, a := range r.frame.assets {
		if suspects[a] {
			continue
		}
		p, ok := prices[a]
		if !ok {
			continue
		}
		delta := target[a]*investable - r.book.positions[a]*p
		switch {
		case delta < 0 && -delta >= r.opts.MinTradeValue:
			sells = append(sells, order{a, -delta})
		case delta > 0 && delta >= r.opts.MinTradeValue:
			buys = append(buys, order{a, delta})
		}
	}

	for _, o := range sells {
		p := prices[o.asset]
		r.book.sell(o.asset, date, o.notional/p, p*(1-r.opts.Slippage), r.opts.TransactionCost)
	}

	// Scale buys down to the cash actually available after sells.
	var need float64
	for _, o := range buys {
		need += o.notional * (1 + r.opts.Slippage) * (1 + r.opts.TransactionCost)
	}
	scale := 1.0
	if cash := r.book.Cash(); need > cash {
		scale = math.Max(0, cash/need)
	}
	for _, o := range buys {
		notional := o.notional * scale
		if notional < r.opts.MinTradeValue {
			continue
		}
		p := prices[o.asset]
		r.book.buy(o.asset, date, notional/p, p*(1+r.opts.Slippage), r.opts.TransactionCost)
	}

	r.log.Debug("rebalanced",
		"date", date.Format("2006-01-02"),
		"eligible", len(sig.Assets),
		"sells", len(sells),
		"buys", len(buys),
		"cash", r.book.Cash(),
	)
	return nil
}
