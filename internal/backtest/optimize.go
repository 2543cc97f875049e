package backtest

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"autoindex/internal/domain"
	"autoindex/internal/risk"
	"autoindex/internal/strategy"
)

// Grid lists the parameter values to search. An empty dimension keeps the
// base strategy's value.
type Grid struct {
	LookbackPeriods []int                       `json:"lookback_periods,omitempty"`
	Blends          []domain.SignalBlend        `json:"blends,omitempty"`
	Frequencies     []domain.RebalanceFrequency `json:"frequencies,omitempty"`
}

// Params is one point of the grid.
type Params struct {
	LookbackPeriod int                       `json:"lookback_period"`
	Blend          domain.SignalBlend        `json:"blend"`
	Rebalance      domain.RebalanceFrequency `json:"rebalance_frequency"`
}

// Key identifies the parameter set; results are ordered by it before
// ranking so output does not depend on scheduling.
func (p Params) Key() string {
	return fmt.Sprintf("%s/lb%04d/%s", p.Rebalance, p.LookbackPeriod, p.Blend.Key())
}

// Apply returns base with p's parameters substituted.
func (p Params) Apply(base domain.StrategyConfig) domain.StrategyConfig {
	base.LookbackPeriod = p.LookbackPeriod
	base.Blend = p.Blend
	base.Rebalance = p.Rebalance
	return base
}

// Expand returns every combination of g's dimensions, sorted by key.
func (g Grid) Expand(base domain.StrategyConfig) []Params {
	lookbacks := g.LookbackPeriods
	if len(lookbacks) == 0 {
		lookbacks = []int{base.LookbackPeriod}
	}
	blends := g.Blends
	if len(blends) == 0 {
		blends = []domain.SignalBlend{base.Blend}
	}
	freqs := g.Frequencies
	if len(freqs) == 0 {
		freqs = []domain.RebalanceFrequency{base.Rebalance}
	}

	seen := make(map[string]bool)
	var out []Params
	for _, f := range freqs {
		for _, lb := range lookbacks {
			for _, b := range blends {
				p := Params{LookbackPeriod: lb, Blend: b, Rebalance: f}
				if seen[p.Key()] {
					continue
				}
				seen[p.Key()] = true
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Score names the ranking metric.
type Score string

const (
	ScoreSharpe      Score = "sharpe"
	ScoreSortino     Score = "sortino"
	ScoreTotalReturn Score = "total_return"
	ScoreCalmar      Score = "calmar"
)

// ParseScore converts a metric name into a Score; empty means Sharpe.
func ParseScore(s string) (Score, error) {
	switch Score(s) {
	case "":
		return ScoreSharpe, nil
	case ScoreSharpe, ScoreSortino, ScoreTotalReturn, ScoreCalmar:
		return Score(s), nil
	}
	return "", fmt.Errorf("score %q: %w", s, domain.ErrInvalidInput)
}

func (s Score) of(rep domain.PerformanceReport) float64 {
	switch s {
	case ScoreSortino:
		return rep.SortinoRatio
	case ScoreTotalReturn:
		return rep.TotalReturn
	case ScoreCalmar:
		return risk.CalmarRatio(rep.AnnualizedReturn, rep.MaxDrawdown)
	default:
		return rep.SharpeRatio
	}
}

// OptimizeOptions controls a grid search.
type OptimizeOptions struct {
	// Workers bounds concurrent runs; 0 means 4.
	Workers int
	// TopN limits the ranking; 0 returns every completed run.
	TopN     int
	Score    Score
	Backtest Options
}

// Ranked is one scored grid point.
type Ranked struct {
	Params Params                 `json:"params"`
	Score  float64                `json:"score"`
	Result *domain.BacktestResult `json:"result"`
}

// OptimizeResult summarises a grid search.
type OptimizeResult struct {
	Score  Score    `json:"score"`
	Runs   int      `json:"runs"`
	Failed int      `json:"failed"`
	Top    []Ranked `json:"top"`
}

// Optimize runs an independent backtest for every grid point of base and
// ranks the completed runs by opts.Score, highest first. Failed runs are
// counted but never ranked. Ties are broken by parameter key.
func Optimize(ctx context.Context, in Input, base domain.StrategyConfig, capital float64, grid Grid, opts OptimizeOptions) (*OptimizeResult, error) {
	score, err := ParseScore(string(opts.Score))
	if err != nil {
		return nil, err
	}
	points := grid.Expand(base)
	for _, p := range points {
		if err := strategy.Validate(p.Apply(base)); err != nil {
			return nil, fmt.Errorf("grid point %s: %w", p.Key(), err)
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]*domain.BacktestResult, len(points))
	sem := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range points {
		i, p := i, p
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := New(opts.Backtest).Run(gctx, in, p.Apply(base), capital)
			if err != nil {
				return fmt.Errorf("grid point %s: %w", p.Key(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &OptimizeResult{Score: score, Runs: len(points)}
	for i, res := range results {
		if res.Status != domain.StatusCompleted {
			out.Failed++
			continue
		}
		out.Top = append(out.Top, Ranked{Params: points[i], Score: score.of(res.Report), Result: res})
	}
	sort.SliceStable(out.Top, func(i, j int) bool {
		if out.Top[i].Score != out.Top[j].Score {
			return out.Top[i].Score > out.Top[j].Score
		}
		return out.Top[i].Params.Key() < out.Top[j].Params.Key()
	})
	if opts.TopN > 0 && len(out.Top) > opts.TopN {
		out.Top = out.Top[:opts.TopN]
	}
	return out, nil
}
