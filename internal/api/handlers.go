package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"autoindex/internal/backtest"
	"autoindex/internal/domain"
	"autoindex/internal/report"
	"autoindex/internal/store"
	"autoindex/internal/strategy"
)

// ---------------------------------------------------------------------------
// Returns and risk
// ---------------------------------------------------------------------------

func (s *Server) handleReturns(w http.ResponseWriter, r *http.Request) {
	var req SeriesRequest
	if !decode(w, r, &req) {
		return
	}
	rs, err := s.Engine.Returns(req.Values)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, ReturnsResponse{Returns: rs})
}

func (s *Server) handleTotalReturn(w http.ResponseWriter, r *http.Request) {
	var req TotalReturnRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := s.Engine.TotalReturn(req.StartValue, req.EndValue)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, ValueResponse{Value: v})
}

func (s *Server) handleAnnualizedReturn(w http.ResponseWriter, r *http.Request) {
	var req AnnualizedReturnRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := s.Engine.AnnualizedReturn(req.TotalReturn, req.PeriodDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, ValueResponse{Value: v})
}

func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	var req VolatilityRequest
	if !decode(w, r, &req) {
		return
	}
	est, err := s.Engine.Volatility(req.Returns)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, est)
}

func (s *Server) handleSharpe(w http.ResponseWriter, r *http.Request) {
	var req SharpeRequest
	if !decode(w, r, &req) {
		return
	}
	rf := s.Engine.Options().RiskFreeRate
	if req.RiskFreeRate != nil {
		rf = *req.RiskFreeRate
	}
	writeJSON(w, ValueResponse{Value: s.Engine.SharpeRatio(req.AnnualizedReturn, req.Volatility, rf)})
}

func (s *Server) handleMaxDrawdown(w http.ResponseWriter, r *http.Request) {
	var req SeriesRequest
	if !decode(w, r, &req) {
		return
	}
	dd, err := s.Engine.MaxDrawdown(req.Values)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, dd)
}

func (s *Server) handlePortfolioMetrics(w http.ResponseWriter, r *http.Request) {
	var req SeriesRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.Engine.PortfolioMetrics(req.Values, req.PeriodDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, m)
}

func (s *Server) handleAssetMetrics(w http.ResponseWriter, r *http.Request) {
	var req PriceInput
	if !decode(w, r, &req) {
		return
	}
	in, err := s.loadInput(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ms, err := s.Engine.AssetMetrics(r.Context(), in.Prices)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, ms)
}

// ---------------------------------------------------------------------------
// Weights, backtests and optimization
// ---------------------------------------------------------------------------

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	var req WeightsRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.computeWeights(r.Context(), &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) computeWeights(ctx context.Context, req *WeightsRequest) (*WeightsResponse, error) {
	cfg, err := s.resolveStrategy(ctx, req.StrategyRef)
	if err != nil {
		return nil, err
	}
	wv, err := s.Engine.ComputeWeights(req.Signals, cfg)
	if err != nil {
		return nil, err
	}
	return &WeightsResponse{Strategy: cfg.Name, Weights: wv}, nil
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.runBacktest(r.Context(), &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// runBacktest resolves the strategy and prices of req, runs it and records
// the result in the configured stores. A failed run is a result, not an
// error.
func (s *Server) runBacktest(ctx context.Context, req *BacktestRequest) (*domain.BacktestResult, error) {
	cfg, err := s.resolveStrategy(ctx, req.StrategyRef)
	if err != nil {
		return nil, err
	}
	in, err := s.loadInput(ctx, req.PriceInput)
	if err != nil {
		return nil, err
	}
	res, err := s.Engine.RunBacktest(ctx, in, cfg, s.capital(req.Capital))
	if err != nil {
		return nil, err
	}
	s.persist(ctx, res)
	return res, nil
}

// persist records res; storage failures are logged and do not fail the
// request that produced the run.
func (s *Server) persist(ctx context.Context, res *domain.BacktestResult) {
	if s.Runs != nil {
		if err := s.Runs.SaveRun(ctx, res); err != nil {
			s.log.Error("saving run", "run", res.ID, "error", err)
		}
	}
	if s.Artifacts != nil {
		if err := s.Artifacts.WriteEquityCurve(ctx, res.ID, res.EquityCurve); err != nil {
			s.log.Error("saving equity curve", "run", res.ID, "error", err)
		}
		if err := s.Artifacts.WriteTradeLog(ctx, res.ID, res.Trades); err != nil {
			s.log.Error("saving trade log", "run", res.ID, "error", err)
		}
	}
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !decode(w, r, &req) {
		return
	}
	opts := s.Optimize
	if req.Score != "" {
		score, err := backtest.ParseScore(req.Score)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		opts.Score = score
	}
	if req.TopN > 0 {
		opts.TopN = req.TopN
	}
	grid := req.Grid
	if len(grid.LookbackPeriods) == 0 && len(grid.Blends) == 0 && len(grid.Frequencies) == 0 {
		grid = s.Grid
	}
	cfg, err := s.resolveStrategy(r.Context(), req.StrategyRef)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := s.loadInput(r.Context(), req.PriceInput)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.Engine.Optimize(r.Context(), in, cfg, s.capital(req.Capital), grid, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// capital returns the requested initial capital, or the configured default
// when the request leaves it zero.
func (s *Server) capital(requested float64) float64 {
	if requested == 0 && s.Capital > 0 {
		return s.Capital
	}
	return requested
}

// resolveStrategy returns the inline configuration of ref, or the named
// strategy from the registry, falling back to the latest stored version.
func (s *Server) resolveStrategy(ctx context.Context, ref StrategyRef) (domain.StrategyConfig, error) {
	if ref.Config != nil {
		cfg := strategy.WithDefaults(*ref.Config)
		if cfg.Name == "" {
			cfg.Name = "inline"
		}
		return cfg, nil
	}
	if ref.Strategy == "" {
		return domain.StrategyConfig{}, fmt.Errorf("strategy or config required: %w", domain.ErrInvalidInput)
	}
	if cfg, ok := s.Registry.Get(ref.Strategy); ok {
		return cfg, nil
	}
	if s.Strategies != nil {
		return s.Strategies.LatestStrategy(ctx, ref.Strategy)
	}
	return domain.StrategyConfig{}, fmt.Errorf("strategy %s: %w", ref.Strategy, store.ErrNotFound)
}

// loadInput builds backtest input from inline prices or from the price
// store. Inline market caps take precedence over stored ones.
func (s *Server) loadInput(ctx context.Context, pi PriceInput) (backtest.Input, error) {
	in := backtest.Input{
		Prices:     make(map[string]domain.PriceSeries),
		MarketCaps: make(map[string]float64),
	}
	switch {
	case len(pi.Prices) > 0:
		for sym, pts := range pi.Prices {
			series, err := domain.NewPriceSeries(sym, pts)
			if err != nil {
				return in, err
			}
			in.Prices[sym] = series
		}
	case len(pi.Symbols) > 0:
		if s.Prices == nil {
			return in, fmt.Errorf("no price store configured: %w", store.ErrNotFound)
		}
		for _, sym := range pi.Symbols {
			series, err := s.Prices.ReadSeries(ctx, sym, pi.Start, pi.End)
			if err != nil {
				return in, err
			}
			in.Prices[series.Symbol] = series
		}
	default:
		return in, fmt.Errorf("prices or symbols required: %w", domain.ErrInvalidInput)
	}

	if s.Prices != nil {
		symbols := make([]string, 0, len(in.Prices))
		for sym := range in.Prices {
			if _, ok := pi.MarketCaps[sym]; !ok {
				symbols = append(symbols, sym)
			}
		}
		sort.Strings(symbols)
		if len(symbols) > 0 {
			caps, err := s.Prices.ReadMarketCaps(ctx, symbols)
			if err != nil {
				return in, err
			}
			for sym, c := range caps {
				in.MarketCaps[sym] = c
			}
		}
	}
	for sym, c := range pi.MarketCaps {
		in.MarketCaps[sym] = c
	}
	return in, nil
}

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

func (s *Server) handleListStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Registry.All())
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.resolveStrategy(r.Context(), StrategyRef{Strategy: r.PathValue("name")})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, cfg)
}

func (s *Server) handlePutStrategy(w http.ResponseWriter, r *http.Request) {
	var cfg domain.StrategyConfig
	if !decode(w, r, &cfg) {
		return
	}
	cfg.Name = r.PathValue("name")
	cfg = strategy.WithDefaults(cfg)
	if err := strategy.Validate(cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	// The registry only holds configs the store has accepted.
	saved := StrategySaved{Name: cfg.Name}
	if s.Strategies != nil {
		v, err := s.Strategies.SaveStrategy(r.Context(), cfg)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		saved.Version = v
	}
	if err := s.Registry.Register(cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("strategy saved", "strategy", cfg.Name, "version", saved.Version)
	writeJSON(w, saved)
}

func (s *Server) handleStrategyVersions(w http.ResponseWriter, r *http.Request) {
	if s.Strategies == nil {
		writeError(w, http.StatusNotFound, "no strategy store configured")
		return
	}
	versions, err := s.Strategies.StrategyVersions(r.Context(), r.PathValue("name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, versions)
}

// ---------------------------------------------------------------------------
// Stored data
// ---------------------------------------------------------------------------

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if s.Prices == nil {
		writeError(w, http.StatusNotFound, "no price store configured")
		return
	}
	syms, err := s.Prices.ListSymbols(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if syms == nil {
		syms = []string{}
	}
	writeJSON(w, syms)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.Runs == nil {
		writeError(w, http.StatusNotFound, "no run store configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.Runs.ListRuns(r.Context(), r.URL.Query().Get("strategy"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.Runs == nil {
		writeError(w, http.StatusNotFound, "no run store configured")
		return
	}
	run, err := s.Runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, run)
}

// loadRun reassembles a stored run from its summary and artifacts.
func (s *Server) loadRun(ctx context.Context, id string) (*domain.BacktestResult, error) {
	if s.Runs == nil {
		return nil, fmt.Errorf("no run store configured: %w", store.ErrNotFound)
	}
	sum, err := s.Runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &domain.BacktestResult{
		ID:             sum.ID,
		Strategy:       domain.StrategyConfig{Name: sum.Strategy},
		Status:         sum.Status,
		Incomplete:     sum.Incomplete,
		Error:          sum.Error,
		InitialCapital: sum.InitialCapital,
		Report:         sum.Report,
		StartedAt:      sum.StartedAt,
		FinishedAt:     sum.FinishedAt,
	}
	if s.Artifacts != nil {
		if res.EquityCurve, err = s.Artifacts.ReadEquityCurve(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if res.Trades, err = s.Artifacts.ReadTradeLog(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return res, nil
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.loadRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	md := report.Markdown(res)
	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
		return
	}
	body, err := report.HTML(md)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(report.Page("Backtest "+res.ID, body)))
}

func (s *Server) handleRunChart(w http.ResponseWriter, r *http.Request) {
	res, err := s.loadRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	png, err := report.EquityChart(res)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
