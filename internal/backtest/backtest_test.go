package backtest

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"autoindex/internal/domain"
)

func approx(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func day(n int) time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n) }

func series(t *testing.T, symbol string, prices []float64) domain.PriceSeries {
	t.Helper()
	pts := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		pts[i] = domain.PricePoint{Date: day(i), Price: p}
	}
	s, err := domain.NewPriceSeries(symbol, pts)
	if err != nil {
		t.Fatalf("NewPriceSeries(%s): %v", symbol, err)
	}
	return s
}

// universe builds three trending, gently oscillating assets over n days.
// When dropDay > 0, B loses 30% on that day and stays there.
func universe(t *testing.T, n, dropDay int) Input {
	t.Helper()
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		a[i] = 100 * math.Pow(1.002, x) * (1 + 0.005*math.Cos(x))
		b[i] = 50 * math.Pow(1.001, x) * (1 + 0.01*math.Sin(x))
		c[i] = 20 * math.Pow(1.0015, x) * (1 + 0.008*math.Sin(x/2))
		if dropDay > 0 && i >= dropDay {
			b[i] *= 0.7
		}
	}
	return Input{
		Prices: map[string]domain.PriceSeries{
			"A": series(t, "A", a),
			"B": series(t, "B", b),
			"C": series(t, "C", c),
		},
		MarketCaps: map[string]float64{"A": 3e9, "B": 2e9, "C": 1e9},
	}
}

func testConfig() domain.StrategyConfig {
	return domain.StrategyConfig{
		Name:               "test",
		Blend:              domain.SignalBlend{Momentum: 0.4, MarketCap: 0.3, RiskParity: 0.3},
		Rebalance:          domain.RebalanceDaily,
		LookbackPeriod:     10,
		MinPriceThreshold:  1,
		DailyDropThreshold: 0.2,
		MinDailyReturn:     -0.5,
		MaxDailyReturn:     1,
		MinWeight:          0,
		MaxWeight:          1,
	}
}

func TestRunDropExcludesOnlyThatAsset(t *testing.T) {
	in := universe(t, 100, 40)
	bt := New(DefaultOptions())
	res, err := bt.Run(context.Background(), in, testConfig(), 100000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != domain.StatusCompleted || res.Incomplete {
		t.Fatalf("status = %s (incomplete %v, error %q), want completed", res.Status, res.Incomplete, res.Error)
	}
	if bt.State() != domain.StatusCompleted {
		t.Errorf("State() = %s, want completed", bt.State())
	}

	dropDate := day(40)
	if len(res.Excluded) != 1 {
		t.Fatalf("Excluded = %+v, want exactly one exclusion", res.Excluded)
	}
	ex := res.Excluded[0]
	if ex.Asset != "B" || !ex.Date.Equal(dropDate) || !strings.Contains(ex.Reason, "drop") {
		t.Errorf("exclusion = %+v, want B on %s for a drop", ex, dropDate.Format("2006-01-02"))
	}
	for _, tr := range res.Trades {
		if tr.Asset == "B" && tr.Date.Equal(dropDate) {
			t.Errorf("trade for B on the drop date: %+v", tr)
		}
	}
	var tradedB bool
	for _, tr := range res.Trades {
		if tr.Asset == "B" && tr.Date.After(dropDate) {
			tradedB = true
		}
	}
	if !tradedB {
		t.Error("B was never traded again after the drop day")
	}
	if got, want := len(res.EquityCurve), 100-10; got != want {
		t.Errorf("equity curve has %d points, want %d", got, want)
	}
}

func TestRunExclusionUnderMaxWeightHoldsCash(t *testing.T) {
	in := universe(t, 100, 40)
	delete(in.Prices, "C")
	delete(in.MarketCaps, "C")
	cfg := testConfig()
	cfg.MaxWeight = 0.5

	res, err := New(DefaultOptions()).Run(context.Background(), in, cfg, 100000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != domain.StatusCompleted || res.Incomplete {
		t.Fatalf("status = %s (incomplete %v, error %q), want completed", res.Status, res.Incomplete, res.Error)
	}
	if len(res.Excluded) != 1 || res.Excluded[0].Asset != "B" {
		t.Fatalf("Excluded = %+v, want one exclusion of B", res.Excluded)
	}
	if got, want := len(res.EquityCurve), 100-10; got != want {
		t.Errorf("equity curve has %d points, want %d", got, want)
	}

	// A alone may hold at most half the book; the rest of the investable
	// value goes to cash instead of failing the run.
	var soldA bool
	for _, tr := range res.Trades {
		if tr.Date.Equal(day(40)) {
			if tr.Asset == "B" {
				t.Errorf("trade for excluded B: %+v", tr)
			}
			if tr.Asset == "A" && tr.Action == domain.ActionSell {
				soldA = true
			}
		}
	}
	if !soldA {
		t.Error("A was not trimmed back to its cap on the drop date")
	}
}

func TestRunOneSidedReturnBand(t *testing.T) {
	cfg := testConfig()
	cfg.MinDailyReturn, cfg.MaxDailyReturn = -0.2, 0
	res, err := New(DefaultOptions()).Run(context.Background(), universe(t, 60, 0), cfg, 100000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != domain.StatusCompleted {
		t.Fatalf("status = %s (error %q), want completed", res.Status, res.Error)
	}
	if len(res.Excluded) != 0 {
		t.Errorf("Excluded = %+v, want none for ordinary up days", res.Excluded)
	}
}

func TestRunSingleAssetNoCosts(t *testing.T) {
	in := Input{
		Prices:     map[string]domain.PriceSeries{"A": series(t, "A", []float64{10, 10, 20, 40})},
		MarketCaps: map[string]float64{"A": 1},
	}
	cfg := testConfig()
	cfg.Blend = domain.SignalBlend{MarketCap: 1}
	cfg.LookbackPeriod = 1
	cfg.DailyDropThreshold = 0
	cfg.MinDailyReturn, cfg.MaxDailyReturn = 0, 0

	opts := DefaultOptions()
	opts.TransactionCost, opts.Slippage = 0, 0
	res, err := New(opts).Run(context.Background(), in, cfg, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1000, 2000, 4000}
	if len(res.EquityCurve) != len(want) {
		t.Fatalf("equity curve = %+v", res.EquityCurve)
	}
	for i, w := range want {
		if !approx(res.EquityCurve[i].Value, w, 1e-6) {
			t.Errorf("equity[%d] = %v, want %v", i, res.EquityCurve[i].Value, w)
		}
	}
	if len(res.Trades) != 1 || res.Trades[0].Action != domain.ActionBuy || !approx(res.Trades[0].Quantity, 100, 1e-9) {
		t.Errorf("trades = %+v, want a single buy of 100", res.Trades)
	}
	rep := res.Report
	if !approx(rep.TotalReturn, 3, 1e-9) {
		t.Errorf("TotalReturn = %v, want 3", rep.TotalReturn)
	}
	if rep.MaxDrawdown != 0 || rep.WinRate != 1 || rep.TotalCosts != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunCostsAndSlippage(t *testing.T) {
	in := Input{
		Prices:     map[string]domain.PriceSeries{"A": series(t, "A", []float64{10, 10, 10})},
		MarketCaps: map[string]float64{"A": 1},
	}
	cfg := testConfig()
	cfg.Blend = domain.SignalBlend{MarketCap: 1}
	cfg.LookbackPeriod = 1

	opts := DefaultOptions()
	opts.TransactionCost, opts.Slippage = 0.001, 0.01
	res, err := New(opts).Run(context.Background(), in, cfg, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %+v, want one buy", res.Trades)
	}
	tr := res.Trades[0]
	if !approx(tr.Price, 10.1, 1e-12) {
		t.Errorf("execution price = %v, want 10.1", tr.Price)
	}
	// Buys are scaled so notional plus fee exactly spends the cash.
	if !approx(tr.Cost, 1000/1.001*0.001, 1e-6) {
		t.Errorf("fee = %v, want %v", tr.Cost, 1000/1.001*0.001)
	}
	if want := 1000 / (1.01 * 1.001); !approx(res.EquityCurve[0].Value, want, 1e-6) {
		t.Errorf("value after buy = %v, want %v", res.EquityCurve[0].Value, want)
	}
	if !approx(res.Report.TotalCosts, tr.Cost, 1e-12) {
		t.Errorf("TotalCosts = %v, want %v", res.Report.TotalCosts, tr.Cost)
	}
}

func TestRunMonthlyRebalanceDates(t *testing.T) {
	in := universe(t, 100, 0)
	cfg := testConfig()
	cfg.Rebalance = domain.RebalanceMonthly
	res, err := New(DefaultOptions()).Run(context.Background(), in, cfg, 100000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusCompleted {
		t.Fatalf("status = %s: %s", res.Status, res.Error)
	}
	for _, tr := range res.Trades {
		if !tr.Date.Equal(day(10)) && tr.Date.Day() != 1 {
			t.Errorf("trade on %s, want only the first rebalance or a month start", tr.Date.Format("2006-01-02"))
		}
	}
	if res.Report.TotalTrades != len(res.Trades) {
		t.Errorf("TotalTrades = %d, want %d", res.Report.TotalTrades, len(res.Trades))
	}
}

func TestRunShortHistoryFails(t *testing.T) {
	in := universe(t, 30, 0)
	cfg := testConfig()
	cfg.LookbackPeriod = 60
	bt := New(DefaultOptions())
	res, err := bt.Run(context.Background(), in, cfg, 100000)
	if err != nil {
		t.Fatalf("Run returned error %v, want a failed result", err)
	}
	if res.Status != domain.StatusFailed || !res.Incomplete || res.Error == "" {
		t.Errorf("result = status %s incomplete %v error %q, want failed", res.Status, res.Incomplete, res.Error)
	}
	if bt.State() != domain.StatusFailed {
		t.Errorf("State() = %s, want failed", bt.State())
	}
	if len(res.Trades) != 0 {
		t.Errorf("trades = %d, want none", len(res.Trades))
	}
}

func TestRunInfeasibleBoundsFails(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWeight = 0.2
	res, err := New(DefaultOptions()).Run(context.Background(), universe(t, 50, 0), cfg, 100000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusFailed || !res.Incomplete {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Error, "max weight") {
		t.Errorf("Error = %q, want a max weight violation", res.Error)
	}
}

func TestRunInvalidInput(t *testing.T) {
	bt := New(DefaultOptions())
	ctx := context.Background()
	in := universe(t, 50, 0)

	if _, err := bt.Run(ctx, in, testConfig(), 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("zero capital err = %v, want ErrInvalidInput", err)
	}
	if _, err := bt.Run(ctx, Input{}, testConfig(), 1000); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("no prices err = %v, want ErrInsufficientData", err)
	}
	bad := testConfig()
	bad.Blend.Momentum = 0.9
	if _, err := bt.Run(ctx, in, bad, 1000); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad blend err = %v, want ErrInvalidInput", err)
	}
	if bt.State() != domain.StatusInitialized {
		t.Errorf("State() = %s after rejected runs, want initialized", bt.State())
	}
}

func TestRunDeterministic(t *testing.T) {
	in := universe(t, 80, 0)
	a, err := New(DefaultOptions()).Run(context.Background(), in, testConfig(), 50000)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(DefaultOptions()).Run(context.Background(), in, testConfig(), 50000)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Error("two runs share an ID")
	}
	if len(a.EquityCurve) != len(b.EquityCurve) || len(a.Trades) != len(b.Trades) {
		t.Fatal("runs over identical input diverged")
	}
	for i := range a.EquityCurve {
		if a.EquityCurve[i].Value != b.EquityCurve[i].Value {
			t.Fatalf("equity[%d]: %v vs %v", i, a.EquityCurve[i].Value, b.EquityCurve[i].Value)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(DefaultOptions()).Run(ctx, universe(t, 50, 0), testConfig(), 1000)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil || res.Status != domain.StatusFailed {
		t.Errorf("result = %+v, want a failed partial result", res)
	}
}

func TestSuspect(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name       string
		prev, cur  float64
		wantReason bool
	}{
		{"normal", 10, 10.1, false},
		{"below minimum price", 1.2, 0.9, true},
		{"drop beyond threshold", 10, 7.5, true},
		{"drop within threshold", 10, 8.5, false},
		{"spike above band", 10, 25, true},
		{"no previous price", math.NaN(), 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suspect(cfg, tt.prev, tt.cur); (got != "") != tt.wantReason {
				t.Errorf("suspect(%v, %v) = %q, wantReason %v", tt.prev, tt.cur, got, tt.wantReason)
			}
		})
	}
}

func TestSuspectOneSidedBand(t *testing.T) {
	lower := testConfig()
	lower.DailyDropThreshold = 0
	lower.MinDailyReturn, lower.MaxDailyReturn = -0.2, 0
	upper := testConfig()
	upper.DailyDropThreshold = 0
	upper.MinDailyReturn, upper.MaxDailyReturn = 0, 0.5

	tests := []struct {
		name       string
		cfg        domain.StrategyConfig
		prev, cur  float64
		wantReason bool
	}{
		{"lower only, up day", lower, 10, 14, false},
		{"lower only, small dip", lower, 10, 9, false},
		{"lower only, crash", lower, 10, 7, true},
		{"upper only, down day", upper, 10, 5, false},
		{"upper only, spike", upper, 10, 16, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suspect(tt.cfg, tt.prev, tt.cur); (got != "") != tt.wantReason {
				t.Errorf("suspect(%v, %v) = %q, wantReason %v", tt.prev, tt.cur, got, tt.wantReason)
			}
		})
	}
}

func TestAlignCarriesForward(t *testing.T) {
	a := series(t, "A", []float64{1, 2, 3})
	b, _ := domain.NewPriceSeries("B", []domain.PricePoint{{Date: day(1), Price: 5}})
	f := align(map[string]domain.PriceSeries{"A": a, "B": b})
	if len(f.dates) != 3 {
		t.Fatalf("dates = %v", f.dates)
	}
	if !math.IsNaN(f.px["B"][0]) || f.px["B"][1] != 5 || f.px["B"][2] != 5 {
		t.Errorf("B column = %v, want [NaN 5 5]", f.px["B"])
	}
}
