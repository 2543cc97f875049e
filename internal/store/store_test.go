package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"autoindex/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustSeries(t *testing.T, symbol string, points ...domain.PricePoint) domain.PriceSeries {
	t.Helper()
	s, err := domain.NewPriceSeries(symbol, points)
	if err != nil {
		t.Fatalf("NewPriceSeries(%s): %v", symbol, err)
	}
	return s
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.pricePath("aapl", 2024)
	want := filepath.Join("/data", "prices", "AAPL", "2024.parquet")
	if got != want {
		t.Errorf("pricePath mismatch:\n  got  %s\n  want %s", got, want)
	}

	rp, err := ps.runPath("run-1", "equity.parquet")
	if err != nil {
		t.Fatalf("runPath: %v", err)
	}
	if want := filepath.Join("/data", "runs", "run-1", "equity.parquet"); rp != want {
		t.Errorf("runPath = %s, want %s", rp, want)
	}
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		if _, err := ps.runPath(bad, "x"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("runPath(%q) err = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestParquetStoreWriteReadSeries(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	s := mustSeries(t, "AAPL",
		domain.PricePoint{Date: date(2023, 12, 29), Price: 192.5},
		domain.PricePoint{Date: date(2024, 1, 2), Price: 185.5},
		domain.PricePoint{Date: date(2024, 1, 3), Price: 186.0},
	)
	if err := ps.WriteSeries(ctx, s, 3e12); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}

	got, err := ps.ReadSeries(ctx, "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("ReadSeries returned %d points, want 3", got.Len())
	}
	if got.At(0).Price != 192.5 || !got.At(0).Date.Equal(date(2023, 12, 29)) {
		t.Errorf("first point = %+v, want 2023-12-29 192.5", got.At(0))
	}
	if got.At(2).Price != 186.0 {
		t.Errorf("last point Close = %v, want 186.0", got.At(2).Price)
	}

	// Bounds are inclusive and filter across year files.
	window, err := ps.ReadSeries(ctx, "aapl", date(2024, 1, 1), date(2024, 1, 2))
	if err != nil {
		t.Fatalf("ReadSeries window: %v", err)
	}
	if window.Len() != 1 || window.At(0).Price != 185.5 {
		t.Errorf("window = %+v, want single 185.5 point", window.Points)
	}
	if window.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", window.Symbol)
	}
}

func TestParquetStoreMergeSeries(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := mustSeries(t, "MSFT",
		domain.PricePoint{Date: date(2024, 3, 1), Price: 403},
		domain.PricePoint{Date: date(2024, 3, 4), Price: 408},
	)
	if err := ps.WriteSeries(ctx, first, 3e12); err != nil {
		t.Fatalf("WriteSeries (first): %v", err)
	}

	// Overlapping day is replaced; the new day is added; a zero cap keeps
	// the stored one.
	second := mustSeries(t, "MSFT",
		domain.PricePoint{Date: date(2024, 3, 4), Price: 410},
		domain.PricePoint{Date: date(2024, 3, 5), Price: 412},
	)
	if err := ps.WriteSeries(ctx, second, 0); err != nil {
		t.Fatalf("WriteSeries (second): %v", err)
	}

	got, err := ps.ReadSeries(ctx, "MSFT", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	want := []float64{403, 410, 412}
	if got.Len() != len(want) {
		t.Fatalf("ReadSeries returned %d points after merge, want %d", got.Len(), len(want))
	}
	for i, p := range want {
		if got.At(i).Price != p {
			t.Errorf("point %d = %v, want %v", i, got.At(i).Price, p)
		}
	}

	caps, err := ps.ReadMarketCaps(ctx, []string{"MSFT"})
	if err != nil {
		t.Fatalf("ReadMarketCaps: %v", err)
	}
	// 2024-03-05 was written without a cap, so the latest non-zero one is
	// the inherited value on 2024-03-04.
	if caps["MSFT"] != 3e12 {
		t.Errorf("MSFT cap = %v, want 3e12", caps["MSFT"])
	}
}

func TestParquetStoreListSymbolsAndCaps(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	syms, err := ps.ListSymbols(ctx)
	if err != nil || len(syms) != 0 {
		t.Fatalf("ListSymbols on empty dir = %v, %v; want none", syms, err)
	}

	d := date(2024, 1, 2)
	if err := ps.WriteSeries(ctx, mustSeries(t, "GOOGL", domain.PricePoint{Date: d, Price: 140.5}), 1.7e12); err != nil {
		t.Fatal(err)
	}
	if err := ps.WriteSeries(ctx, mustSeries(t, "AAPL", domain.PricePoint{Date: d, Price: 185.5}), 2.9e12); err != nil {
		t.Fatal(err)
	}
	if err := ps.WriteSeries(ctx, mustSeries(t, "TINY", domain.PricePoint{Date: d, Price: 1}), 0); err != nil {
		t.Fatal(err)
	}

	syms, err = ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 3 || syms[0] != "AAPL" || syms[1] != "GOOGL" || syms[2] != "TINY" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL TINY]", syms)
	}

	caps, err := ps.ReadMarketCaps(ctx, []string{"AAPL", "GOOGL", "TINY", "NONE"})
	if err != nil {
		t.Fatalf("ReadMarketCaps: %v", err)
	}
	if len(caps) != 2 || caps["AAPL"] != 2.9e12 || caps["GOOGL"] != 1.7e12 {
		t.Errorf("ReadMarketCaps = %v, want AAPL and GOOGL only", caps)
	}
}

func TestParquetStoreMissingSeries(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if _, err := ps.ReadSeries(ctx, "NOPE", time.Time{}, time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadSeries missing err = %v, want ErrNotFound", err)
	}
	if err := ps.WriteSeries(ctx, mustSeries(t, "X", domain.PricePoint{Date: date(2024, 1, 2), Price: 1}), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := ps.ReadSeries(ctx, "X", date(2025, 1, 1), time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadSeries out of range err = %v, want ErrNotFound", err)
	}
}

func TestParquetStoreRunArtifacts(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	curve := []domain.EquityPoint{
		{Date: date(2024, 1, 2), Value: 10000},
		{Date: date(2024, 1, 3), Value: 10125.5},
	}
	trades := []domain.Trade{
		{Asset: "AAPL", Date: date(2024, 1, 2), Action: domain.ActionBuy, Quantity: 10, Price: 185.6, Cost: 1.86},
		{Asset: "MSFT", Date: date(2024, 1, 3), Action: domain.ActionSell, Quantity: 2.5, Price: 402, Cost: 1.01},
	}
	if err := ps.WriteEquityCurve(ctx, "run-1", curve); err != nil {
		t.Fatalf("WriteEquityCurve: %v", err)
	}
	if err := ps.WriteTradeLog(ctx, "run-1", trades); err != nil {
		t.Fatalf("WriteTradeLog: %v", err)
	}

	gotCurve, err := ps.ReadEquityCurve(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadEquityCurve: %v", err)
	}
	if len(gotCurve) != 2 || gotCurve[1].Value != 10125.5 || !gotCurve[1].Date.Equal(curve[1].Date) {
		t.Errorf("ReadEquityCurve = %+v, want %+v", gotCurve, curve)
	}

	gotTrades, err := ps.ReadTradeLog(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadTradeLog: %v", err)
	}
	if len(gotTrades) != 2 {
		t.Fatalf("ReadTradeLog returned %d trades, want 2", len(gotTrades))
	}
	if gotTrades[1].Action != domain.ActionSell || gotTrades[1].Quantity != 2.5 || gotTrades[1].Asset != "MSFT" {
		t.Errorf("second trade = %+v, want %+v", gotTrades[1], trades[1])
	}

	if _, err := ps.ReadEquityCurve(ctx, "run-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadEquityCurve missing err = %v, want ErrNotFound", err)
	}
	if _, err := ps.ReadTradeLog(ctx, "run-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadTradeLog missing err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// SQLite
// ---------------------------------------------------------------------------

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return store
}

func TestSQLiteStoreOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
	store.Close()

	// Reopening an already migrated database is a no-op.
	again, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	var version int
	if err := again.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("user_version = %d, want %d", version, len(migrations))
	}
}

func TestSQLiteStoreStrategyVersions(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	cfg := domain.StrategyConfig{
		Name:           "balanced",
		Blend:          domain.SignalBlend{Momentum: 0.4, MarketCap: 0.3, RiskParity: 0.3},
		Rebalance:      domain.RebalanceMonthly,
		LookbackPeriod: 60,
		MaxWeight:      0.5,
		UpdatedAt:      date(2024, 5, 1),
	}
	v, err := store.SaveStrategy(ctx, cfg)
	if err != nil || v != 1 {
		t.Fatalf("SaveStrategy = %d, %v; want version 1", v, err)
	}
	cfg.LookbackPeriod = 90
	cfg.UpdatedAt = date(2024, 6, 1)
	if v, err = store.SaveStrategy(ctx, cfg); err != nil || v != 2 {
		t.Fatalf("SaveStrategy = %d, %v; want version 2", v, err)
	}
	if _, err := store.SaveStrategy(ctx, domain.StrategyConfig{Name: "momentum", Blend: domain.SignalBlend{Momentum: 1}}); err != nil {
		t.Fatal(err)
	}

	latest, err := store.LatestStrategy(ctx, "balanced")
	if err != nil {
		t.Fatalf("LatestStrategy: %v", err)
	}
	if latest.LookbackPeriod != 90 || latest.Blend.Momentum != 0.4 || latest.MaxWeight != 0.5 {
		t.Errorf("LatestStrategy = %+v, want lookback 90", latest)
	}

	versions, err := store.StrategyVersions(ctx, "balanced")
	if err != nil {
		t.Fatalf("StrategyVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 1 || versions[0].Config.LookbackPeriod != 60 {
		t.Errorf("StrategyVersions = %+v", versions)
	}
	if !versions[1].UpdatedAt.Equal(date(2024, 6, 1)) {
		t.Errorf("v2 UpdatedAt = %v, want 2024-06-01", versions[1].UpdatedAt)
	}

	names, err := store.ListStrategies(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "balanced" || names[1] != "momentum" {
		t.Errorf("ListStrategies = %v, want [balanced momentum]", names)
	}

	if _, err := store.LatestStrategy(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestStrategy missing err = %v, want ErrNotFound", err)
	}
	if _, err := store.StrategyVersions(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("StrategyVersions missing err = %v, want ErrNotFound", err)
	}
	if _, err := store.SaveStrategy(ctx, domain.StrategyConfig{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("SaveStrategy unnamed err = %v, want ErrInvalidInput", err)
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	mk := func(id, strategy string, day int, final float64) *domain.BacktestResult {
		return &domain.BacktestResult{
			ID:             id,
			Strategy:       domain.StrategyConfig{Name: strategy},
			Status:         domain.StatusCompleted,
			InitialCapital: 10000,
			EquityCurve:    []domain.EquityPoint{{Date: date(2024, 1, 2), Value: 10000}, {Date: date(2024, 1, 3), Value: final}},
			Report:         domain.PerformanceReport{TotalReturn: final/10000 - 1, TotalTrades: 3},
			StartedAt:      date(2024, 2, day),
			FinishedAt:     date(2024, 2, day).Add(time.Second),
		}
	}
	for _, r := range []*domain.BacktestResult{
		mk("r1", "balanced", 1, 10100.25),
		mk("r2", "momentum", 2, 9900),
		mk("r3", "balanced", 3, 10500),
	} {
		if err := store.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s): %v", r.ID, err)
		}
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != "balanced" || got.Status != domain.StatusCompleted || got.FinalValue != 10100.25 || got.InitialCapital != 10000 {
		t.Errorf("GetRun = %+v", got)
	}
	if got.Report.TotalTrades != 3 || !got.StartedAt.Equal(date(2024, 2, 1)) {
		t.Errorf("GetRun report/start = %+v / %v", got.Report, got.StartedAt)
	}

	all, err := store.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "r3" || all[2].ID != "r1" {
		t.Errorf("ListRuns order = %v, want newest first", runIDs(all))
	}
	balanced, err := store.ListRuns(ctx, "balanced", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(balanced) != 1 || balanced[0].ID != "r3" {
		t.Errorf("ListRuns(balanced, 1) = %v, want [r3]", runIDs(balanced))
	}

	// Saving the same id replaces the row.
	failed := mk("r2", "momentum", 2, 9800)
	failed.Status = domain.StatusFailed
	failed.Incomplete = true
	failed.Error = "no eligible assets"
	if err := store.SaveRun(ctx, failed); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetRun(ctx, "r2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFailed || !got.Incomplete || got.Error != "no eligible assets" {
		t.Errorf("replaced run = %+v", got)
	}

	if _, err := store.GetRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun missing err = %v, want ErrNotFound", err)
	}
	if err := store.SaveRun(ctx, &domain.BacktestResult{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("SaveRun without id err = %v, want ErrInvalidInput", err)
	}
}

func runIDs(rs []RunSummary) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
