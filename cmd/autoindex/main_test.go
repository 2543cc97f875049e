package main

import (
	"context"
	"flag"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"

	"autoindex/internal/api"
	"autoindex/internal/domain"
	"autoindex/internal/engine"
	"autoindex/internal/store"
	"autoindex/internal/strategy"
)

func TestSplitList(t *testing.T) {
	got := splitList(" AAA, ,BBB,CCC ,")
	want := []string{"AAA", "BBB", "CCC"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList = %v, want %v", got, want)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") should be nil")
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-03-15")
	if err != nil || !d.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parseDate = %v, %v", d, err)
	}
	if d, err := parseDate(""); err != nil || !d.IsZero() {
		t.Errorf("empty date = %v, %v; want zero", d, err)
	}
	if _, err := parseDate("15/03/2024"); err == nil {
		t.Error("expected error for non ISO date")
	}
}

func TestParseValues(t *testing.T) {
	got, err := parseValues([]string{"100", "101.5", "99"})
	if err != nil || !reflect.DeepEqual(got, []float64{100, 101.5, 99}) {
		t.Errorf("parseValues = %v, %v", got, err)
	}
	if _, err := parseValues(nil); err == nil {
		t.Error("expected error for no values")
	}
	if _, err := parseValues([]string{"1", "x"}); err == nil {
		t.Error("expected error for non-numeric value")
	}
}

func TestParseGrid(t *testing.T) {
	g, err := parseGrid("20, 60", "Weekly,monthly")
	if err != nil {
		t.Fatalf("parseGrid: %v", err)
	}
	if !reflect.DeepEqual(g.LookbackPeriods, []int{20, 60}) {
		t.Errorf("lookbacks = %v", g.LookbackPeriods)
	}
	want := []domain.RebalanceFrequency{domain.RebalanceWeekly, domain.RebalanceMonthly}
	if !reflect.DeepEqual(g.Frequencies, want) {
		t.Errorf("frequencies = %v, want %v", g.Frequencies, want)
	}

	for _, tt := range []struct{ lookbacks, freqs string }{
		{"0", "weekly"},
		{"abc", "weekly"},
		{"20", "hourly"},
	} {
		if _, err := parseGrid(tt.lookbacks, tt.freqs); err == nil {
			t.Errorf("parseGrid(%q, %q) should fail", tt.lookbacks, tt.freqs)
		}
	}
}

func TestRunsTable(t *testing.T) {
	if got := runsTable(nil); !strings.Contains(got, "No runs recorded.") {
		t.Errorf("empty table = %q", got)
	}
	md := runsTable([]store.RunSummary{{
		ID:         "r1",
		Strategy:   "balanced",
		Status:     domain.StatusCompleted,
		Incomplete: true,
		FinalValue: 123456.789,
		Report:     domain.PerformanceReport{TotalReturn: 0.2345, SharpeRatio: 1.5},
		StartedAt:  time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}})
	for _, want := range []string{"| r1 | balanced | 2024-05-01 09:30 |", "completed (incomplete)", "$123,456.79", "23.45%", "1.500"} {
		if !strings.Contains(md, want) {
			t.Errorf("table missing %q:\n%s", want, md)
		}
	}
}

// execute runs one subcommand against a fresh commander.
func execute(t *testing.T, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet("autoindex", flag.ContinueOnError)
	c := subcommands.NewCommander(fs, "autoindex")
	register(c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return c.Execute(context.Background())
}

func TestCommandsAgainstServer(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AUTOINDEX_DATA_DIR", dir)
	t.Setenv("AUTOINDEX_SQLITE_PATH", filepath.Join(dir, "autoindex.db"))
	*configPath = ""

	csv := "date,close,market_cap\n"
	for d := 0; d < 90; d++ {
		day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
		csv += day.Format("2006-01-02") + "," + []string{"10", "10.5", "10.2", "10.8"}[d%4] + ",1e9\n"
	}
	path := filepath.Join(dir, "aaa.csv")
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := execute(t, "import", "-symbol", "aaa", path); got != subcommands.ExitSuccess {
		t.Fatalf("import exit = %v", got)
	}
	if got := execute(t, "import", path); got != subcommands.ExitUsageError {
		t.Errorf("import without symbol exit = %v, want usage error", got)
	}

	ps := store.NewParquetStore(dir)
	syms, err := ps.ListSymbols(context.Background())
	if err != nil || !reflect.DeepEqual(syms, []string{"AAA"}) {
		t.Fatalf("stored symbols = %v, %v", syms, err)
	}

	db, err := store.NewSQLiteStore(filepath.Join(dir, "autoindex.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	srv := api.NewServer(api.Deps{
		Engine:     engine.New(engine.DefaultOptions()),
		Registry:   strategy.NewDefaultRegistry(),
		Prices:     ps,
		Strategies: db,
		Runs:       db,
		Artifacts:  ps,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	prev := *serverURL
	*serverURL = ts.URL
	t.Cleanup(func() { *serverURL = prev })

	chart := filepath.Join(dir, "equity.png")
	if got := execute(t, "backtest", "-symbols", "AAA", "-strategy", "market-cap", "-chart", chart); got != subcommands.ExitSuccess {
		t.Fatalf("backtest exit = %v", got)
	}
	if info, err := os.Stat(chart); err != nil || info.Size() == 0 {
		t.Errorf("chart not written: %v", err)
	}
	runs, err := db.ListRuns(context.Background(), "market-cap", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("recorded runs = %d, %v; want 1", len(runs), err)
	}

	if got := execute(t, "runs"); got != subcommands.ExitSuccess {
		t.Errorf("runs exit = %v", got)
	}
	if got := execute(t, "report", runs[0].ID); got != subcommands.ExitSuccess {
		t.Errorf("report exit = %v", got)
	}
	if got := execute(t, "report", "missing"); got != subcommands.ExitFailure {
		t.Errorf("report of missing run exit = %v, want failure", got)
	}
	if got := execute(t, "strategy", "list"); got != subcommands.ExitSuccess {
		t.Errorf("strategy list exit = %v", got)
	}
	if got := execute(t, "strategy", "show", "balanced"); got != subcommands.ExitSuccess {
		t.Errorf("strategy show exit = %v", got)
	}
	if got := execute(t, "strategy", "frobnicate"); got != subcommands.ExitUsageError {
		t.Errorf("strategy frobnicate exit = %v, want usage error", got)
	}
	if got := execute(t, "weights", "-symbols", "AAA", "-strategy", "market-cap", "-lookback", "20"); got != subcommands.ExitSuccess {
		t.Errorf("weights exit = %v", got)
	}
	if got := execute(t, "metrics", "-days", "365", "100", "110", "105", "120"); got != subcommands.ExitSuccess {
		t.Errorf("metrics exit = %v", got)
	}
}
