package util

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPeriodKey(t *testing.T) {
	ts := time.Date(2024, 8, 14, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		g    Granularity
		want string
	}{
		{Daily, "2024-08-14"},
		{Weekly, "2024-W33"},
		{Monthly, "2024-08"},
		{Quarterly, "2024-Q3"},
		{Yearly, "2024"},
	}
	for _, tt := range tests {
		if got := PeriodKey(ts, tt.g); got != tt.want {
			t.Errorf("PeriodKey(%s) = %q, want %q", tt.g, got, tt.want)
		}
	}
}

func TestSamePeriodISOWeekAcrossYear(t *testing.T) {
	// 2024-12-30 and 2025-01-02 are both in ISO week 2025-W01.
	a := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	b := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	if !SamePeriod(a, b, Weekly) {
		t.Error("expected dates to share an ISO week")
	}
	if SamePeriod(a, b, Monthly) {
		t.Error("expected dates to be in different months")
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 365 {
		t.Errorf("DaysBetween = %v, want 365", got)
	}
	if got := DaysBetween(b, a); got != -365 {
		t.Errorf("DaysBetween reversed = %v, want -365", got)
	}
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	for _, level := range []string{"debug", "INFO", "warn", "error", "bogus"} {
		if NewLogger(level, "json") == nil {
			t.Fatalf("NewLogger(%q) returned nil", level)
		}
	}
	if !NewLogger("debug", "json").Enabled(ctx, slog.LevelDebug) {
		t.Error("debug logger should enable debug level")
	}
	if NewLogger("bogus", "json").Enabled(ctx, slog.LevelDebug) {
		t.Error("unknown level should default to info")
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "text").Info("hello", "k", 1)
	if !strings.Contains(buf.String(), "k=1") {
		t.Errorf("text output = %q, want key=value pairs", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "info", "json").Info("hello", "k", 1)
	if !strings.Contains(buf.String(), `"k":1`) {
		t.Errorf("json output = %q, want JSON fields", buf.String())
	}
}
