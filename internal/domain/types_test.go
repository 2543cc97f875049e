package domain

import (
	"errors"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestNewPriceSeries(t *testing.T) {
	s, err := NewPriceSeries("AAPL", []PricePoint{
		{Date: day(0), Price: 100},
		{Date: day(1), Price: 101},
		{Date: day(2), Price: 99},
	})
	if err != nil {
		t.Fatalf("NewPriceSeries returned error: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if got := s.Prices(); got[2] != 99 {
		t.Errorf("Prices()[2] = %v, want 99", got[2])
	}
	if got := s.Dates(); !got[1].Equal(day(1)) {
		t.Errorf("Dates()[1] = %v, want %v", got[1], day(1))
	}
}

func TestNewPriceSeriesRejectsBadData(t *testing.T) {
	tests := []struct {
		name   string
		points []PricePoint
	}{
		{"zero price", []PricePoint{{Date: day(0), Price: 0}}},
		{"negative price", []PricePoint{{Date: day(0), Price: 10}, {Date: day(1), Price: -1}}},
		{"duplicate date", []PricePoint{{Date: day(0), Price: 10}, {Date: day(0), Price: 11}}},
		{"decreasing date", []PricePoint{{Date: day(2), Price: 10}, {Date: day(1), Price: 11}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPriceSeries("X", tt.points)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestNewPriceSeriesCopiesInput(t *testing.T) {
	points := []PricePoint{{Date: day(0), Price: 10}}
	s, err := NewPriceSeries("X", points)
	if err != nil {
		t.Fatal(err)
	}
	points[0].Price = 99
	if s.At(0).Price != 10 {
		t.Error("PriceSeries shares storage with caller slice")
	}
}

func TestWeightVectorHelpers(t *testing.T) {
	w := WeightVector{"b": 0.25, "a": 0.75}
	if w.Sum() != 1 {
		t.Errorf("Sum() = %v, want 1", w.Sum())
	}
	if got := w.Assets(); got[0] != "a" || got[1] != "b" {
		t.Errorf("Assets() = %v, want [a b]", got)
	}
	c := w.Clone()
	c["a"] = 0
	if w["a"] != 0.75 {
		t.Error("Clone shares storage with original")
	}
}

func TestParseRebalanceFrequency(t *testing.T) {
	f, err := ParseRebalanceFrequency(" Monthly ")
	if err != nil || f != RebalanceMonthly {
		t.Errorf("ParseRebalanceFrequency = %q, %v; want monthly", f, err)
	}
	if _, err := ParseRebalanceFrequency("hourly"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestEnumValues(t *testing.T) {
	if ActionBuy != "buy" || ActionSell != "sell" {
		t.Error("TradeAction constants have unexpected values")
	}
	if StatusFailed != "failed" || StatusCompleted != "completed" {
		t.Error("BacktestStatus constants have unexpected values")
	}
}

func TestBacktestResultFinalValue(t *testing.T) {
	r := &BacktestResult{InitialCapital: 1000}
	if r.FinalValue() != 1000 {
		t.Errorf("FinalValue() = %v, want 1000 for empty curve", r.FinalValue())
	}
	r.EquityCurve = []EquityPoint{{Date: day(0), Value: 1000}, {Date: day(1), Value: 1100}}
	if r.FinalValue() != 1100 {
		t.Errorf("FinalValue() = %v, want 1100", r.FinalValue())
	}
}
