package backtest

import (
	"errors"
	"testing"

	"autoindex/internal/domain"
)

func TestLatestSignals(t *testing.T) {
	in := Input{
		Prices: map[string]domain.PriceSeries{
			"A": series(t, "A", []float64{100, 102, 101, 105, 110}),
			"B": series(t, "B", []float64{50, 50, 50, 50, 50}),
		},
		MarketCaps: map[string]float64{"A": 2e9},
	}
	s, err := LatestSignals(in, 4, 252)
	if err != nil {
		t.Fatalf("LatestSignals: %v", err)
	}
	if len(s.Assets) != 2 || s.Assets[0] != "A" || s.Assets[1] != "B" {
		t.Fatalf("assets = %v, want [A B]", s.Assets)
	}
	if !approx(s.Momentum["A"], 0.1, 1e-12) || s.Momentum["B"] != 0 {
		t.Errorf("momentum = %v, want A 0.1 and B 0", s.Momentum)
	}
	if s.Volatilities["A"] <= 0 {
		t.Errorf("volatility of A = %v, want positive", s.Volatilities["A"])
	}
	if _, ok := s.Volatilities["B"]; ok {
		t.Error("a flat series has no usable volatility")
	}
	if s.MarketCaps["A"] != 2e9 || len(s.MarketCaps) != 1 {
		t.Errorf("market caps = %v", s.MarketCaps)
	}
}

func TestLatestSignalsErrors(t *testing.T) {
	in := Input{Prices: map[string]domain.PriceSeries{"A": series(t, "A", []float64{1, 2, 3})}}
	if _, err := LatestSignals(in, 3, 252); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("short history error = %v, want ErrInsufficientData", err)
	}
	if _, err := LatestSignals(in, 0, 252); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("zero lookback error = %v, want ErrInvalidInput", err)
	}
}
