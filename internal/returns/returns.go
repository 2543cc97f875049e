// Package returns converts price series into return series and aggregate
// return statistics. Every function is pure; inputs are never modified.
package returns

import (
	"fmt"
	"math"

	"autoindex/internal/domain"
)

// DaysPerYear is the calendar basis used for annualization.
const DaysPerYear = 365.0

// SimpleReturn returns (p1-p0)/p0.
func SimpleReturn(p0, p1 float64) (float64, error) {
	if p0 <= 0 || math.IsNaN(p0) {
		return 0, fmt.Errorf("simple return from price %v: %w", p0, domain.ErrInvalidInput)
	}
	return (p1 - p0) / p0, nil
}

// LogReturn returns ln(p1/p0). Both prices must be positive.
func LogReturn(p0, p1 float64) (float64, error) {
	if p0 <= 0 || p1 <= 0 || math.IsNaN(p0) || math.IsNaN(p1) {
		return 0, fmt.Errorf("log return %v -> %v: %w", p0, p1, domain.ErrInvalidInput)
	}
	return math.Log(p1 / p0), nil
}

// Returns converts values into len(values)-1 simple returns. A single value
// yields an empty slice; an empty input is an error.
func Returns(values []float64) ([]float64, error) {
	return transform(values, SimpleReturn)
}

// LogReturns converts values into len(values)-1 log returns.
func LogReturns(values []float64) ([]float64, error) {
	return transform(values, LogReturn)
}

func transform(values []float64, fn func(p0, p1 float64) (float64, error)) ([]float64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("returns of empty series: %w", domain.ErrInsufficientData)
	}
	if err := checkPositive(values); err != nil {
		return nil, err
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		r, err := fn(values[i-1], values[i])
		if err != nil {
			return nil, err
		}
		out[i-1] = r
	}
	return out, nil
}

func checkPositive(values []float64) error {
	for i, v := range values {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("value %v at index %d: %w", v, i, domain.ErrInvalidInput)
		}
	}
	return nil
}

// SeriesReturns is the dated variant of Returns. Each return carries the
// date of the later price of its transition.
func SeriesReturns(s domain.PriceSeries) (domain.ReturnSeries, error) {
	rs, err := Returns(s.Prices())
	if err != nil {
		return domain.ReturnSeries{}, fmt.Errorf("%s: %w", s.Symbol, err)
	}
	out := domain.ReturnSeries{Symbol: s.Symbol, Points: make([]domain.ReturnPoint, len(rs))}
	for i, r := range rs {
		out.Points[i] = domain.ReturnPoint{Date: s.Points[i+1].Date, Return: r}
	}
	return out, nil
}

// CumulativeReturns returns, for each period, the growth since period 0:
// the running product of (1+r) minus 1.
func CumulativeReturns(values []float64) ([]float64, error) {
	rs, err := Returns(values)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rs))
	growth := 1.0
	for i, r := range rs {
		growth *= 1 + r
		out[i] = growth - 1
	}
	return out, nil
}

// TotalReturn returns end/start - 1.
func TotalReturn(start, end float64) (float64, error) {
	return SimpleReturn(start, end)
}

// AnnualizedReturn scales a total return earned over periodDays calendar
// days to a yearly rate: (1+total)^(365/periodDays) - 1.
func AnnualizedReturn(total, periodDays float64) (float64, error) {
	if periodDays < 1 {
		return 0, fmt.Errorf("annualizing over %v days: %w", periodDays, domain.ErrInsufficientData)
	}
	if total < -1 || math.IsNaN(total) {
		return 0, fmt.Errorf("total return %v below -100%%: %w", total, domain.ErrInvalidInput)
	}
	return math.Pow(1+total, DaysPerYear/periodDays) - 1, nil
}

// Compound chains a sequence of period returns into one total return.
func Compound(rs []float64) float64 {
	growth := 1.0
	for _, r := range rs {
		growth *= 1 + r
	}
	return growth - 1
}
