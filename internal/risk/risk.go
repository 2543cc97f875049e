// Package risk computes volatility, drawdown and risk-adjusted metrics from
// return and value series.
//
// Statistical measures return an Estimate. When a sample holds fewer than
// the configured minimum number of periods the value is still computed but
// flagged LowConfidence, unless the Calculator runs in strict mode, in
// which case ErrInsufficientData is returned instead.
package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"autoindex/internal/domain"
)

const (
	// TradingDaysPerYear annualizes daily series.
	TradingDaysPerYear = 252
	// MonthsPerYear annualizes monthly series.
	MonthsPerYear = 12
	// DefaultMinPeriods is the sample size below which estimates are
	// flagged as low confidence.
	DefaultMinPeriods = 20
)

// Estimate is a statistic together with the sample it was computed from.
type Estimate struct {
	Value         float64 `json:"value"`
	Observations  int     `json:"observations"`
	LowConfidence bool    `json:"low_confidence"`
}

// Calculator holds the settings shared by all risk measures. The zero value
// is not usable; construct with New.
type Calculator struct {
	periodsPerYear float64
	minPeriods     int
	strict         bool
	mar            float64
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithPeriodsPerYear sets the annualization factor (252 daily, 12 monthly).
func WithPeriodsPerYear(n float64) Option {
	return func(c *Calculator) { c.periodsPerYear = n }
}

// WithMinPeriods sets the sample size below which estimates are flagged.
func WithMinPeriods(n int) Option {
	return func(c *Calculator) { c.minPeriods = n }
}

// WithStrict makes small samples an error instead of a flagged estimate.
func WithStrict(strict bool) Option {
	return func(c *Calculator) { c.strict = strict }
}

// WithMinAcceptableReturn sets the per-period threshold used for downside
// deviation and the Sortino ratio.
func WithMinAcceptableReturn(mar float64) Option {
	return func(c *Calculator) { c.mar = mar }
}

// New creates a Calculator for daily data with a minimum of 20 periods.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		periodsPerYear: TradingDaysPerYear,
		minPeriods:     DefaultMinPeriods,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PeriodsPerYear returns the annualization factor.
func (c *Calculator) PeriodsPerYear() float64 { return c.periodsPerYear }

// estimate wraps value after applying the min-periods policy to n.
func (c *Calculator) estimate(what string, value float64, n int) (Estimate, error) {
	low := n < c.minPeriods
	if low && c.strict {
		return Estimate{}, fmt.Errorf("%s over %d observations, need %d: %w",
			what, n, c.minPeriods, domain.ErrInsufficientData)
	}
	return Estimate{Value: value, Observations: n, LowConfidence: low}, nil
}

func checkFinite(xs []float64) error {
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("non-finite value at index %d: %w", i, domain.ErrInvalidInput)
		}
	}
	return nil
}

// Volatility returns the sample standard deviation of returns annualized
// by sqrt(periodsPerYear). Fewer than two observations is always an error.
func (c *Calculator) Volatility(returns []float64) (Estimate, error) {
	if len(returns) < 2 {
		return Estimate{}, fmt.Errorf("volatility of %d returns: %w", len(returns), domain.ErrInsufficientData)
	}
	if err := checkFinite(returns); err != nil {
		return Estimate{}, err
	}
	vol := stat.StdDev(returns, nil) * math.Sqrt(c.periodsPerYear)
	return c.estimate("volatility", vol, len(returns))
}

// SharpeRatio returns (annualizedReturn - riskFree) / volatility.
//
// A volatility of exactly zero yields 0 rather than an error: a riskless
// series has no excess return per unit of risk to report.
func SharpeRatio(annualizedReturn, volatility, riskFree float64) float64 {
	if volatility == 0 {
		return 0
	}
	return (annualizedReturn - riskFree) / volatility
}

// DownsideDeviation returns the annualized sample standard deviation of the
// returns that fall below the minimum acceptable return. With fewer than
// two such returns the deviation is 0.
func (c *Calculator) DownsideDeviation(returns []float64) (Estimate, error) {
	if len(returns) < 2 {
		return Estimate{}, fmt.Errorf("downside deviation of %d returns: %w", len(returns), domain.ErrInsufficientData)
	}
	if err := checkFinite(returns); err != nil {
		return Estimate{}, err
	}
	var below []float64
	for _, r := range returns {
		if r < c.mar {
			below = append(below, r)
		}
	}
	var dd float64
	if len(below) >= 2 {
		dd = stat.StdDev(below, nil) * math.Sqrt(c.periodsPerYear)
	}
	return c.estimate("downside deviation", dd, len(returns))
}

// SortinoRatio is the Sharpe ratio with downside deviation in the
// denominator. Like SharpeRatio it is 0 when the denominator is 0.
func (c *Calculator) SortinoRatio(annualizedReturn float64, returns []float64, riskFree float64) (Estimate, error) {
	dd, err := c.DownsideDeviation(returns)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		Value:         SharpeRatio(annualizedReturn, dd.Value, riskFree),
		Observations:  dd.Observations,
		LowConfidence: dd.LowConfidence,
	}, nil
}

func checkConfidence(confidence float64) error {
	if !(confidence > 0 && confidence < 1) {
		return fmt.Errorf("confidence %v outside (0,1): %w", confidence, domain.ErrInvalidInput)
	}
	return nil
}

// ValueAtRisk returns the historical VaR: the empirical (1-confidence)
// quantile of returns. Losses are negative, so a 95% VaR of -0.03 reads
// "on 5% of periods the loss exceeded 3%".
func (c *Calculator) ValueAtRisk(returns []float64, confidence float64) (Estimate, error) {
	if err := checkConfidence(confidence); err != nil {
		return Estimate{}, err
	}
	if len(returns) == 0 {
		return Estimate{}, fmt.Errorf("value at risk of empty series: %w", domain.ErrInsufficientData)
	}
	if err := checkFinite(returns); err != nil {
		return Estimate{}, err
	}
	sorted := sortedCopy(returns)
	v := stat.Quantile(1-confidence, stat.Empirical, sorted, nil)
	return c.estimate("value at risk", v, len(returns))
}

// ConditionalVaR returns the mean of all returns at or below the VaR
// threshold: the expected loss once VaR is breached.
func (c *Calculator) ConditionalVaR(returns []float64, confidence float64) (Estimate, error) {
	v, err := c.ValueAtRisk(returns, confidence)
	if err != nil {
		return Estimate{}, err
	}
	var tail []float64
	for _, r := range returns {
		if r <= v.Value {
			tail = append(tail, r)
		}
	}
	// The quantile is an observed value, so the tail is never empty.
	return Estimate{
		Value:         stat.Mean(tail, nil),
		Observations:  v.Observations,
		LowConfidence: v.LowConfidence,
	}, nil
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// Beta returns cov(portfolio, market) / var(market).
func (c *Calculator) Beta(portfolio, market []float64) (Estimate, error) {
	if err := checkPair(portfolio, market); err != nil {
		return Estimate{}, err
	}
	v := stat.Variance(market, nil)
	if v == 0 {
		return Estimate{}, fmt.Errorf("beta against a zero-variance benchmark: %w", domain.ErrCalculation)
	}
	return c.estimate("beta", stat.Covariance(portfolio, market, nil)/v, len(market))
}

// Correlation returns the Pearson correlation of two equal-length series.
// Series of different length are a caller error and are never truncated.
func (c *Calculator) Correlation(a, b []float64) (Estimate, error) {
	if err := checkPair(a, b); err != nil {
		return Estimate{}, err
	}
	if stat.Variance(a, nil) == 0 || stat.Variance(b, nil) == 0 {
		return Estimate{}, fmt.Errorf("correlation with a constant series: %w", domain.ErrCalculation)
	}
	return c.estimate("correlation", stat.Correlation(a, b, nil), len(a))
}

// SeriesCorrelation is Correlation for dated series; the dates must match
// pairwise.
func (c *Calculator) SeriesCorrelation(a, b domain.ReturnSeries) (Estimate, error) {
	if a.Len() != b.Len() {
		return Estimate{}, fmt.Errorf("%s has %d returns, %s has %d: %w",
			a.Symbol, a.Len(), b.Symbol, b.Len(), domain.ErrInvalidInput)
	}
	for i := range a.Points {
		if !a.Points[i].Date.Equal(b.Points[i].Date) {
			return Estimate{}, fmt.Errorf("%s and %s misaligned at index %d: %w",
				a.Symbol, b.Symbol, i, domain.ErrInvalidInput)
		}
	}
	return c.Correlation(a.Values(), b.Values())
}

func checkPair(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("series lengths %d and %d differ: %w", len(a), len(b), domain.ErrInvalidInput)
	}
	if len(a) < 2 {
		return fmt.Errorf("paired statistic over %d observations: %w", len(a), domain.ErrInsufficientData)
	}
	if err := checkFinite(a); err != nil {
		return err
	}
	return checkFinite(b)
}

// CalmarRatio returns annualizedReturn / |maxDrawdown|, or 0 when there was
// no drawdown.
func CalmarRatio(annualizedReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return annualizedReturn / math.Abs(maxDrawdown)
}

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Sum(xs) / float64(len(xs))
}
