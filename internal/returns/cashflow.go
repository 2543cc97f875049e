package returns

import (
	"fmt"
	"math"
	"time"

	"autoindex/internal/domain"
)

// CashFlow is an external deposit (Amount > 0) or withdrawal (Amount < 0).
// ValueBefore is the portfolio's market value immediately before the flow
// is applied; it is only needed for time-weighted returns.
type CashFlow struct {
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"`
	ValueBefore float64   `json:"value_before"`
}

func checkFlows(flows []CashFlow) error {
	if len(flows) == 0 {
		return fmt.Errorf("no cash flows: %w", domain.ErrInsufficientData)
	}
	for i, f := range flows {
		if math.IsNaN(f.Amount) || math.IsNaN(f.ValueBefore) || f.ValueBefore < 0 {
			return fmt.Errorf("cash flow %d: %w", i, domain.ErrInvalidInput)
		}
		if i > 0 && f.Date.Before(flows[i-1].Date) {
			return fmt.Errorf("cash flow %d dated before its predecessor: %w", i, domain.ErrInvalidInput)
		}
	}
	return nil
}

// TimeWeightedReturn splits the holding period at every external cash flow
// and compounds the sub-period returns, so deposits and withdrawals never
// count as investment return. The first flow is normally the initial
// deposit with ValueBefore 0.
func TimeWeightedReturn(flows []CashFlow, endingValue float64) (float64, error) {
	if err := checkFlows(flows); err != nil {
		return 0, err
	}
	if endingValue < 0 || math.IsNaN(endingValue) {
		return 0, fmt.Errorf("ending value %v: %w", endingValue, domain.ErrInvalidInput)
	}

	growth := 1.0
	for i, f := range flows {
		start := f.ValueBefore + f.Amount
		end := endingValue
		if i+1 < len(flows) {
			end = flows[i+1].ValueBefore
		}
		if start <= 0 {
			if end == 0 {
				// Nothing invested over this sub-period.
				continue
			}
			return 0, fmt.Errorf("sub-period %d starts at %v but ends at %v: %w",
				i, start, end, domain.ErrInvalidInput)
		}
		growth *= end / start
	}
	return growth - 1, nil
}

// MoneyWeightedReturn returns the annualized internal rate of return r
// solving
//
//	endingValue - Σ Amount_i·(1+r)^((asOf-t_i)/365) = 0
//
// i.e. the rate at which every flow, grown to the valuation date asOf,
// exactly reproduces the ending value. It is solved numerically with a
// bracketed Newton-Raphson iteration that falls back to bisection.
func MoneyWeightedReturn(flows []CashFlow, endingValue float64, asOf time.Time) (float64, error) {
	if err := checkFlows(flows); err != nil {
		return 0, err
	}
	if endingValue < 0 || math.IsNaN(endingValue) {
		return 0, fmt.Errorf("ending value %v: %w", endingValue, domain.ErrInvalidInput)
	}

	tau := make([]float64, len(flows))
	var span float64
	for i, f := range flows {
		if f.Date.After(asOf) {
			return 0, fmt.Errorf("cash flow %d after valuation date: %w", i, domain.ErrInvalidInput)
		}
		tau[i] = asOf.Sub(f.Date).Hours() / 24 / DaysPerYear
		span = math.Max(span, tau[i])
	}
	if span == 0 {
		return 0, fmt.Errorf("cash flows span no time: %w", domain.ErrInsufficientData)
	}

	npv := func(r float64) (v, dv float64) {
		v = endingValue
		for i, f := range flows {
			g := math.Pow(1+r, tau[i])
			v -= f.Amount * g
			if tau[i] != 0 {
				dv -= f.Amount * tau[i] * g / (1 + r)
			}
		}
		return v, dv
	}

	lo, hi := -0.9999, 1.0
	flo, _ := npv(lo)
	fhi, _ := npv(hi)
	for flo*fhi > 0 && hi < 1e6 {
		hi *= 4
		fhi, _ = npv(hi)
	}
	if flo*fhi > 0 {
		return 0, fmt.Errorf("no internal rate of return brackets the cash flows: %w", domain.ErrCalculation)
	}

	const (
		tol     = 1e-10
		maxIter = 200
	)
	r := (lo + hi) / 2
	for iter := 0; iter < maxIter; iter++ {
		f, df := npv(r)
		if math.Abs(f) < tol {
			return r, nil
		}
		if (f > 0) == (flo > 0) {
			lo, flo = r, f
		} else {
			hi = r
		}

		next := r - f/df
		if df == 0 || math.IsNaN(next) || next <= lo || next >= hi {
			next = (lo + hi) / 2
		}
		if math.Abs(next-r) < tol {
			return next, nil
		}
		r = next
	}
	return r, nil
}
