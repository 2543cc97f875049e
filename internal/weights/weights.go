// Package weights turns signal sources (momentum scores, market caps,
// volatilities, covariances) into normalized, constraint-satisfying
// portfolio weight vectors.
package weights

import (
	"fmt"
	"math"
	"sort"

	"autoindex/internal/domain"
)

// Validate reports whether w sums to 1 within domain.WeightTolerance and
// every weight lies in [0, 1].
func Validate(w domain.WeightVector) bool {
	if len(w) == 0 {
		return false
	}
	for _, v := range w {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return math.Abs(w.Sum()-1) < domain.WeightTolerance
}

// Normalize scales raw non-negative scores so they sum to 1.
func Normalize(raw map[string]float64) (domain.WeightVector, error) {
	keys := make([]string, 0, len(raw))
	for a := range raw {
		keys = append(keys, a)
	}
	sort.Strings(keys)
	var sum float64
	for _, a := range keys {
		v := raw[a]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("raw weight %v for %s: %w", v, a, domain.ErrInvalidInput)
		}
		sum += v
	}
	if sum <= 0 {
		return nil, fmt.Errorf("raw weights sum to %v: %w", sum, domain.ErrCalculation)
	}
	out := make(domain.WeightVector, len(raw))
	for a, v := range raw {
		out[a] = v / sum
	}
	return out, nil
}

// Equal assigns 1/n to each asset.
func Equal(assets []string) (domain.WeightVector, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("equal weights of no assets: %w", domain.ErrInsufficientData)
	}
	out := make(domain.WeightVector, len(assets))
	for _, a := range assets {
		if _, dup := out[a]; dup {
			return nil, fmt.Errorf("duplicate asset %s: %w", a, domain.ErrInvalidInput)
		}
		out[a] = 1 / float64(len(assets))
	}
	return out, nil
}

// MarketCap weights each asset by cap_i / sum(caps).
func MarketCap(caps map[string]float64) (domain.WeightVector, error) {
	if len(caps) == 0 {
		return nil, fmt.Errorf("market cap weights of no assets: %w", domain.ErrInsufficientData)
	}
	return Normalize(caps)
}

// RiskParity weights assets by inverse volatility, w_i ∝ 1/σ_i. This
// equalizes risk contributions only when assets are uncorrelated; use
// MinimumVariance when the covariance structure matters.
func RiskParity(vols map[string]float64) (domain.WeightVector, error) {
	if len(vols) == 0 {
		return nil, fmt.Errorf("risk parity weights of no assets: %w", domain.ErrInsufficientData)
	}
	inv := make(map[string]float64, len(vols))
	for a, v := range vols {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("volatility %v for %s: %w", v, a, domain.ErrInvalidInput)
		}
		inv[a] = 1 / v
	}
	return Normalize(inv)
}

// Transform maps trailing returns to non-negative momentum scores.
type Transform string

const (
	// TransformProportional weights by the positive part of the score.
	TransformProportional Transform = "proportional"
	// TransformRank weights positive-score assets by their rank, the
	// strongest receiving the largest rank.
	TransformRank Transform = "rank"
	// TransformSoftmax weights positive-score assets by exp(score).
	TransformSoftmax Transform = "softmax"
)

// Momentum weights assets by a non-negative transformation of their
// momentum scores. Negative, zero or missing (NaN) scores receive weight 0
// before renormalization. When no asset has positive momentum the result is
// ErrCalculation.
func Momentum(scores map[string]float64, t Transform) (domain.WeightVector, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("momentum weights of no assets: %w", domain.ErrInsufficientData)
	}

	type scored struct {
		asset string
		score float64
	}
	var positive []scored
	raw := make(map[string]float64, len(scores))
	for a, s := range scores {
		raw[a] = 0
		if s > 0 && !math.IsInf(s, 0) {
			positive = append(positive, scored{a, s})
		}
	}
	if len(positive) == 0 {
		return nil, fmt.Errorf("no asset has positive momentum: %w", domain.ErrCalculation)
	}
	sort.Slice(positive, func(i, j int) bool {
		if positive[i].score != positive[j].score {
			return positive[i].score < positive[j].score
		}
		return positive[i].asset < positive[j].asset
	})

	switch t {
	case TransformProportional, "":
		for _, p := range positive {
			raw[p.asset] = p.score
		}
	case TransformRank:
		for i, p := range positive {
			raw[p.asset] = float64(i + 1)
		}
	case TransformSoftmax:
		top := positive[len(positive)-1].score
		for _, p := range positive {
			raw[p.asset] = math.Exp(p.score - top)
		}
	default:
		return nil, fmt.Errorf("momentum transform %q: %w", t, domain.ErrInvalidInput)
	}
	return Normalize(raw)
}
